package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kass/go-las-bbox/pkg/dataset"
	"github.com/kass/go-las-bbox/pkg/inventory"
	"github.com/kass/go-las-bbox/pkg/models"
	"github.com/kass/go-las-bbox/pkg/postgis"
	"github.com/kass/go-las-bbox/pkg/rtree"
)

// Config structure for YAML configuration
type Config struct {
	Inventory struct {
		Output string `yaml:"output"`
		CRS    string `yaml:"crs"`
	} `yaml:"inventory"`
	PostGIS struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
	} `yaml:"postgis"`
}

var (
	configFile string
	config     Config

	outputDir string
	crs       string
)

var rootCmd = &cobra.Command{
	Use:   "lasbbox [flags] <input-folder>",
	Short: "Generate a bounding box dataset from point cloud files",
	Long: `lasbbox scans a folder for .las/.laz point cloud files, reads each file's
header extents, and writes one rectangular bounding box feature per file into
a single GeoJSON dataset. Only headers are read, never point payloads.`,
	Args:          cobra.ExactArgs(1),
	RunE:          runGenerate,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var queryCmd = &cobra.Command{
	Use:   "query <dataset>",
	Short: "Query a generated inventory dataset",
	Long: `Load a generated bounding box dataset into an in-memory R-Tree and query it:
which tiles intersect a region (-t box), which tiles cover a coordinate
(-t point), or which tiles lie nearest to a coordinate (-t nearest).`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var publishCmd = &cobra.Command{
	Use:   "publish <dataset>",
	Short: "Publish a generated inventory dataset into PostGIS",
	Long: `Read a generated bounding box dataset and load it into a GIST-indexed
PostGIS table for SQL access.`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

var (
	queryType              string
	minX, minY, maxX, maxY float64
	queryX, queryY         float64
	numNeighbors           int
	queryLimit             int
	jsonOutput             bool
	usePostGIS             bool
	srid                   int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default config.yaml if present)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output folder (default <input>/PointCloud_laz_BBOX)")
	rootCmd.Flags().StringVar(&crs, "crs", inventory.DefaultCRS, "Coordinate reference system for the output dataset")

	queryCmd.Flags().StringVarP(&queryType, "type", "t", "box", "Query type: box, point or nearest")
	queryCmd.Flags().Float64Var(&minX, "min-x", 0, "Region minimum X (box query)")
	queryCmd.Flags().Float64Var(&minY, "min-y", 0, "Region minimum Y (box query)")
	queryCmd.Flags().Float64Var(&maxX, "max-x", 0, "Region maximum X (box query)")
	queryCmd.Flags().Float64Var(&maxY, "max-y", 0, "Region maximum Y (box query)")
	queryCmd.Flags().Float64Var(&queryX, "x", 0, "Query X coordinate (point and nearest queries)")
	queryCmd.Flags().Float64Var(&queryY, "y", 0, "Query Y coordinate (point and nearest queries)")
	queryCmd.Flags().IntVarP(&numNeighbors, "neighbors", "k", 5, "Number of neighbors (nearest query)")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "Limit number of printed results (0 = all)")
	queryCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	queryCmd.Flags().BoolVar(&usePostGIS, "postgis", false, "Query the PostGIS table instead of the dataset file")
	queryCmd.Flags().IntVar(&srid, "srid", 0, "SRID override when the dataset CRS is not EPSG:<code>")

	publishCmd.Flags().IntVar(&srid, "srid", 0, "SRID override when the dataset CRS is not EPSG:<code>")
	publishCmd.Flags().StringVar(&config.PostGIS.Host, "host", "localhost", "PostGIS host")
	publishCmd.Flags().IntVar(&config.PostGIS.Port, "port", 5432, "PostGIS port")
	publishCmd.Flags().StringVar(&config.PostGIS.User, "user", "postgres", "PostGIS user")
	publishCmd.Flags().StringVar(&config.PostGIS.Password, "password", "", "PostGIS password")
	publishCmd.Flags().StringVar(&config.PostGIS.Database, "dbname", "geodb", "PostGIS database")

	rootCmd.AddCommand(queryCmd, publishCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the YAML config file when present. Flags set explicitly on
// the command line take precedence over config values.
func loadConfig(cmd *cobra.Command) error {
	path := configFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err != nil {
			return nil
		}
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	var fileConfig Config
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if !cmd.Flags().Changed("output") && fileConfig.Inventory.Output != "" {
		outputDir = fileConfig.Inventory.Output
	}
	if !cmd.Flags().Changed("crs") && fileConfig.Inventory.CRS != "" {
		crs = fileConfig.Inventory.CRS
	}
	pg := fileConfig.PostGIS
	if pg.Host != "" && !cmd.Flags().Changed("host") {
		config.PostGIS.Host = pg.Host
	}
	if pg.Port != 0 && !cmd.Flags().Changed("port") {
		config.PostGIS.Port = pg.Port
	}
	if pg.User != "" && !cmd.Flags().Changed("user") {
		config.PostGIS.User = pg.User
	}
	if pg.Password != "" && !cmd.Flags().Changed("password") {
		config.PostGIS.Password = pg.Password
	}
	if pg.Database != "" && !cmd.Flags().Changed("dbname") {
		config.PostGIS.Database = pg.Database
	}
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}

	result, err := inventory.Run(inventory.Options{
		InputDir:  args[0],
		OutputDir: outputDir,
		CRS:       crs,
		Out:       os.Stdout,
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nSuccess! Bounding box dataset created: %s\n", result.DatasetPath)
	fmt.Printf("Coordinate Reference System: %s\n", result.CRS)
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}

	if usePostGIS {
		return runPostGISQuery(args[0])
	}

	tiles, crsName, err := dataset.ReadTiles(args[0])
	if err != nil {
		return err
	}

	index := rtree.NewTileIndex()
	if err := index.IndexTiles(tiles); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
	fmt.Printf("Loaded %d tiles (CRS %s)\n", index.Count(), crsName)

	var results []*models.Tile
	switch queryType {
	case "box":
		results = index.QueryBox(models.BoundingBox{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY})
	case "point":
		results = index.QueryPoint(queryX, queryY)
	case "nearest":
		results = index.Nearest(queryX, queryY, numNeighbors)
	default:
		return fmt.Errorf("unknown query type %q, expected box, point or nearest", queryType)
	}

	return printTiles(results)
}

func runPostGISQuery(datasetPath string) error {
	if queryType != "box" && queryType != "point" {
		return fmt.Errorf("PostGIS queries support box and point types only")
	}

	_, crsName, err := dataset.ReadTiles(datasetPath)
	if err != nil {
		return err
	}
	querySRID, err := resolveSRID(crsName)
	if err != nil {
		return err
	}

	store, err := postgis.NewTileStore(
		config.PostGIS.Host,
		config.PostGIS.User,
		config.PostGIS.Password,
		config.PostGIS.Database,
		config.PostGIS.Port)
	if err != nil {
		return err
	}
	defer store.Close()

	box := models.BoundingBox{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
	if queryType == "point" {
		box = models.BoundingBox{MinX: queryX, MinY: queryY, MaxX: queryX, MaxY: queryY}
	}

	results, err := store.QueryBox(box, querySRID)
	if err != nil {
		return err
	}
	return printTiles(results)
}

func runPublish(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}

	tiles, crsName, err := dataset.ReadTiles(args[0])
	if err != nil {
		return err
	}
	if len(tiles) == 0 {
		return fmt.Errorf("dataset %s contains no tiles", args[0])
	}

	publishSRID, err := resolveSRID(crsName)
	if err != nil {
		return err
	}

	store, err := postgis.NewTileStore(
		config.PostGIS.Host,
		config.PostGIS.User,
		config.PostGIS.Password,
		config.PostGIS.Database,
		config.PostGIS.Port)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("Publishing %d tiles (SRID %d)...\n", len(tiles), publishSRID)
	if err := store.InitSchema(publishSRID); err != nil {
		return err
	}
	if err := store.BulkInsertTiles(tiles, publishSRID); err != nil {
		return err
	}
	if err := store.CreateSpatialIndex(); err != nil {
		return err
	}

	count, err := store.Count()
	if err != nil {
		return err
	}
	fmt.Printf("Done. %d tiles stored in las_tiles\n", count)
	return nil
}

// resolveSRID prefers the explicit --srid flag, falling back to parsing the
// dataset's EPSG identifier.
func resolveSRID(crsName string) (int, error) {
	if srid != 0 {
		return srid, nil
	}
	parsed, err := postgis.SRIDFromCRS(crsName)
	if err != nil {
		return 0, fmt.Errorf("%w (pass --srid explicitly)", err)
	}
	return parsed, nil
}

func printTiles(tiles []*models.Tile) error {
	if queryLimit > 0 && len(tiles) > queryLimit {
		tiles = tiles[:queryLimit]
	}

	if jsonOutput {
		data, err := json.MarshalIndent(tiles, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode results: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Found %d tiles\n", len(tiles))
	for _, t := range tiles {
		fmt.Printf("  %-40s points=%-10d extent=[%.3f %.3f %.3f %.3f]\n",
			t.Filename, t.Points, t.Box.MinX, t.Box.MinY, t.Box.MaxX, t.Box.MaxY)
	}
	return nil
}

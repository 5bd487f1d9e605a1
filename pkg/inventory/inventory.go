// Package inventory implements the scan pipeline: discover LAS/LAZ files in a
// folder, read each file's header extents, and write one bounding box feature
// per file into a single GeoJSON dataset. Files are processed strictly
// sequentially in discovery order; a failure on one file is reported as a
// warning and never aborts the run.
package inventory

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/kass/go-las-bbox/pkg/dataset"
	"github.com/kass/go-las-bbox/pkg/las"
	"github.com/kass/go-las-bbox/pkg/models"
)

const (
	// OutputDirName is the default output subfolder inside the input folder.
	OutputDirName = "PointCloud_laz_BBOX"
	// DefaultCRS is used when the caller supplies no CRS identifier.
	DefaultCRS = "EPSG:4326"
)

// Discover lists the .las and .laz files directly inside dir, case-insensitive
// on the extension and non-recursive. Entries come back in os.ReadDir name
// order, which fixes the feature order of the output dataset. A missing
// directory is an error; a directory with no matches returns an empty slice.
func Discover(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("input folder not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input path is not a folder: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list input folder: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".las", ".laz":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

// Extract reads the header of one point cloud file and builds its inventory
// tile. Headers with non-finite or inverted extents, or with a zero point
// count, are treated as extraction failures so bad data never reaches the
// output dataset.
func Extract(path string) (*models.Tile, error) {
	h, err := las.ReadHeader(path)
	if err != nil {
		return nil, err
	}

	box := h.Bounds()
	if !box.IsValid() {
		return nil, fmt.Errorf("header has invalid extents: %+v", box)
	}
	count := h.PointCount()
	if count == 0 {
		return nil, fmt.Errorf("header declares zero points")
	}

	return &models.Tile{
		Filename: filepath.Base(path),
		Box:      box,
		Points:   int64(count),
	}, nil
}

// Event describes the outcome of one processed file
type Event struct {
	Index int
	Total int
	File  string
	Err   error
}

// Options configures one pipeline run
type Options struct {
	InputDir  string
	OutputDir string
	CRS       string
	// Out receives progress and warnings; defaults to os.Stdout.
	Out io.Writer
	// Quiet suppresses progress output; warnings are still printed.
	Quiet bool
	// OnFile, if set, fires after each processed file.
	OnFile func(Event)
}

// Result summarizes a completed run
type Result struct {
	DatasetPath string
	CRS         string
	Total       int
	Written     int
	Skipped     int
	// Extent is the union of all written bounding boxes.
	Extent models.BoundingBox
}

// Run executes the full pipeline: discover, open the output dataset, then
// extract and append one feature per file with per-file fault isolation.
// Setup failures (missing folder, no matching files, writer errors) are
// returned before or instead of producing output; once the dataset is open it
// is closed on every exit path.
func Run(opts Options) (*Result, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	crs := opts.CRS
	if crs == "" {
		crs = DefaultCRS
	}

	files, err := Discover(opts.InputDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .las or .laz files found in %s", opts.InputDir)
	}

	outDir := opts.OutputDir
	if outDir == "" {
		outDir = filepath.Join(opts.InputDir, OutputDirName)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output folder: %w", err)
	}

	base := filepath.Base(filepath.Clean(opts.InputDir))
	datasetPath := filepath.Join(outDir, fmt.Sprintf("%s_%s.geojson", OutputDirName, base))

	fmt.Fprintf(out, "Found %d point cloud files\n", len(files))
	fmt.Fprintf(out, "Output dataset: %s\n", datasetPath)

	w, err := dataset.Create(datasetPath, dataset.TileSchema(), crs)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	bar := newProgressBar(out, len(files), opts.Quiet)

	result := &Result{DatasetPath: datasetPath, CRS: crs, Total: len(files)}
	for i, file := range files {
		name := filepath.Base(file)

		tile, extractErr := Extract(file)
		if extractErr != nil {
			fmt.Fprintf(out, "Warning: could not process %s: %v\n", name, extractErr)
			result.Skipped++
		} else {
			if err := w.Append(dataset.TileFeature(tile)); err != nil {
				return nil, fmt.Errorf("failed to append %s: %w", name, err)
			}
			if result.Written == 0 {
				result.Extent = tile.Box
			} else {
				result.Extent = result.Extent.Union(tile.Box)
			}
			result.Written++
		}

		if bar != nil {
			bar.Add(1)
		} else if !opts.Quiet {
			fmt.Fprintf(out, "[%d/%d] %s\n", i+1, len(files), name)
		}
		if opts.OnFile != nil {
			opts.OnFile(Event{Index: i, Total: len(files), File: name, Err: extractErr})
		}
	}

	if bar != nil {
		bar.Finish()
		fmt.Fprintln(out)
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	fmt.Fprintf(out, "Processed %d files (%d written, %d skipped)\n",
		result.Total, result.Written, result.Skipped)

	return result, nil
}

// newProgressBar returns a terminal progress bar, or nil when out is not a
// TTY or quiet mode is on. Non-TTY runs get plain per-file lines instead.
func newProgressBar(out io.Writer, total int, quiet bool) *progressbar.ProgressBar {
	if quiet {
		return nil
	}
	f, ok := out.(*os.File)
	if !ok || (!isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())) {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Processing point cloud files"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

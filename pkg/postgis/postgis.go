// Package postgis publishes a bounding box inventory into a PostGIS table so
// tiles can be queried with SQL alongside other geospatial data.
package postgis

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/kass/go-las-bbox/pkg/models"
)

// TileStore holds a PostGIS connection for the las_tiles table
type TileStore struct {
	db *sql.DB
}

// NewTileStore opens a new PostGIS connection
func NewTileStore(host, user, password, dbname string, port int) (*TileStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &TileStore{db: db}, nil
}

// InitSchema creates the las_tiles table, dropping any previous version
func (s *TileStore) InitSchema(srid int) error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS postgis;`,

		`DROP TABLE IF EXISTS las_tiles;`,

		fmt.Sprintf(`CREATE TABLE las_tiles (
			filename TEXT PRIMARY KEY,
			x_min DOUBLE PRECISION NOT NULL,
			x_max DOUBLE PRECISION NOT NULL,
			y_min DOUBLE PRECISION NOT NULL,
			y_max DOUBLE PRECISION NOT NULL,
			points BIGINT NOT NULL,
			boundary GEOMETRY(POLYGON, %d)
		);`, srid),
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}

	return nil
}

// CreateSpatialIndex creates a GIST index on the boundary column
func (s *TileStore) CreateSpatialIndex() error {
	query := `CREATE INDEX idx_las_tiles_boundary ON las_tiles USING GIST(boundary);`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create spatial index: %w", err)
	}

	// Analyze table for better query planning
	if _, err := s.db.Exec("ANALYZE las_tiles;"); err != nil {
		return fmt.Errorf("failed to analyze table: %w", err)
	}

	return nil
}

// BulkInsertTiles inserts tiles in transaction batches
func (s *TileStore) BulkInsertTiles(tiles []*models.Tile, srid int) error {
	const batchSize = 1000

	stmt, err := s.db.Prepare(`
		INSERT INTO las_tiles (filename, x_min, x_max, y_min, y_max, points, boundary)
		VALUES ($1, $2, $3, $4, $5, $6, ST_GeomFromText($7, $8))
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStmt := tx.Stmt(stmt)

	for i, tile := range tiles {
		_, err := txStmt.Exec(tile.Filename,
			tile.Box.MinX, tile.Box.MaxX, tile.Box.MinY, tile.Box.MaxY,
			tile.Points, polygonWKT(tile.Box), srid)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert tile %s: %w", tile.Filename, err)
		}

		// Commit batch
		if (i+1)%batchSize == 0 {
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit batch: %w", err)
			}

			tx, err = s.db.Begin()
			if err != nil {
				return fmt.Errorf("failed to begin new transaction: %w", err)
			}
			txStmt = tx.Stmt(stmt)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit final batch: %w", err)
	}

	return nil
}

// QueryBox returns all tiles whose boundary intersects the given region
func (s *TileStore) QueryBox(box models.BoundingBox, srid int) ([]*models.Tile, error) {
	query := `
		SELECT filename, x_min, x_max, y_min, y_max, points
		FROM las_tiles
		WHERE boundary && ST_MakeEnvelope($1, $2, $3, $4, $5)
	`

	rows, err := s.db.Query(query, box.MinX, box.MinY, box.MaxX, box.MaxY, srid)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var results []*models.Tile
	for rows.Next() {
		tile := &models.Tile{}
		if err := rows.Scan(&tile.Filename,
			&tile.Box.MinX, &tile.Box.MaxX, &tile.Box.MinY, &tile.Box.MaxY,
			&tile.Points); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, tile)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return results, nil
}

// Count returns the number of tiles in the database
func (s *TileStore) Count() (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM las_tiles").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tiles: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (s *TileStore) Close() error {
	return s.db.Close()
}

// SRIDFromCRS extracts the numeric SRID from an "EPSG:<code>" identifier.
// Non-EPSG identifiers are an error; callers pass the SRID explicitly then.
func SRIDFromCRS(crs string) (int, error) {
	const prefix = "epsg:"
	if !strings.HasPrefix(strings.ToLower(crs), prefix) {
		return 0, fmt.Errorf("cannot derive SRID from CRS %q, expected EPSG:<code>", crs)
	}
	srid, err := strconv.Atoi(crs[len(prefix):])
	if err != nil {
		return 0, fmt.Errorf("invalid EPSG code in CRS %q: %w", crs, err)
	}
	return srid, nil
}

// polygonWKT renders the closed rectangle ring of a box as WKT
func polygonWKT(box models.BoundingBox) string {
	ring := box.Ring()
	coords := make([]string, len(ring))
	for i, v := range ring {
		coords[i] = fmt.Sprintf("%g %g", v[0], v[1])
	}
	return fmt.Sprintf("POLYGON((%s))", strings.Join(coords, ", "))
}

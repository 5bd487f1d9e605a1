// Package dataset writes and reads the bounding box inventory as a GeoJSON
// FeatureCollection. The writer streams features to disk as they are appended,
// so records written before a mid-run failure survive on disk.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/kass/go-las-bbox/pkg/models"
)

// FieldType enumerates the attribute types the schema supports
type FieldType int

const (
	TypeString FieldType = iota
	TypeFloat
	TypeInt
)

// Field describes one attribute column of the dataset
type Field struct {
	Name string
	Type FieldType
	// Length caps string values; longer strings are truncated on append.
	Length int
}

// Schema describes the geometry type and attribute columns of a dataset
type Schema struct {
	Geometry string
	Fields   []Field
}

// TileSchema returns the fixed inventory schema: one polygon geometry and the
// six attributes filename, x_min, x_max, y_min, y_max and points.
func TileSchema() Schema {
	return Schema{
		Geometry: "Polygon",
		Fields: []Field{
			{Name: "filename", Type: TypeString, Length: 254},
			{Name: "x_min", Type: TypeFloat},
			{Name: "x_max", Type: TypeFloat},
			{Name: "y_min", Type: TypeFloat},
			{Name: "y_max", Type: TypeFloat},
			{Name: "points", Type: TypeInt},
		},
	}
}

// Writer streams features into a GeoJSON FeatureCollection on disk
type Writer struct {
	f      *os.File
	path   string
	schema Schema
	count  int
	closed bool
}

// Create opens a new dataset file for writing and emits the document header,
// including the CRS name member carrying the identifier verbatim. The file is
// created eagerly so writer failures surface before any input is processed.
func Create(path string, schema Schema, crs string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset: %w", err)
	}

	crsName, err := json.Marshal(crs)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to encode CRS: %w", err)
	}

	header := fmt.Sprintf(`{"type":"FeatureCollection","crs":{"type":"name","properties":{"name":%s}},"features":[`, crsName)
	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write dataset header: %w", err)
	}

	return &Writer{f: f, path: path, schema: schema}, nil
}

// Append validates the feature's properties against the schema and streams it
// to disk. String values longer than their field length are truncated.
func (w *Writer) Append(feat *geojson.Feature) error {
	if w.closed {
		return fmt.Errorf("dataset %s is closed", w.path)
	}

	for _, field := range w.schema.Fields {
		value, ok := feat.Properties[field.Name]
		if !ok {
			return fmt.Errorf("feature is missing property %q", field.Name)
		}
		switch field.Type {
		case TypeString:
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("property %q: expected string, got %T", field.Name, value)
			}
			if field.Length > 0 && len(s) > field.Length {
				// Back off to a rune boundary so the cut never splits a
				// multi-byte character.
				cut := field.Length
				for cut > 0 && !utf8.RuneStart(s[cut]) {
					cut--
				}
				feat.Properties[field.Name] = s[:cut]
			}
		case TypeFloat, TypeInt:
			switch value.(type) {
			case float64, float32, int, int64, int32, uint64, uint32:
			default:
				return fmt.Errorf("property %q: expected number, got %T", field.Name, value)
			}
		}
	}

	data, err := feat.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode feature: %w", err)
	}

	if w.count > 0 {
		if _, err := w.f.WriteString(",\n"); err != nil {
			return fmt.Errorf("failed to write feature separator: %w", err)
		}
	}
	if _, err := w.f.Write(data); err != nil {
		return fmt.Errorf("failed to write feature: %w", err)
	}
	w.count++

	return nil
}

// Close terminates the document, flushes it to disk and releases the file
// handle. Safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.f.WriteString("]}\n"); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to finalize dataset: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to sync dataset: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("failed to close dataset: %w", err)
	}
	return nil
}

// Count returns the number of features appended so far
func (w *Writer) Count() int {
	return w.count
}

// Path returns the dataset file path
func (w *Writer) Path() string {
	return w.path
}

// TileFeature builds the GeoJSON feature for one inventory tile: the closed
// rectangle ring as polygon geometry plus the six schema attributes.
func TileFeature(t *models.Tile) *geojson.Feature {
	ring := t.Box.Ring()
	orbRing := make(orb.Ring, len(ring))
	for i, v := range ring {
		orbRing[i] = orb.Point{v[0], v[1]}
	}

	feat := geojson.NewFeature(orb.Polygon{orbRing})
	feat.Properties["filename"] = t.Filename
	feat.Properties["x_min"] = t.Box.MinX
	feat.Properties["x_max"] = t.Box.MaxX
	feat.Properties["y_min"] = t.Box.MinY
	feat.Properties["y_max"] = t.Box.MaxY
	feat.Properties["points"] = t.Points
	return feat
}

// ReadTiles decodes a generated dataset back into tiles, with boxes taken from
// the feature geometry bounds. Returns the tiles in document order along with
// the dataset's CRS identifier.
func ReadTiles(path string) ([]*models.Tile, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read dataset: %w", err)
	}

	var doc struct {
		CRS struct {
			Properties struct {
				Name string `json:"name"`
			} `json:"properties"`
		} `json:"crs"`
		// Point counts are decoded as json.Number: a float64 round trip
		// loses exactness beyond 2^53.
		Features []struct {
			Properties struct {
				Points json.Number `json:"points"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, "", fmt.Errorf("failed to parse dataset: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse feature collection: %w", err)
	}

	tiles := make([]*models.Tile, 0, len(fc.Features))
	for i, feat := range fc.Features {
		if feat.Geometry == nil {
			return nil, "", fmt.Errorf("feature %d has no geometry", i)
		}
		bound := feat.Geometry.Bound()
		points := int64(feat.Properties.MustFloat64("points", 0))
		if i < len(doc.Features) {
			if n, err := doc.Features[i].Properties.Points.Int64(); err == nil {
				points = n
			}
		}
		tiles = append(tiles, &models.Tile{
			Filename: feat.Properties.MustString("filename", ""),
			Box: models.BoundingBox{
				MinX: bound.Min[0],
				MinY: bound.Min[1],
				MaxX: bound.Max[0],
				MaxY: bound.Max[1],
			},
			Points: points,
		})
	}

	return tiles, doc.CRS.Properties.Name, nil
}

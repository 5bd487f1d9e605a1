// Package rtree provides a thread-safe R-Tree index over inventory tiles,
// answering which point cloud files intersect a region, cover a coordinate,
// or lie nearest to it.
package rtree

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dhconnelly/rtreego"

	"github.com/kass/go-las-bbox/pkg/models"
)

const (
	// tolerance pads degenerate tile dimensions so zero-area tiles remain
	// findable by the index.
	tolerance   = 0.01
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

// tileItem wraps a Tile for R-Tree indexing
type tileItem struct {
	tile *models.Tile
	rect *rtreego.Rect
}

func (ti *tileItem) Bounds() *rtreego.Rect {
	return ti.rect
}

// TileIndex is a thread-safe R-Tree based index of tile bounding boxes
type TileIndex struct {
	tree      *rtreego.Rtree
	mu        sync.RWMutex
	itemCount atomic.Int64
}

// NewTileIndex creates an empty tile index
func NewTileIndex() *TileIndex {
	return &TileIndex{
		tree: rtreego.NewTree(dimensions, minChildren, maxChildren),
	}
}

// IndexTiles inserts a batch of tiles. Tiles with invalid bounding boxes are
// skipped and reported in the returned error; valid tiles are still indexed.
func (t *TileIndex) IndexTiles(tiles []*models.Tile) error {
	items := make([]*tileItem, 0, len(tiles))
	var bad []string

	for _, tile := range tiles {
		if tile == nil {
			continue
		}
		if !tile.Box.IsValid() {
			bad = append(bad, tile.Filename)
			continue
		}
		rect, err := rectForBox(tile.Box)
		if err != nil {
			bad = append(bad, tile.Filename)
			continue
		}
		items = append(items, &tileItem{tile: tile, rect: rect})
	}

	t.mu.Lock()
	for _, item := range items {
		t.tree.Insert(item)
	}
	t.mu.Unlock()
	t.itemCount.Add(int64(len(items)))

	if len(bad) > 0 {
		return fmt.Errorf("skipped tiles with invalid extents: %s", strings.Join(bad, ", "))
	}
	return nil
}

// QueryBox returns all tiles whose bounding box intersects the given region
func (t *TileIndex) QueryBox(box models.BoundingBox) []*models.Tile {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rect, err := rectForBox(box)
	if err != nil {
		return nil
	}
	results := t.tree.SearchIntersect(rect)

	tiles := make([]*models.Tile, 0, len(results))
	for _, result := range results {
		item, ok := result.(*tileItem)
		if !ok {
			continue
		}
		// The index rects are tolerance-padded; filter on exact extents.
		if item.tile.Box.Intersects(box) {
			tiles = append(tiles, item.tile)
		}
	}
	return tiles
}

// QueryPoint returns all tiles whose bounding box covers the given coordinate
func (t *TileIndex) QueryPoint(x, y float64) []*models.Tile {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rect, err := rtreego.NewRect(rtreego.Point{x - tolerance/2, y - tolerance/2}, []float64{tolerance, tolerance})
	if err != nil {
		return nil
	}
	results := t.tree.SearchIntersect(rect)

	tiles := make([]*models.Tile, 0, len(results))
	for _, result := range results {
		item, ok := result.(*tileItem)
		if !ok {
			continue
		}
		if item.tile.Box.Contains(x, y) {
			tiles = append(tiles, item.tile)
		}
	}
	return tiles
}

// Nearest returns the k tiles closest to the given coordinate, nearest first.
// Tiles covering the coordinate have distance zero and come first.
func (t *TileIndex) Nearest(x, y float64, k int) []*models.Tile {
	t.mu.RLock()
	defer t.mu.RUnlock()

	results := t.tree.NearestNeighbors(k, rtreego.Point{x, y})

	tiles := make([]*models.Tile, 0, len(results))
	for _, result := range results {
		if item, ok := result.(*tileItem); ok {
			tiles = append(tiles, item.tile)
		}
	}
	return tiles
}

// Count returns the number of tiles in the index
func (t *TileIndex) Count() int64 {
	return t.itemCount.Load()
}

// Clear removes all tiles from the index
func (t *TileIndex) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tree = rtreego.NewTree(dimensions, minChildren, maxChildren)
	t.itemCount.Store(0)
}

func rectForBox(box models.BoundingBox) (*rtreego.Rect, error) {
	lengths := []float64{box.Width(), box.Height()}
	for i, l := range lengths {
		if l < tolerance {
			lengths[i] = tolerance
		}
	}
	return rtreego.NewRect(rtreego.Point{box.MinX, box.MinY}, lengths)
}

package main

import (
	"fmt"
	"log"

	"github.com/kass/go-las-bbox/pkg/models"
	"github.com/kass/go-las-bbox/pkg/rtree"
)

func main() {
	// Create a new tile index
	index := rtree.NewTileIndex()

	// Sample tiles from a 1km survey grid
	tiles := []*models.Tile{
		{Filename: "survey_000_000.las", Box: models.BoundingBox{MinX: 500000, MinY: 5200000, MaxX: 501000, MaxY: 5201000}, Points: 1_204_511},
		{Filename: "survey_001_000.laz", Box: models.BoundingBox{MinX: 501000, MinY: 5200000, MaxX: 502000, MaxY: 5201000}, Points: 987_220},
		{Filename: "survey_000_001.las", Box: models.BoundingBox{MinX: 500000, MinY: 5201000, MaxX: 501000, MaxY: 5202000}, Points: 1_108_374},
		{Filename: "survey_001_001.laz", Box: models.BoundingBox{MinX: 501000, MinY: 5201000, MaxX: 502000, MaxY: 5202000}, Points: 1_330_042},
		{Filename: "survey_005_005.las", Box: models.BoundingBox{MinX: 505000, MinY: 5205000, MaxX: 506000, MaxY: 5206000}, Points: 450_118},
	}

	// Index the tiles
	if err := index.IndexTiles(tiles); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Indexed %d tiles\n\n", index.Count())

	// Example 1: Find tiles intersecting a region of interest
	fmt.Println("=== Tiles intersecting region ===")
	region := models.BoundingBox{MinX: 500500, MinY: 5200500, MaxX: 501500, MaxY: 5201500}

	results := index.QueryBox(region)
	fmt.Printf("Found %d tiles in region:\n", len(results))
	for _, tile := range results {
		fmt.Printf("  - %s: %d points\n", tile.Filename, tile.Points)
	}

	// Example 2: Which files cover this coordinate?
	fmt.Println("\n=== Tiles covering coordinate ===")
	x, y := 501250.0, 5200750.0

	results = index.QueryPoint(x, y)
	fmt.Printf("Found %d tiles covering (%.0f, %.0f):\n", len(results), x, y)
	for _, tile := range results {
		fmt.Printf("  - %s\n", tile.Filename)
	}

	// Example 3: Find the 3 nearest tiles to a coordinate
	fmt.Println("\n=== 3 nearest tiles ===")
	nearest := index.Nearest(503000, 5203000, 3)
	for i, tile := range nearest {
		fmt.Printf("  %d. %s extent=[%.0f %.0f %.0f %.0f]\n", i+1, tile.Filename,
			tile.Box.MinX, tile.Box.MinY, tile.Box.MaxX, tile.Box.MaxY)
	}
}

package inventory

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kass/go-las-bbox/pkg/dataset"
	"github.com/kass/go-las-bbox/pkg/models"
)

// lasHeader builds a minimal valid LAS 1.2 public header block.
func lasHeader(box models.BoundingBox, points uint32) []byte {
	buf := make([]byte, 227)
	copy(buf[0:4], "LASF")
	buf[24] = 1 // version major
	buf[25] = 2 // version minor
	binary.LittleEndian.PutUint16(buf[94:96], 227)
	binary.LittleEndian.PutUint32(buf[96:100], 227)
	binary.LittleEndian.PutUint32(buf[107:111], points)
	putF64 := func(off int, v float64) {
		binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(v))
	}
	putF64(179, box.MaxX)
	putF64(187, box.MinX)
	putF64(195, box.MaxY)
	putF64(203, box.MinY)
	return buf
}

func writeLAS(t *testing.T, dir, name string, box models.BoundingBox, points uint32) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, lasHeader(box, points), 0o644))
	return path
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func unitBox() models.BoundingBox {
	return models.BoundingBox{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeLAS(t, dir, "a.las", unitBox(), 1)
	writeLAS(t, dir, "b.laz", unitBox(), 1)
	writeLAS(t, dir, "c.LAS", unitBox(), 1)
	writeLAS(t, dir, "d.LaZ", unitBox(), 1)
	writeFile(t, dir, "notes.txt", []byte("not a point cloud"))
	writeFile(t, dir, "tile.tif", []byte{0})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.las"), 0o755))

	files, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, files, 4)

	// os.ReadDir order is sorted by name.
	assert.Equal(t, "a.las", filepath.Base(files[0]))
	assert.Equal(t, "b.laz", filepath.Base(files[1]))
	assert.Equal(t, "c.LAS", filepath.Base(files[2]))
	assert.Equal(t, "d.LaZ", filepath.Base(files[3]))
}

func TestDiscoverMissingDir(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDiscoverEmptyDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "readme.md", []byte("nothing here"))

	files, err := Discover(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDiscoverNotADir(t *testing.T) {
	path := writeFile(t, t.TempDir(), "plain.las", []byte{})
	_, err := Discover(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a folder")
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	box := models.BoundingBox{MinX: 100, MinY: -50, MaxX: 200, MaxY: 50}
	path := writeLAS(t, dir, "tile.las", box, 1234)

	tile, err := Extract(path)
	require.NoError(t, err)
	assert.Equal(t, "tile.las", tile.Filename)
	assert.Equal(t, box, tile.Box)
	assert.Equal(t, int64(1234), tile.Points)
}

func TestExtractDegenerateExtent(t *testing.T) {
	dir := t.TempDir()
	box := models.BoundingBox{MinX: 5, MinY: 5, MaxX: 5, MaxY: 5}
	path := writeLAS(t, dir, "point.las", box, 1)

	tile, err := Extract(path)
	require.NoError(t, err)
	assert.Equal(t, box, tile.Box)
	assert.Equal(t, 0.0, tile.Box.Area())
}

func TestExtractFailures(t *testing.T) {
	dir := t.TempDir()

	t.Run("corrupt header", func(t *testing.T) {
		path := writeFile(t, dir, "corrupt.las", []byte("not a las file at all"))
		_, err := Extract(path)
		require.Error(t, err)
	})

	t.Run("zero points", func(t *testing.T) {
		path := writeLAS(t, dir, "empty.las", unitBox(), 0)
		_, err := Extract(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "zero points")
	})

	t.Run("nan extents", func(t *testing.T) {
		box := models.BoundingBox{MinX: math.NaN(), MinY: 0, MaxX: 1, MaxY: 1}
		path := writeLAS(t, dir, "nan.las", box, 10)
		_, err := Extract(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid extents")
	})

	t.Run("inverted extents", func(t *testing.T) {
		box := models.BoundingBox{MinX: 10, MinY: 0, MaxX: 0, MaxY: 1}
		path := writeLAS(t, dir, "inverted.las", box, 10)
		_, err := Extract(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid extents")
	})
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	writeLAS(t, dir, "a.las", models.BoundingBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}, 100)
	writeLAS(t, dir, "b.laz", models.BoundingBox{MinX: 10, MinY: 0, MaxX: 20, MaxY: 10}, 200)
	writeLAS(t, dir, "c.las", models.BoundingBox{MinX: 0, MinY: 10, MaxX: 10, MaxY: 30}, 300)

	var buf bytes.Buffer
	result, err := Run(Options{InputDir: dir, Out: &buf})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Written)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, DefaultCRS, result.CRS)
	assert.Equal(t, models.BoundingBox{MinX: 0, MinY: 0, MaxX: 20, MaxY: 30}, result.Extent)

	// Default output location and naming pattern.
	base := filepath.Base(dir)
	expected := filepath.Join(dir, OutputDirName, "PointCloud_laz_BBOX_"+base+".geojson")
	assert.Equal(t, expected, result.DatasetPath)

	tiles, crs, err := dataset.ReadTiles(result.DatasetPath)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:4326", crs)
	require.Len(t, tiles, 3)

	// Feature order equals discovery order.
	assert.Equal(t, "a.las", tiles[0].Filename)
	assert.Equal(t, "b.laz", tiles[1].Filename)
	assert.Equal(t, "c.las", tiles[2].Filename)

	assert.Contains(t, buf.String(), "Found 3 point cloud files")
	assert.Contains(t, buf.String(), "[2/3] b.laz")
}

func TestRunSkipsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	writeLAS(t, dir, "a.las", unitBox(), 10)
	writeFile(t, dir, "broken.las", []byte("garbage"))
	writeLAS(t, dir, "z.las", unitBox(), 20)

	var buf bytes.Buffer
	var events []Event
	result, err := Run(Options{
		InputDir: dir,
		Out:      &buf,
		OnFile:   func(e Event) { events = append(events, e) },
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Written)
	assert.Equal(t, 1, result.Skipped)
	assert.Contains(t, buf.String(), "Warning: could not process broken.las")

	tiles, _, err := dataset.ReadTiles(result.DatasetPath)
	require.NoError(t, err)
	require.Len(t, tiles, 2)
	assert.Equal(t, "a.las", tiles[0].Filename)
	assert.Equal(t, "z.las", tiles[1].Filename)

	require.Len(t, events, 3)
	assert.NoError(t, events[0].Err)
	assert.Error(t, events[1].Err)
	assert.Equal(t, "broken.las", events[1].File)
	assert.NoError(t, events[2].Err)
}

func TestRunMissingInputDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	var buf bytes.Buffer
	_, err := Run(Options{InputDir: missing, Out: &buf})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	// No output directory was created.
	_, statErr := os.Stat(filepath.Join(missing, OutputDirName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunNoMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "readme.txt", []byte("no point clouds"))

	var buf bytes.Buffer
	_, err := Run(Options{InputDir: dir, Out: &buf})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .las or .laz files")

	// No dataset or output directory was created.
	_, statErr := os.Stat(filepath.Join(dir, OutputDirName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunExplicitOutputAndCRS(t *testing.T) {
	dir := t.TempDir()
	writeLAS(t, dir, "a.las", unitBox(), 10)

	outDir := filepath.Join(t.TempDir(), "elsewhere")
	var buf bytes.Buffer
	result, err := Run(Options{InputDir: dir, OutputDir: outDir, CRS: "EPSG:25832", Out: &buf})
	require.NoError(t, err)

	assert.Equal(t, outDir, filepath.Dir(result.DatasetPath))

	_, crs, err := dataset.ReadTiles(result.DatasetPath)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:25832", crs)
}

func TestRunDoesNotTouchPreviousOutput(t *testing.T) {
	dir := t.TempDir()
	writeLAS(t, dir, "a.las", unitBox(), 10)

	var buf bytes.Buffer
	first, err := Run(Options{InputDir: dir, OutputDir: filepath.Join(t.TempDir(), "one"), Out: &buf})
	require.NoError(t, err)

	before, err := os.ReadFile(first.DatasetPath)
	require.NoError(t, err)

	// Add a file and run again against a different output folder.
	writeLAS(t, dir, "b.las", unitBox(), 20)
	second, err := Run(Options{InputDir: dir, OutputDir: filepath.Join(t.TempDir(), "two"), Out: &buf})
	require.NoError(t, err)
	assert.NotEqual(t, first.DatasetPath, second.DatasetPath)

	after, err := os.ReadFile(first.DatasetPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	tiles, _, err := dataset.ReadTiles(second.DatasetPath)
	require.NoError(t, err)
	assert.Len(t, tiles, 2)
}

func TestRunQuiet(t *testing.T) {
	dir := t.TempDir()
	writeLAS(t, dir, "a.las", unitBox(), 10)

	var buf bytes.Buffer
	_, err := Run(Options{InputDir: dir, Out: &buf, Quiet: true})
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "[1/1]")
}

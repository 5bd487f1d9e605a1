// Package las reads the public header block of LAS and LAZ point cloud files.
// Only header bytes are ever read from disk; point payloads are never touched,
// so reading stays cheap regardless of file size. LAZ files carry the same
// header layout as LAS with the compression bit set in the point data record
// format byte, so no decompressor is needed for header access.
package las

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/kass/go-las-bbox/pkg/models"
)

const (
	// headerSizeLegacy is the public header block size for LAS 1.0 - 1.2.
	headerSizeLegacy = 227
	// headerSize14 is the public header block size for LAS 1.4.
	headerSize14 = 375

	signature = "LASF"

	// compressionBit marks LAZ-compressed point data in the record format byte.
	compressionBit = 0x80
)

// Header holds the decoded LAS public header block fields
type Header struct {
	FileSourceID              uint16
	GlobalEncoding            uint16
	VersionMajor              uint8
	VersionMinor              uint8
	SystemIdentifier          string
	GeneratingSoftware        string
	CreationDay               uint16
	CreationYear              uint16
	HeaderSize                uint16
	PointDataOffset           uint32
	VLRCount                  uint32
	PointDataFormat           uint8
	PointRecordLength         uint16
	LegacyPointCount          uint32
	ScaleX, ScaleY, ScaleZ    float64
	OffsetX, OffsetY, OffsetZ float64
	MaxX, MinX                float64
	MaxY, MinY                float64
	MaxZ, MinZ                float64
	// ExtendedPointCount is only present in 1.4 headers.
	ExtendedPointCount uint64
}

// ReadHeader opens the file read-only and decodes its public header block.
// At most 375 bytes are read.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, headerSizeLegacy)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("truncated header: %w", err)
	}

	if string(buf[0:4]) != signature {
		return nil, fmt.Errorf("invalid file signature %q, expected %q", buf[0:4], signature)
	}

	h := &Header{
		FileSourceID:       binary.LittleEndian.Uint16(buf[4:6]),
		GlobalEncoding:     binary.LittleEndian.Uint16(buf[6:8]),
		VersionMajor:       buf[24],
		VersionMinor:       buf[25],
		SystemIdentifier:   cString(buf[26:58]),
		GeneratingSoftware: cString(buf[58:90]),
		CreationDay:        binary.LittleEndian.Uint16(buf[90:92]),
		CreationYear:       binary.LittleEndian.Uint16(buf[92:94]),
		HeaderSize:         binary.LittleEndian.Uint16(buf[94:96]),
		PointDataOffset:    binary.LittleEndian.Uint32(buf[96:100]),
		VLRCount:           binary.LittleEndian.Uint32(buf[100:104]),
		PointDataFormat:    buf[104],
		PointRecordLength:  binary.LittleEndian.Uint16(buf[105:107]),
		LegacyPointCount:   binary.LittleEndian.Uint32(buf[107:111]),
		ScaleX:             f64(buf[131:139]),
		ScaleY:             f64(buf[139:147]),
		ScaleZ:             f64(buf[147:155]),
		OffsetX:            f64(buf[155:163]),
		OffsetY:            f64(buf[163:171]),
		OffsetZ:            f64(buf[171:179]),
		// On disk the max of each axis precedes the min.
		MaxX: f64(buf[179:187]),
		MinX: f64(buf[187:195]),
		MaxY: f64(buf[195:203]),
		MinY: f64(buf[203:211]),
		MaxZ: f64(buf[211:219]),
		MinZ: f64(buf[219:227]),
	}

	if h.VersionMajor != 1 {
		return nil, fmt.Errorf("unsupported LAS version %s", h.Version())
	}
	if h.HeaderSize < headerSizeLegacy {
		return nil, fmt.Errorf("declared header size %d is smaller than minimum %d", h.HeaderSize, headerSizeLegacy)
	}

	if h.VersionMinor >= 4 {
		ext := make([]byte, headerSize14-headerSizeLegacy)
		if _, err := io.ReadFull(f, ext); err != nil {
			return nil, fmt.Errorf("truncated 1.4 header: %w", err)
		}
		// Extended point count sits at file offset 247.
		h.ExtendedPointCount = binary.LittleEndian.Uint64(ext[20:28])
	}

	return h, nil
}

// PointCount returns the number of point records in the file, preferring the
// 64-bit extended count of 1.4 headers over the legacy 32-bit field.
func (h *Header) PointCount() uint64 {
	if h.VersionMinor >= 4 {
		return h.ExtendedPointCount
	}
	return uint64(h.LegacyPointCount)
}

// Compressed reports whether the point data is LAZ-compressed
func (h *Header) Compressed() bool {
	return h.PointDataFormat&compressionBit != 0
}

// Version returns the header version as a string, e.g. "1.2"
func (h *Header) Version() string {
	return fmt.Sprintf("%d.%d", h.VersionMajor, h.VersionMinor)
}

// Bounds returns the X/Y extents of the header as a bounding box
func (h *Header) Bounds() models.BoundingBox {
	return models.BoundingBox{
		MinX: h.MinX,
		MinY: h.MinY,
		MaxX: h.MaxX,
		MaxY: h.MaxY,
	}
}

func f64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

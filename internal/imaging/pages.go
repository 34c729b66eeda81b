package imaging

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"
)

const (
	tagImageDescription = 270
	tiffASCII           = 2

	// maxPages bounds the IFD chain walk.
	maxPages = 1 << 16
)

// Pages is a decoded image file: one entry per TIFF page, or a single entry
// for other formats.
type Pages struct {
	Images []image.Image

	// Description is the first page's ImageDescription tag, if any.
	Description string
}

// DecodeTIFFPages decodes every page of a TIFF file.
func DecodeTIFFPages(data []byte) (*Pages, error) {
	offsets, order, err := tiffIFDOffsets(data)
	if err != nil {
		return nil, err
	}

	pages := &Pages{Description: tiffDescription(data, offsets[0], order)}
	for i, off := range offsets {
		img, err := tiff.Decode(newPageReader(data, off, order))
		if err != nil {
			return nil, fmt.Errorf("failed to decode page %d: %w", i, err)
		}
		pages.Images = append(pages.Images, img)
	}
	return pages, nil
}

// tiffIFDOffsets walks the IFD chain and returns the offset of every page.
func tiffIFDOffsets(data []byte) ([]uint32, binary.ByteOrder, error) {
	if len(data) < 8 {
		return nil, nil, fmt.Errorf("failed to decode image: tiff: file too short")
	}
	var order binary.ByteOrder
	switch string(data[:4]) {
	case "II*\x00":
		order = binary.LittleEndian
	case "MM\x00*":
		order = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("failed to decode image: tiff: invalid header")
	}

	var offsets []uint32
	seen := make(map[uint32]bool)
	off := order.Uint32(data[4:8])
	for off != 0 {
		if seen[off] || len(offsets) >= maxPages {
			return nil, nil, fmt.Errorf("failed to decode image: tiff: IFD chain loops")
		}
		if int(off)+2 > len(data) {
			return nil, nil, fmt.Errorf("failed to decode image: tiff: IFD offset %d out of range", off)
		}
		seen[off] = true
		offsets = append(offsets, off)

		n := int(order.Uint16(data[off:]))
		next := int(off) + 2 + 12*n
		if next+4 > len(data) {
			break
		}
		off = order.Uint32(data[next:])
	}
	if len(offsets) == 0 {
		return nil, nil, fmt.Errorf("failed to decode image: tiff: no pages")
	}
	return offsets, order, nil
}

// tiffDescription returns the ImageDescription of the IFD at off.
func tiffDescription(data []byte, off uint32, order binary.ByteOrder) string {
	n := int(order.Uint16(data[off:]))
	for i := 0; i < n; i++ {
		e := int(off) + 2 + 12*i
		if e+12 > len(data) {
			return ""
		}
		if order.Uint16(data[e:]) != tagImageDescription || order.Uint16(data[e+2:]) != tiffASCII {
			continue
		}
		count := int(order.Uint32(data[e+4:]))
		start := e + 8
		if count > 4 {
			start = int(order.Uint32(data[e+8:]))
		}
		if start < 0 || start+count > len(data) {
			return ""
		}
		return strings.TrimRight(string(data[start:start+count]), "\x00")
	}
	return ""
}

// pageReader presents data with its first-IFD pointer aimed at one page, so
// a single-page decoder reads that page.
type pageReader struct {
	data []byte
	head [8]byte
}

func newPageReader(data []byte, off uint32, order binary.ByteOrder) io.Reader {
	p := &pageReader{data: data}
	copy(p.head[:], data[:8])
	order.PutUint32(p.head[4:], off)
	return io.NewSectionReader(p, 0, int64(len(data)))
}

func (p *pageReader) ReadAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(p.data)) {
		return 0, io.EOF
	}
	n := copy(b, p.data[off:])
	for i := 0; i < n && off+int64(i) < int64(len(p.head)); i++ {
		b[i] = p.head[off+int64(i)]
	}
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

var imagejChannels = regexp.MustCompile(`(?m)^channels=(\d+)`)

// pageChannels returns the channel count a multi-page file declares in its
// ImageJ description, or 0 when it declares none.
func pageChannels(description string) int {
	m := imagejChannels.FindStringSubmatch(description)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func isTIFF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*"))
}

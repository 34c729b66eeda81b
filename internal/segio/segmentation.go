// Package segio locates and decodes the labeled-mask segmentation that
// accompanies a microscopy image.
//
// A segmentation lives next to its image as <stem>_seg.npz (a mapping whose
// "masks" entry holds the labeled array) or <stem>_seg.npy (a pickled dict
// with the same entry, or the bare array).
package segio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sbinet/npyio"
	"github.com/sbinet/npyio/npz"

	"github.com/ironsheep/roi-editor-mcp/internal/regions"
)

const (
	// Suffix is appended to the image stem to name its segmentation.
	Suffix = "_seg"

	// MasksKey is the mapping entry holding the labeled array.
	MasksKey = "masks"
)

var (
	// ErrMasksMissing is returned when an .npz mapping has no masks entry.
	ErrMasksMissing = errors.New("segmentation has no masks entry")

	// ErrUnsupportedDType is returned for array element types that cannot hold labels.
	ErrUnsupportedDType = errors.New("unsupported mask dtype")
)

// Stem returns path without its directory and final extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Companion returns the sibling of path named <stem><suffix>.
func Companion(path, suffix string) string {
	return filepath.Join(filepath.Dir(path), Stem(path)+suffix)
}

// SegmentationPath returns the segmentation file for imagePath, preferring
// .npz over .npy. The boolean reports whether the file exists; when neither
// exists the .npz candidate is returned.
func SegmentationPath(imagePath string) (string, bool) {
	npzPath := Companion(imagePath, Suffix+".npz")
	if fileExists(npzPath) {
		return npzPath, true
	}
	npyPath := Companion(imagePath, Suffix+".npy")
	if fileExists(npyPath) {
		return npyPath, true
	}
	return npzPath, false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// LoadMask decodes the segmentation at path based on its extension.
func LoadMask(path string) (*regions.Mask, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".npz":
		return loadNpz(path)
	case ".npy":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open segmentation: %w", err)
		}
		defer f.Close()
		return ReadNpy(f)
	default:
		return nil, fmt.Errorf("unsupported segmentation format: %s", filepath.Ext(path))
	}
}

// ReadNpy decodes a NumPy .npy segmentation. The file holds either the bare
// labeled array or, as cellpose writes it, a pickled dict with a masks entry.
func ReadNpy(r io.Reader) (*regions.Mask, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read npy: %w", err)
	}
	header, offset, err := npyHeader(buf)
	if err != nil {
		return nil, err
	}
	if isObjectDescr(header) {
		return readPickledMasks(bytes.NewReader(buf[offset:]))
	}

	nr, err := npyio.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to read npy header: %w", err)
	}
	descr := nr.Header.Descr
	return decode(descr.Type, descr.Fortran, descr.Shape, nr.Read)
}

var npyMagic = []byte("\x93NUMPY")

// npyHeader returns the header dict text of an .npy file and the offset of
// the data that follows it.
func npyHeader(buf []byte) (string, int, error) {
	if len(buf) < 10 || !bytes.Equal(buf[:6], npyMagic) {
		return "", 0, fmt.Errorf("failed to read npy header: not an npy file")
	}
	var hlen, start int
	switch major := buf[6]; major {
	case 1:
		hlen, start = int(binary.LittleEndian.Uint16(buf[8:10])), 10
	case 2, 3:
		if len(buf) < 12 {
			return "", 0, fmt.Errorf("failed to read npy header: truncated")
		}
		hlen, start = int(binary.LittleEndian.Uint32(buf[8:12])), 12
	default:
		return "", 0, fmt.Errorf("failed to read npy header: unsupported version %d", major)
	}
	if start+hlen > len(buf) {
		return "", 0, fmt.Errorf("failed to read npy header: truncated")
	}
	return string(buf[start : start+hlen]), start + hlen, nil
}

// isObjectDescr reports whether an .npy header declares an object dtype.
func isObjectDescr(header string) bool {
	i := strings.Index(header, "'descr'")
	if i < 0 {
		return false
	}
	rest := strings.TrimLeft(header[i+len("'descr'"):], " :")
	rest = strings.TrimPrefix(rest, "'")
	if j := strings.IndexByte(rest, '\''); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimLeft(rest, "<>|=") == "O"
}

func loadNpz(path string) (*regions.Mask, error) {
	zr, err := npz.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segmentation: %w", err)
	}
	defer zr.Close()

	key := ""
	for _, k := range zr.Keys() {
		if k == MasksKey || k == MasksKey+".npy" {
			key = k
			break
		}
	}
	if key == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrMasksMissing)
	}

	hdr := zr.Header(key)
	if hdr == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrMasksMissing)
	}
	read := func(ptr interface{}) error { return zr.Read(key, ptr) }
	return decode(hdr.Descr.Type, hdr.Descr.Fortran, hdr.Descr.Shape, read)
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func readAs[T number](read func(interface{}) error, n int) ([]int, error) {
	buf := make([]T, n)
	if err := read(&buf); err != nil {
		return nil, fmt.Errorf("failed to read mask data: %w", err)
	}
	if len(buf) != n {
		return nil, fmt.Errorf("mask data has %d values, header declares %d", len(buf), n)
	}
	out := make([]int, n)
	for i, v := range buf {
		out[i] = int(math.Round(float64(v)))
	}
	return out, nil
}

// decode reads a labeled array of the given NumPy dtype (e.g. "<u2") into a
// row-major mask.
func decode(dtype string, fortran bool, shape []int, read func(interface{}) error) (*regions.Mask, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("mask must be an array, got a scalar")
	}
	n := 1
	for _, d := range shape {
		n *= d
	}

	kind := strings.TrimLeft(dtype, "<>|=")
	var (
		data []int
		err  error
	)
	switch kind {
	case "i1":
		data, err = readAs[int8](read, n)
	case "i2":
		data, err = readAs[int16](read, n)
	case "i4":
		data, err = readAs[int32](read, n)
	case "i8":
		data, err = readAs[int64](read, n)
	case "u1":
		data, err = readAs[uint8](read, n)
	case "u2":
		data, err = readAs[uint16](read, n)
	case "u4":
		data, err = readAs[uint32](read, n)
	case "u8":
		data, err = readAs[uint64](read, n)
	case "f4":
		data, err = readAs[float32](read, n)
	case "f8":
		data, err = readAs[float64](read, n)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, dtype)
	}
	if err != nil {
		return nil, err
	}

	if fortran && len(shape) > 1 {
		data = fortranToRowMajor(data, shape)
	}
	return regions.NewMask(shape, data)
}

// fortranToRowMajor reorders column-major data into row-major order.
func fortranToRowMajor(data []int, shape []int) []int {
	fstrides := make([]int, len(shape))
	stride := 1
	for i := range shape {
		fstrides[i] = stride
		stride *= shape[i]
	}

	out := make([]int, len(data))
	idx := make([]int, len(shape))
	for off := range out {
		src := 0
		for i, v := range idx {
			src += v * fstrides[i]
		}
		out[off] = data[src]

		// Advance idx in row-major order
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out
}

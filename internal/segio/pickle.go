package segio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/ironsheep/roi-editor-mcp/internal/regions"
)

// ErrNotMapping is returned when a pickled segmentation does not hold a dict.
var ErrNotMapping = errors.New("pickled segmentation is not a mapping")

// readPickledMasks decodes a pickled object array holding a dict, as written
// by np.save on a dict, and returns its masks entry.
func readPickledMasks(r io.Reader) (*regions.Mask, error) {
	u := pickle.NewUnpickler(r)
	u.FindClass = findNumpyClass
	obj, err := u.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to unpickle segmentation: %w", err)
	}

	// np.save wraps the dict in a 0-d object array
	if arr, ok := obj.(*ndarray); ok && arr.dtype.kind() == "O" {
		if len(arr.objects) != 1 {
			return nil, fmt.Errorf("%w: object array holds %d values", ErrNotMapping, len(arr.objects))
		}
		obj = arr.objects[0]
	}

	d, ok := obj.(interface {
		Get(key interface{}) (interface{}, bool)
	})
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotMapping, obj)
	}
	v, ok := d.Get(MasksKey)
	if !ok {
		return nil, ErrMasksMissing
	}
	arr, ok := v.(*ndarray)
	if !ok {
		return nil, fmt.Errorf("masks entry is %T, not an array", v)
	}
	return arr.mask()
}

func findNumpyClass(module, name string) (interface{}, error) {
	switch module + "." + name {
	case "numpy.core.multiarray._reconstruct", "numpy._core.multiarray._reconstruct":
		return reconstructFunc{}, nil
	case "numpy.dtype":
		return dtypeClass{}, nil
	case "_codecs.encode":
		return latin1Encode{}, nil
	}
	switch module {
	case "numpy.dtypes":
		return dtypeClass{}, nil
	default:
		// Other entries of a cellpose dict (numpy scalars, flows) are kept opaque
		return &opaqueClass{module: module, name: name}, nil
	}
}

// reconstructFunc stands in for numpy.core.multiarray._reconstruct.
type reconstructFunc struct{}

func (reconstructFunc) Call(args ...interface{}) (interface{}, error) {
	return &ndarray{}, nil
}

// latin1Encode stands in for _codecs.encode, which protocol 2 pickles use
// to carry bytes.
type latin1Encode struct{}

func (latin1Encode) Call(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("_codecs.encode called without arguments")
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("_codecs.encode of %T", args[0])
	}
	out := make([]byte, 0, len(s))
	for _, r := range s {
		out = append(out, byte(r))
	}
	return out, nil
}

// dtypeClass stands in for numpy.dtype.
type dtypeClass struct{}

func (dtypeClass) Call(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("numpy.dtype called without arguments")
	}
	name, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("numpy.dtype name is %T", args[0])
	}
	return &dtype{name: name, order: "|"}, nil
}

type dtype struct {
	name  string // e.g. "u2", "i4", "f8", "O8"
	order string // "<", ">", "|" or "="
}

// PySetState receives (version, byteorder, subarray, names, fields, ...).
func (d *dtype) PySetState(state interface{}) error {
	t, ok := sequence(state)
	if !ok || len(t) < 2 {
		return fmt.Errorf("unexpected dtype state %T", state)
	}
	if order, ok := t[1].(string); ok {
		d.order = order
	}
	return nil
}

func (d *dtype) kind() string {
	if d == nil || d.name == "" {
		return ""
	}
	return d.name[:1]
}

// descr returns the dtype in .npy header form, e.g. "<u2".
func (d *dtype) descr() string {
	return d.order + d.name
}

func (d *dtype) byteOrder() binary.ByteOrder {
	if d.order == ">" {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

type ndarray struct {
	shape   []int
	dtype   *dtype
	fortran bool
	raw     []byte
	objects []interface{}
}

// PySetState receives (version, shape, dtype, is_fortran, data).
func (a *ndarray) PySetState(state interface{}) error {
	t, ok := sequence(state)
	if !ok {
		return fmt.Errorf("unexpected ndarray state %T", state)
	}
	if len(t) == 5 {
		t = t[1:]
	}
	if len(t) != 4 {
		return fmt.Errorf("ndarray state has %d fields", len(t))
	}

	shape, ok := sequence(t[0])
	if !ok {
		return fmt.Errorf("ndarray shape is %T", t[0])
	}
	a.shape = make([]int, len(shape))
	for i, v := range shape {
		n, ok := v.(int)
		if !ok {
			return fmt.Errorf("ndarray dimension is %T", v)
		}
		a.shape[i] = n
	}

	if a.dtype, ok = t[1].(*dtype); !ok {
		return fmt.Errorf("ndarray dtype is %T", t[1])
	}
	a.fortran, _ = t[2].(bool)

	switch data := t[3].(type) {
	case []byte:
		a.raw = data
	case string:
		a.raw = []byte(data)
	default:
		objs, ok := sequence(data)
		if !ok {
			return fmt.Errorf("ndarray data is %T", data)
		}
		a.objects = objs
	}
	return nil
}

func (a *ndarray) mask() (*regions.Mask, error) {
	if a.dtype == nil || a.raw == nil {
		return nil, fmt.Errorf("%w: masks is not a numeric array", ErrUnsupportedDType)
	}
	order := a.dtype.byteOrder()
	read := func(ptr interface{}) error {
		return binary.Read(bytes.NewReader(a.raw), order, ptr)
	}
	return decode(a.dtype.descr(), a.fortran, a.shape, read)
}

// opaqueClass absorbs any other global the pickle references.
type opaqueClass struct {
	module, name string
}

func (c *opaqueClass) Call(args ...interface{}) (interface{}, error) {
	return &opaqueObject{class: c, args: args}, nil
}

func (c *opaqueClass) PyNew(args ...interface{}) (interface{}, error) {
	return &opaqueObject{class: c, args: args}, nil
}

type opaqueObject struct {
	class *opaqueClass
	args  []interface{}
	state interface{}
}

func (o *opaqueObject) PySetState(state interface{}) error {
	o.state = state
	return nil
}

func sequence(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case *types.Tuple:
		return *t, true
	case *types.List:
		return *t, true
	case []interface{}:
		return t, true
	default:
		return nil, false
	}
}

package slp

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// maxContainerLen bounds string and container lengths read from a file so a
// corrupt length prefix cannot trigger a huge allocation.
const maxContainerLen = 1 << 24

const (
	// maxDepth bounds container nesting. Decoding recurses per level.
	maxDepth = 64
	// maxValues bounds the number of values in one document. Typed
	// containers of Z, T or F consume no input per element.
	maxValues = 1 << 20
)

var (
	// ErrTooDeep is returned when metadata nests containers past maxDepth.
	ErrTooDeep = errors.New("slp: metadata nested too deeply")
	// ErrTooLarge is returned when metadata holds more than maxValues values.
	ErrTooLarge = errors.New("slp: metadata has too many values")
)

type ubjsonDecoder struct {
	r      *bufio.Reader
	depth  int
	values int
}

func newUBJSONDecoder(r *bufio.Reader) *ubjsonDecoder {
	return &ubjsonDecoder{r: r}
}

func (d *ubjsonDecoder) decodeValue() (interface{}, error) {
	marker, err := d.readMarker()
	if err != nil {
		return nil, err
	}
	return d.decodeTyped(marker)
}

func (d *ubjsonDecoder) readMarker() (byte, error) {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != 'N' {
			return b, nil
		}
	}
}

func (d *ubjsonDecoder) decodeTyped(marker byte) (interface{}, error) {
	d.values++
	if d.values > maxValues {
		return nil, ErrTooLarge
	}
	switch marker {
	case 'Z':
		return nil, nil
	case 'T':
		return true, nil
	case 'F':
		return false, nil
	case 'i', 'U', 'I', 'l', 'L':
		return d.readInt(marker)
	case 'd':
		var buf [4]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return nil, err
		}
		return float64(math.Float32frombits(binary.BigEndian.Uint32(buf[:]))), nil
	case 'D':
		var buf [8]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(buf[:])), nil
	case 'C':
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		return string(rune(b)), nil
	case 'S', 'H':
		return d.readString()
	case '[', '{':
		if d.depth >= maxDepth {
			return nil, ErrTooDeep
		}
		d.depth++
		defer func() { d.depth-- }()
		if marker == '[' {
			return d.readArray()
		}
		return d.readObject()
	default:
		return nil, fmt.Errorf("ubjson: unexpected marker 0x%02x", marker)
	}
}

func (d *ubjsonDecoder) readInt(marker byte) (int64, error) {
	switch marker {
	case 'i':
		b, err := d.r.ReadByte()
		return int64(int8(b)), err
	case 'U':
		b, err := d.r.ReadByte()
		return int64(b), err
	case 'I':
		var buf [2]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return 0, err
		}
		return int64(int16(binary.BigEndian.Uint16(buf[:]))), nil
	case 'l':
		var buf [4]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return 0, err
		}
		return int64(int32(binary.BigEndian.Uint32(buf[:]))), nil
	case 'L':
		var buf [8]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return 0, err
		}
		return int64(binary.BigEndian.Uint64(buf[:])), nil
	default:
		return 0, fmt.Errorf("ubjson: marker 0x%02x is not an integer", marker)
	}
}

func (d *ubjsonDecoder) readLength() (int, error) {
	marker, err := d.readMarker()
	if err != nil {
		return 0, err
	}
	n, err := d.readInt(marker)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > maxContainerLen {
		return 0, fmt.Errorf("ubjson: invalid length %d", n)
	}
	return int(n), nil
}

func (d *ubjsonDecoder) readString() (string, error) {
	n, err := d.readLength()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// readHeader handles the optimized container form: [$<type>][#<count>].
func (d *ubjsonDecoder) readHeader() (elemType byte, count int, err error) {
	count = -1
	next, err := d.r.Peek(1)
	if err != nil {
		return 0, 0, err
	}
	if next[0] == '$' {
		_, _ = d.r.ReadByte()
		if elemType, err = d.r.ReadByte(); err != nil {
			return 0, 0, err
		}
		next, err = d.r.Peek(1)
		if err != nil {
			return 0, 0, err
		}
		if next[0] != '#' {
			return 0, 0, fmt.Errorf("ubjson: typed container without count")
		}
	}
	if next[0] == '#' {
		_, _ = d.r.ReadByte()
		if count, err = d.readLength(); err != nil {
			return 0, 0, err
		}
	}
	return elemType, count, nil
}

func (d *ubjsonDecoder) readArray() ([]interface{}, error) {
	elemType, count, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	var out []interface{}
	if count >= 0 {
		out = make([]interface{}, 0, minInt(count, 1024))
		for i := 0; i < count; i++ {
			v, err := d.element(elemType)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	for {
		marker, err := d.readMarker()
		if err != nil {
			return nil, err
		}
		if marker == ']' {
			return out, nil
		}
		v, err := d.decodeTyped(marker)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func (d *ubjsonDecoder) readObject() (map[string]interface{}, error) {
	elemType, count, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if count >= 0 {
		for i := 0; i < count; i++ {
			key, err := d.readString()
			if err != nil {
				return nil, err
			}
			v, err := d.element(elemType)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil
	}
	for {
		next, err := d.r.Peek(1)
		if err != nil {
			return nil, err
		}
		if next[0] == '}' {
			_, _ = d.r.ReadByte()
			return out, nil
		}
		key, err := d.readString()
		if err != nil {
			return nil, err
		}
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
}

func (d *ubjsonDecoder) element(elemType byte) (interface{}, error) {
	if elemType == 0 {
		return d.decodeValue()
	}
	return d.decodeTyped(elemType)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Package binfmt packs and unpacks fixed layout binary records described by
// compact descriptors such as ">HHH" or ">IHHH".
//
// A descriptor starts with an optional byte order character followed by field
// codes, each optionally preceded by a decimal repeat count:
//
//	>  !      big endian (default)
//	<  =  @   little endian
//
//	x   pad byte (no value)
//	b B int8, uint8
//	?   bool
//	h H int16, uint16
//	i I int32, uint32 (l and L are aliases)
//	q Q int64, uint64
//	f d float32, float64
//	s   byte string; the count is its length and it holds a single []byte
package binfmt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrBadDescriptor = errors.New("binfmt: bad descriptor")
	ErrArgCount      = errors.New("binfmt: wrong number of values")
	ErrShortBuffer   = errors.New("binfmt: buffer too short")
	ErrValueRange    = errors.New("binfmt: value out of range")
)

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

type field struct {
	code  byte
	count int
}

// Format is a parsed descriptor.
type Format struct {
	desc  string
	order byteOrder
	items []field
	size  int
	vals  int
}

var codeSize = map[byte]int{
	'x': 1, 'b': 1, 'B': 1, '?': 1, 's': 1,
	'h': 2, 'H': 2,
	'i': 4, 'I': 4, 'l': 4, 'L': 4, 'f': 4,
	'q': 8, 'Q': 8, 'd': 8,
}

// Parse parses a descriptor.
func Parse(desc string) (Format, error) {
	f := Format{desc: desc, order: binary.BigEndian}
	s := desc
	if len(s) > 0 {
		switch s[0] {
		case '>', '!':
			s = s[1:]
		case '<', '=', '@':
			f.order = binary.LittleEndian
			s = s[1:]
		}
	}
	for len(s) > 0 {
		n, digits := 0, 0
		for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
			n = n*10 + int(s[digits]-'0')
			digits++
		}
		if digits == len(s) {
			return Format{}, fmt.Errorf("%w: %q: count without code", ErrBadDescriptor, desc)
		}
		if digits == 0 {
			n = 1
		}
		c := s[digits]
		s = s[digits+1:]
		if c == ' ' && digits == 0 {
			continue
		}
		sz, ok := codeSize[c]
		if !ok {
			return Format{}, fmt.Errorf("%w: %q: unknown code %q", ErrBadDescriptor, desc, c)
		}
		f.items = append(f.items, field{code: c, count: n})
		f.size += sz * n
		switch c {
		case 'x':
		case 's':
			f.vals++
		default:
			f.vals += n
		}
	}
	return f, nil
}

// MustParse is like Parse but panics on error. It is meant for descriptors
// declared as package level variables.
func MustParse(desc string) Format {
	f, err := Parse(desc)
	if err != nil {
		panic(err)
	}
	return f
}

// String returns the descriptor f was parsed from.
func (f Format) String() string {
	return f.desc
}

// Size returns the number of bytes of a packed record.
func (f Format) Size() int {
	return f.size
}

// NumValues returns the number of values of a record.
func (f Format) NumValues() int {
	return f.vals
}

// Pack encodes values according to the format.
func (f Format) Pack(values ...any) ([]byte, error) {
	if len(values) != f.vals {
		return nil, fmt.Errorf("%w: %q wants %d, got %d", ErrArgCount, f.desc, f.vals, len(values))
	}
	b := make([]byte, 0, f.size)
	vi := 0
	for _, it := range f.items {
		switch it.code {
		case 'x':
			b = append(b, make([]byte, it.count)...)
			continue
		case 's':
			s, err := toBytes(values[vi])
			if err != nil {
				return nil, err
			}
			pad := make([]byte, it.count)
			copy(pad, s)
			b = append(b, pad...)
			vi++
			continue
		}
		for i := 0; i < it.count; i++ {
			var err error
			if b, err = f.appendValue(b, it.code, values[vi]); err != nil {
				return nil, fmt.Errorf("value %d: %w", vi, err)
			}
			vi++
		}
	}
	return b, nil
}

func (f Format) appendValue(b []byte, code byte, v any) ([]byte, error) {
	switch code {
	case '?':
		t, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not a bool", ErrValueRange, v)
		}
		if t {
			return append(b, 1), nil
		}
		return append(b, 0), nil
	case 'f':
		x, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return f.order.AppendUint32(b, math.Float32bits(float32(x))), nil
	case 'd':
		x, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return f.order.AppendUint64(b, math.Float64bits(x)), nil
	case 'b', 'h', 'i', 'l', 'q':
		bits := codeSize[code] * 8
		x, err := toInt(v)
		if err != nil {
			return nil, err
		}
		if bits < 64 && (x < -(1<<(bits-1)) || x >= 1<<(bits-1)) {
			return nil, fmt.Errorf("%w: %d does not fit %c", ErrValueRange, x, code)
		}
		return f.appendUint(b, bits, uint64(x)), nil
	default: // B H I L Q
		bits := codeSize[code] * 8
		x, err := toUint(v)
		if err != nil {
			return nil, err
		}
		if bits < 64 && x >= 1<<bits {
			return nil, fmt.Errorf("%w: %d does not fit %c", ErrValueRange, x, code)
		}
		return f.appendUint(b, bits, x), nil
	}
}

func (f Format) appendUint(b []byte, bits int, x uint64) []byte {
	switch bits {
	case 8:
		return append(b, byte(x))
	case 16:
		return f.order.AppendUint16(b, uint16(x))
	case 32:
		return f.order.AppendUint32(b, uint32(x))
	}
	return f.order.AppendUint64(b, x)
}

// Unpack decodes a record. data must hold at least Size bytes; extra bytes
// are ignored.
func (f Format) Unpack(data []byte) ([]any, error) {
	if len(data) < f.size {
		return nil, fmt.Errorf("%w: %q needs %d bytes, got %d", ErrShortBuffer, f.desc, f.size, len(data))
	}
	out := make([]any, 0, f.vals)
	o := f.order
	p := 0
	for _, it := range f.items {
		switch it.code {
		case 'x':
			p += it.count
			continue
		case 's':
			s := make([]byte, it.count)
			copy(s, data[p:p+it.count])
			out = append(out, s)
			p += it.count
			continue
		}
		for i := 0; i < it.count; i++ {
			d := data[p:]
			switch it.code {
			case 'b':
				out = append(out, int8(d[0]))
			case 'B':
				out = append(out, d[0])
			case '?':
				out = append(out, d[0] != 0)
			case 'h':
				out = append(out, int16(o.Uint16(d)))
			case 'H':
				out = append(out, o.Uint16(d))
			case 'i', 'l':
				out = append(out, int32(o.Uint32(d)))
			case 'I', 'L':
				out = append(out, o.Uint32(d))
			case 'q':
				out = append(out, int64(o.Uint64(d)))
			case 'Q':
				out = append(out, o.Uint64(d))
			case 'f':
				out = append(out, math.Float32frombits(o.Uint32(d)))
			case 'd':
				out = append(out, math.Float64frombits(o.Uint64(d)))
			}
			p += codeSize[it.code]
		}
	}
	return out, nil
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			break
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			break
		}
		return int64(x), nil
	default:
		return 0, fmt.Errorf("%w: %T is not an integer", ErrValueRange, v)
	}
	return 0, fmt.Errorf("%w: %v", ErrValueRange, v)
}

func toUint(v any) (uint64, error) {
	switch x := v.(type) {
	case uint:
		return uint64(x), nil
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	}
	i, err := toInt(v)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, fmt.Errorf("%w: %d is negative", ErrValueRange, i)
	}
	return uint64(i), nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	}
	i, err := toInt(v)
	if err != nil {
		return 0, err
	}
	return float64(i), nil
}

func toBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	}
	return nil, fmt.Errorf("%w: %T is not a byte string", ErrValueRange, v)
}

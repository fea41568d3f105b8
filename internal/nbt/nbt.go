// Package nbt decodes the Minecraft named-binary-tag format that item
// payloads are serialized in: big-endian scalars, length-prefixed
// strings, typed lists, compounds and the fixed-width array tags.
package nbt

import (
	"errors"
	"fmt"
	"math"
)

// Tag type ids as they appear on the wire.
const (
	tagEnd byte = iota
	tagByte
	tagShort
	tagInt
	tagLong
	tagFloat
	tagDouble
	tagByteArray
	tagString
	tagList
	tagCompound
	tagIntArray
	tagLongArray
)

// maxDepth bounds compound/list nesting so malformed input can not
// recurse without limit.
const maxDepth = 64

var ErrTruncated = errors.New("nbt: truncated input")

// Compound is a decoded TAG_Compound. Values are int8, int16, int32,
// int64, float32, float64, string, []byte, []int32, []int64, []any
// (lists) or nested Compound depending on the wire tag type.
type Compound map[string]any

// Decode parses an uncompressed NBT document. The root tag must be a
// compound; its name is discarded.
func Decode(data []byte) (Compound, error) {
	d := &decoder{data: data}

	typ, err := d.readByte()
	if err != nil {
		return nil, err
	}
	if typ != tagCompound {
		return nil, fmt.Errorf("nbt: root tag type %d, want compound", typ)
	}
	if _, err := d.readString(); err != nil {
		return nil, err
	}

	root, err := d.readCompound(0)
	if err != nil {
		return nil, err
	}
	return root, nil
}

// GetCompound returns the named child compound.
func (c Compound) GetCompound(name string) (Compound, bool) {
	v, ok := c[name].(Compound)
	return v, ok
}

// GetString returns the named string tag.
func (c Compound) GetString(name string) (string, bool) {
	v, ok := c[name].(string)
	return v, ok
}

// GetList returns the named list tag.
func (c Compound) GetList(name string) ([]any, bool) {
	v, ok := c[name].([]any)
	return v, ok
}

// GetInt returns the named integral tag widened to int64. It accepts
// byte, short, int and long tags.
func (c Compound) GetInt(name string) (int64, bool) {
	switch v := c[name].(type) {
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) remaining() int {
	return len(d.data) - d.pos
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || n > d.remaining() {
		return nil, ErrTruncated
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) readByte() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) readUint16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

func (d *decoder) readInt32() (int32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return int32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])), nil
}

func (d *decoder) readInt64() (int64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	v := uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
	return int64(v), nil
}

// readString reads a length-prefixed string. The payload is the
// Java-modified UTF-8 encoding, close enough to UTF-8 for every field
// this pipeline reads.
func (d *decoder) readString() (string, error) {
	n, err := d.readUint16()
	if err != nil {
		return "", err
	}
	b, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) readCompound(depth int) (Compound, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("nbt: nesting exceeds %d levels", maxDepth)
	}
	c := Compound{}
	for {
		typ, err := d.readByte()
		if err != nil {
			return nil, err
		}
		if typ == tagEnd {
			return c, nil
		}
		name, err := d.readString()
		if err != nil {
			return nil, err
		}
		v, err := d.readValue(typ, depth)
		if err != nil {
			return nil, err
		}
		c[name] = v
	}
}

func (d *decoder) readList(depth int) ([]any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("nbt: nesting exceeds %d levels", maxDepth)
	}
	elemType, err := d.readByte()
	if err != nil {
		return nil, err
	}
	n, err := d.readInt32()
	if err != nil {
		return nil, err
	}
	// Empty lists are written with a TAG_End element type and a zero
	// or negative length.
	if n <= 0 {
		return []any{}, nil
	}
	if elemType == tagEnd {
		return nil, errors.New("nbt: non-empty list of end tags")
	}
	// Every non-end element occupies at least one byte.
	if int(n) > d.remaining() {
		return nil, ErrTruncated
	}

	list := make([]any, 0, n)
	for i := int32(0); i < n; i++ {
		v, err := d.readValue(elemType, depth)
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, nil
}

func (d *decoder) readValue(typ byte, depth int) (any, error) {
	switch typ {
	case tagByte:
		b, err := d.readByte()
		return int8(b), err
	case tagShort:
		v, err := d.readUint16()
		return int16(v), err
	case tagInt:
		return d.readInt32()
	case tagLong:
		return d.readInt64()
	case tagFloat:
		v, err := d.readInt32()
		return math.Float32frombits(uint32(v)), err
	case tagDouble:
		v, err := d.readInt64()
		return math.Float64frombits(uint64(v)), err
	case tagByteArray:
		n, err := d.readInt32()
		if err != nil {
			return nil, err
		}
		return d.take(int(n))
	case tagString:
		return d.readString()
	case tagList:
		return d.readList(depth + 1)
	case tagCompound:
		return d.readCompound(depth + 1)
	case tagIntArray:
		n, err := d.readInt32()
		if err != nil {
			return nil, err
		}
		b, err := d.take(int(n) * 4)
		if err != nil {
			return nil, err
		}
		arr := make([]int32, n)
		for i := range arr {
			off := i * 4
			arr[i] = int32(uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3]))
		}
		return arr, nil
	case tagLongArray:
		n, err := d.readInt32()
		if err != nil {
			return nil, err
		}
		b, err := d.take(int(n) * 8)
		if err != nil {
			return nil, err
		}
		arr := make([]int64, n)
		for i := range arr {
			off := i * 8
			v := uint64(b[off])<<56 | uint64(b[off+1])<<48 | uint64(b[off+2])<<40 | uint64(b[off+3])<<32 |
				uint64(b[off+4])<<24 | uint64(b[off+5])<<16 | uint64(b[off+6])<<8 | uint64(b[off+7])
			arr[i] = int64(v)
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("nbt: unknown tag type %d", typ)
	}
}

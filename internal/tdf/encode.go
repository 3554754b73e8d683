package tdf

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode serializes a single self-describing value: its type byte followed
// by its body.
func Encode(v Value) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value", ErrInvalidValue)
	}
	e := encoder{}
	e.buf = append(e.buf, byte(v.Type()))
	if err := e.value(v); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// EncodePayload serializes a packet body: the fields of s with no trailing
// end marker.
func EncodePayload(s *Struct) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	e := encoder{}
	if err := e.fields(s); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// MustEncodePayload is EncodePayload for bodies built from constant labels.
func MustEncodePayload(s *Struct) []byte {
	b, err := EncodePayload(s)
	if err != nil {
		panic(err)
	}
	return b
}

type encoder struct {
	buf []byte
}

func (e *encoder) fields(s *Struct) error {
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if _, dup := seen[f.Label]; dup {
			return fmt.Errorf("%w: duplicate label %q", ErrInvalidValue, f.Label)
		}
		seen[f.Label] = struct{}{}
		if err := e.labelled(f.Label, f.Value); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) labelled(label string, v Value) error {
	if v == nil {
		return fmt.Errorf("%w: nil value for %q", ErrInvalidValue, label)
	}
	tag, err := PackLabel(label)
	if err != nil {
		return err
	}
	e.buf = append(e.buf, tag[:]...)
	e.buf = append(e.buf, byte(v.Type()))
	if err := e.value(v); err != nil {
		return fmt.Errorf("field %s: %w", label, err)
	}
	return nil
}

func (e *encoder) value(v Value) error {
	switch val := v.(type) {
	case Integer:
		e.buf = appendVarint(e.buf, val)
	case Float32:
		e.buf = binary.BigEndian.AppendUint32(e.buf, math.Float32bits(float32(val)))
	case Float64:
		e.buf = binary.BigEndian.AppendUint64(e.buf, math.Float64bits(float64(val)))
	case String:
		e.buf = appendUvarint(e.buf, uint64(len(val))+1)
		e.buf = append(e.buf, val...)
		e.buf = append(e.buf, 0)
	case Blob:
		e.buf = appendUvarint(e.buf, uint64(len(val)))
		e.buf = append(e.buf, val...)
	case *Struct:
		if err := e.fields(val); err != nil {
			return err
		}
		e.buf = append(e.buf, 0)
	case *List:
		if !val.Elem.Valid() {
			return fmt.Errorf("%w: list element type 0x%x", ErrInvalidValue, byte(val.Elem))
		}
		e.buf = append(e.buf, byte(val.Elem))
		e.buf = appendUvarint(e.buf, uint64(len(val.Items)))
		for i, item := range val.Items {
			if item == nil || item.Type() != val.Elem {
				return fmt.Errorf("%w: list item %d is not %s", ErrInvalidValue, i, val.Elem)
			}
			if err := e.value(item); err != nil {
				return err
			}
		}
	case *Map:
		if !val.Key.Valid() || !val.Elem.Valid() {
			return fmt.Errorf("%w: map types 0x%x/0x%x", ErrInvalidValue, byte(val.Key), byte(val.Elem))
		}
		e.buf = append(e.buf, byte(val.Key), byte(val.Elem))
		e.buf = appendUvarint(e.buf, uint64(len(val.Entries)))
		for i, entry := range val.Entries {
			if entry.Key == nil || entry.Key.Type() != val.Key {
				return fmt.Errorf("%w: map key %d is not %s", ErrInvalidValue, i, val.Key)
			}
			if entry.Value == nil || entry.Value.Type() != val.Elem {
				return fmt.Errorf("%w: map value %d is not %s", ErrInvalidValue, i, val.Elem)
			}
			if err := e.value(entry.Key); err != nil {
				return err
			}
			if err := e.value(entry.Value); err != nil {
				return err
			}
		}
	case Union:
		if !val.IsSet() {
			e.buf = append(e.buf, UnionUnset)
			return nil
		}
		e.buf = append(e.buf, val.Key)
		return e.labelled(val.Label, val.Value)
	case VarIntList:
		e.buf = appendUvarint(e.buf, uint64(len(val)))
		for _, i := range val {
			e.buf = appendVarint(e.buf, i)
		}
	case Pair:
		e.buf = appendVarint(e.buf, val[0])
		e.buf = appendVarint(e.buf, val[1])
	case Triple:
		e.buf = appendVarint(e.buf, val[0])
		e.buf = appendVarint(e.buf, val[1])
		e.buf = appendVarint(e.buf, val[2])
	default:
		return fmt.Errorf("%w: unsupported value %T", ErrInvalidValue, v)
	}
	return nil
}

package tdf

import (
	"bytes"
	"math"
	"sort"
)

// Value is one node of a tagged value tree. The concrete types are Integer,
// Float32, Float64, String, Blob, *List, *Map, *Struct, Union, VarIntList,
// Pair and Triple.
type Value interface {
	Type() Type
	isValue()
}

// Integer is a variable-width integer. The wire format carries a sign bit and
// an unsigned magnitude, so both int64 and uint64 values fit.
type Integer struct {
	Magnitude uint64
	Negative  bool
}

// Int creates an Integer from a signed value.
func Int(v int64) Integer {
	if v >= 0 {
		return Integer{Magnitude: uint64(v)}
	}
	return Integer{Magnitude: uint64(-(v + 1)) + 1, Negative: true}
}

// Uint creates an Integer from an unsigned value.
func Uint(v uint64) Integer {
	return Integer{Magnitude: v}
}

// Bool creates an Integer holding 0 or 1.
func Bool(v bool) Integer {
	if v {
		return Integer{Magnitude: 1}
	}
	return Integer{}
}

// Int64 returns the value as int64, wrapping on overflow.
func (i Integer) Int64() int64 {
	if i.Negative {
		return -int64(i.Magnitude)
	}
	return int64(i.Magnitude)
}

// Uint64 returns the magnitude, or 0 for negative values.
func (i Integer) Uint64() uint64 {
	if i.Negative {
		return 0
	}
	return i.Magnitude
}

// Float32 is a 4-byte big-endian float.
type Float32 float32

// Float64 is an 8-byte big-endian float.
type Float64 float64

// String is a UTF-8 string. The wire form appends a NUL terminator.
type String string

// Blob is an opaque byte sequence.
type Blob []byte

// List is a homogeneous sequence of values of type Elem.
type List struct {
	Elem  Type
	Items []Value
}

// Entry is one key/value pair of a Map.
type Entry struct {
	Key   Value
	Value Value
}

// Map is an ordered list of entries with a fixed key and value type.
type Map struct {
	Key     Type
	Elem    Type
	Entries []Entry
}

// Field is one labelled member of a Struct.
type Field struct {
	Label string
	Value Value
}

// Struct is an ordered sequence of uniquely labelled fields.
type Struct struct {
	Fields []Field
}

// Union selects one labelled variant by a discriminant key. A Union with a
// nil Value is unset and encodes with UnionUnset.
type Union struct {
	Key   uint8
	Label string
	Value Value
}

// VarIntList is a list of integers without per-element type bytes.
type VarIntList []Integer

// Pair is two integers.
type Pair [2]Integer

// Triple is three integers, typically a version or object identifier.
type Triple [3]Integer

func (Integer) Type() Type    { return TypeInteger }
func (Float32) Type() Type    { return TypeFloat32 }
func (Float64) Type() Type    { return TypeFloat64 }
func (String) Type() Type     { return TypeString }
func (Blob) Type() Type       { return TypeBlob }
func (*List) Type() Type      { return TypeList }
func (*Map) Type() Type       { return TypeMap }
func (*Struct) Type() Type    { return TypeStruct }
func (Union) Type() Type      { return TypeUnion }
func (VarIntList) Type() Type { return TypeVarIntList }
func (Pair) Type() Type       { return TypePair }
func (Triple) Type() Type     { return TypeTriple }

func (Integer) isValue()    {}
func (Float32) isValue()    {}
func (Float64) isValue()    {}
func (String) isValue()     {}
func (Blob) isValue()       {}
func (*List) isValue()      {}
func (*Map) isValue()       {}
func (*Struct) isValue()    {}
func (Union) isValue()      {}
func (VarIntList) isValue() {}
func (Pair) isValue()       {}
func (Triple) isValue()     {}

// Unset returns a union with no selected variant.
func Unset() Union {
	return Union{Key: UnionUnset}
}

// IsSet reports whether the union carries a value.
func (u Union) IsSet() bool {
	return u.Key != UnionUnset && u.Value != nil
}

// NewTriple builds a Triple from three unsigned values.
func NewTriple(a, b, c uint64) Triple {
	return Triple{Uint(a), Uint(b), Uint(c)}
}

// StringMap builds a string to string Map ordered by key.
func StringMap(m map[string]string) *Map {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &Map{Key: TypeString, Elem: TypeString, Entries: make([]Entry, 0, len(keys))}
	for _, k := range keys {
		out.Entries = append(out.Entries, Entry{Key: String(k), Value: String(m[k])})
	}
	return out
}

// StringMap converts a string to string Map into a Go map. Later entries
// win on duplicate keys.
func (m *Map) StringMap() (map[string]string, error) {
	if m.Key != TypeString || m.Elem != TypeString {
		return nil, &MalformedError{
			Reason: ReasonTypeMismatch,
			Detail: "expected map<string,string>, got map<" + m.Key.String() + "," + m.Elem.String() + ">",
		}
	}
	out := make(map[string]string, len(m.Entries))
	for _, e := range m.Entries {
		k, kok := e.Key.(String)
		v, vok := e.Value.(String)
		if !kok || !vok {
			return nil, &MalformedError{Reason: ReasonTypeMismatch, Detail: "non-string map entry"}
		}
		out[string(k)] = string(v)
	}
	return out, nil
}

// Equal compares two value trees. Nil and empty slices compare equal and
// floats compare by bit pattern so NaN payloads round-trip.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Type() != b.Type() {
		return false
	}

	switch av := a.(type) {
	case Integer:
		return intEqual(av, b.(Integer))
	case Float32:
		return math.Float32bits(float32(av)) == math.Float32bits(float32(b.(Float32)))
	case Float64:
		return math.Float64bits(float64(av)) == math.Float64bits(float64(b.(Float64)))
	case String:
		return av == b.(String)
	case Blob:
		return bytes.Equal(av, b.(Blob))
	case *List:
		bv := b.(*List)
		if av.Elem != bv.Elem || len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !Equal(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case *Map:
		bv := b.(*Map)
		if av.Key != bv.Key || av.Elem != bv.Elem || len(av.Entries) != len(bv.Entries) {
			return false
		}
		for i := range av.Entries {
			if !Equal(av.Entries[i].Key, bv.Entries[i].Key) || !Equal(av.Entries[i].Value, bv.Entries[i].Value) {
				return false
			}
		}
		return true
	case *Struct:
		bv := b.(*Struct)
		if len(av.Fields) != len(bv.Fields) {
			return false
		}
		for i := range av.Fields {
			if av.Fields[i].Label != bv.Fields[i].Label || !Equal(av.Fields[i].Value, bv.Fields[i].Value) {
				return false
			}
		}
		return true
	case Union:
		bv := b.(Union)
		if av.IsSet() != bv.IsSet() {
			return false
		}
		if !av.IsSet() {
			return true
		}
		return av.Key == bv.Key && av.Label == bv.Label && Equal(av.Value, bv.Value)
	case VarIntList:
		bv := b.(VarIntList)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !intEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Pair:
		bv := b.(Pair)
		return intEqual(av[0], bv[0]) && intEqual(av[1], bv[1])
	case Triple:
		bv := b.(Triple)
		return intEqual(av[0], bv[0]) && intEqual(av[1], bv[1]) && intEqual(av[2], bv[2])
	}
	return false
}

// intEqual treats negative zero as zero, matching the wire form.
func intEqual(a, b Integer) bool {
	if a.Magnitude == 0 && b.Magnitude == 0 {
		return true
	}
	return a == b
}

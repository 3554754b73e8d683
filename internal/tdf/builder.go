package tdf

// Builder constructs a Struct field by field. Labels are checked when the
// result is encoded, not when fields are added.
type Builder struct {
	s *Struct
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{s: &Struct{}}
}

// Value appends an arbitrary value.
func (b *Builder) Value(label string, v Value) *Builder {
	b.s.Fields = append(b.s.Fields, Field{Label: label, Value: v})
	return b
}

// Int appends a signed integer.
func (b *Builder) Int(label string, v int64) *Builder {
	return b.Value(label, Int(v))
}

// Uint appends an unsigned integer.
func (b *Builder) Uint(label string, v uint64) *Builder {
	return b.Value(label, Uint(v))
}

// Bool appends 0 or 1.
func (b *Builder) Bool(label string, v bool) *Builder {
	return b.Value(label, Bool(v))
}

// Str appends a string.
func (b *Builder) Str(label, v string) *Builder {
	return b.Value(label, String(v))
}

// Blob appends raw bytes.
func (b *Builder) Blob(label string, v []byte) *Builder {
	return b.Value(label, Blob(v))
}

// Float32 appends a 4-byte float.
func (b *Builder) Float32(label string, v float32) *Builder {
	return b.Value(label, Float32(v))
}

// Float64 appends an 8-byte float.
func (b *Builder) Float64(label string, v float64) *Builder {
	return b.Value(label, Float64(v))
}

// Struct appends a nested struct filled in by fn.
func (b *Builder) Struct(label string, fn func(*Builder)) *Builder {
	nested := NewBuilder()
	if fn != nil {
		fn(nested)
	}
	return b.Value(label, nested.Build())
}

// List appends a homogeneous list.
func (b *Builder) List(label string, elem Type, items ...Value) *Builder {
	return b.Value(label, &List{Elem: elem, Items: items})
}

// StringMap appends a string to string map ordered by key.
func (b *Builder) StringMap(label string, m map[string]string) *Builder {
	return b.Value(label, StringMap(m))
}

// Pair appends two integers.
func (b *Builder) Pair(label string, x, y uint64) *Builder {
	return b.Value(label, Pair{Uint(x), Uint(y)})
}

// Triple appends three integers.
func (b *Builder) Triple(label string, x, y, z uint64) *Builder {
	return b.Value(label, NewTriple(x, y, z))
}

// Union appends a set union.
func (b *Builder) Union(label string, key uint8, member string, v Value) *Builder {
	return b.Value(label, Union{Key: key, Label: member, Value: v})
}

// UnionUnset appends an unset union.
func (b *Builder) UnionUnset(label string) *Builder {
	return b.Value(label, Unset())
}

// Build returns the constructed struct.
func (b *Builder) Build() *Struct {
	return b.s
}

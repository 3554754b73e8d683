package tdf

import (
	"encoding/binary"
	"math"
)

// Option tunes a decode call.
type Option func(*decoder)

// WithMaxDepth bounds container nesting. Values below 1 select
// DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(d *decoder) {
		if n < 1 {
			n = DefaultMaxDepth
		}
		d.maxDepth = n
	}
}

// Decode reads one self-describing value from the start of b and returns it
// with the number of bytes consumed.
func Decode(b []byte, opts ...Option) (Value, int, error) {
	d := newDecoder(b, opts)
	t, err := d.typeByte()
	if err != nil {
		return nil, d.off, err
	}
	v, err := d.value(t)
	if err != nil {
		return nil, d.off, err
	}
	return v, d.off, nil
}

// DecodePayload reads a packet body: labelled fields running to the end of
// b. A single end marker is accepted only as the last byte.
func DecodePayload(b []byte, opts ...Option) (*Struct, error) {
	d := newDecoder(b, opts)
	if err := d.enter(); err != nil {
		return nil, err
	}
	s := &Struct{}
	seen := map[string]struct{}{}
	for d.off < len(d.buf) {
		if d.buf[d.off] == 0 {
			d.off++
			if d.off != len(d.buf) {
				return nil, malformed(ReasonTrailingData, d.off, "%d bytes after end marker", len(d.buf)-d.off)
			}
			break
		}
		f, err := d.field(seen)
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, f)
	}
	return s, nil
}

type decoder struct {
	buf      []byte
	off      int
	depth    int
	maxDepth int
}

func newDecoder(b []byte, opts []Option) *decoder {
	d := &decoder{buf: b, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *decoder) enter() error {
	d.depth++
	if d.depth > d.maxDepth {
		return malformed(ReasonDepthExceeded, d.off, "nesting deeper than %d", d.maxDepth)
	}
	return nil
}

func (d *decoder) leave() {
	d.depth--
}

func (d *decoder) byte() (byte, error) {
	if d.off >= len(d.buf) {
		return 0, malformed(ReasonTruncated, d.off, "expected 1 byte")
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || n > d.remaining() {
		return nil, malformed(ReasonTruncated, d.off, "need %d bytes, have %d", n, d.remaining())
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) typeByte() (Type, error) {
	start := d.off
	b, err := d.byte()
	if err != nil {
		return 0, err
	}
	t := Type(b)
	if !t.Valid() {
		return 0, malformed(ReasonUnknownType, start, "type byte 0x%02x", b)
	}
	return t, nil
}

func (d *decoder) varint() (Integer, error) {
	start := d.off
	b, err := d.byte()
	if err != nil {
		return Integer{}, err
	}
	mag := uint64(b & 0x3F)
	neg := b&0x40 != 0
	shift := uint(6)
	for b&0x80 != 0 {
		if b, err = d.byte(); err != nil {
			return Integer{}, err
		}
		part := uint64(b & 0x7F)
		if shift >= 64 || (shift > 57 && part>>(64-shift) != 0) {
			return Integer{}, malformed(ReasonOverflow, start, "integer exceeds 64 bits")
		}
		mag |= part << shift
		shift += 7
	}
	if mag == 0 {
		neg = false
	}
	return Integer{Magnitude: mag, Negative: neg}, nil
}

// length reads a non-negative varint and checks it against what is left
// in the buffer, scaled by the minimum size of one element.
func (d *decoder) length(minSize int) (int, error) {
	start := d.off
	v, err := d.varint()
	if err != nil {
		return 0, err
	}
	if v.Negative {
		return 0, malformed(ReasonOverflow, start, "negative length")
	}
	if minSize < 1 {
		minSize = 1
	}
	if v.Magnitude > uint64(d.remaining()/minSize) {
		return 0, malformed(ReasonTruncated, start, "declared %d elements, %d bytes left", v.Magnitude, d.remaining())
	}
	return int(v.Magnitude), nil
}

// minEncodedSize is the smallest body each type can have, used to reject
// counts that cannot possibly fit.
func minEncodedSize(t Type) int {
	switch t {
	case TypeList, TypePair:
		return 2
	case TypeMap, TypeTriple:
		return 3
	case TypeFloat32:
		return 4
	case TypeFloat64:
		return 8
	default:
		return 1
	}
}

func (d *decoder) label() (string, error) {
	start := d.off
	raw, err := d.take(LabelSize)
	if err != nil {
		return "", err
	}
	label, err := UnpackLabel([LabelSize]byte(raw))
	if err != nil {
		return "", malformed(ReasonInvalidLabel, start, "%v", err)
	}
	return label, nil
}

func (d *decoder) field(seen map[string]struct{}) (Field, error) {
	start := d.off
	label, err := d.label()
	if err != nil {
		return Field{}, err
	}
	if _, dup := seen[label]; dup {
		return Field{}, malformed(ReasonDuplicateTag, start, "label %s", label)
	}
	seen[label] = struct{}{}

	t, err := d.typeByte()
	if err != nil {
		return Field{}, err
	}
	v, err := d.value(t)
	if err != nil {
		return Field{}, err
	}
	return Field{Label: label, Value: v}, nil
}

func (d *decoder) value(t Type) (Value, error) {
	switch t {
	case TypeInteger:
		return d.varint()
	case TypeFloat32:
		raw, err := d.take(4)
		if err != nil {
			return nil, err
		}
		return Float32(math.Float32frombits(binary.BigEndian.Uint32(raw))), nil
	case TypeFloat64:
		raw, err := d.take(8)
		if err != nil {
			return nil, err
		}
		return Float64(math.Float64frombits(binary.BigEndian.Uint64(raw))), nil
	case TypeString:
		n, err := d.length(1)
		if err != nil {
			return nil, err
		}
		raw, _ := d.take(n)
		if n > 0 && raw[n-1] == 0 {
			raw = raw[:n-1]
		}
		return String(raw), nil
	case TypeBlob:
		n, err := d.length(1)
		if err != nil {
			return nil, err
		}
		raw, _ := d.take(n)
		return Blob(append([]byte(nil), raw...)), nil
	case TypeStruct:
		return d.structBody()
	case TypeList:
		return d.list()
	case TypeMap:
		return d.mapBody()
	case TypeUnion:
		return d.union()
	case TypeVarIntList:
		n, err := d.length(1)
		if err != nil {
			return nil, err
		}
		out := make(VarIntList, 0, n)
		for i := 0; i < n; i++ {
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case TypePair:
		var p Pair
		for i := range p {
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			p[i] = v
		}
		return p, nil
	case TypeTriple:
		var tr Triple
		for i := range tr {
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			tr[i] = v
		}
		return tr, nil
	}
	return nil, malformed(ReasonUnknownType, d.off, "type 0x%02x", byte(t))
}

func (d *decoder) structBody() (*Struct, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	// Some clients prefix nested structs with a 0x02 marker.
	if d.off < len(d.buf) && d.buf[d.off] == 0x02 {
		d.off++
	}

	s := &Struct{}
	seen := map[string]struct{}{}
	for {
		if d.off >= len(d.buf) {
			return nil, malformed(ReasonTruncated, d.off, "struct missing end marker")
		}
		if d.buf[d.off] == 0 {
			d.off++
			return s, nil
		}
		f, err := d.field(seen)
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, f)
	}
}

func (d *decoder) list() (*List, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	elem, err := d.typeByte()
	if err != nil {
		return nil, err
	}
	n, err := d.length(minEncodedSize(elem))
	if err != nil {
		return nil, err
	}
	l := &List{Elem: elem, Items: make([]Value, 0, n)}
	for i := 0; i < n; i++ {
		v, err := d.value(elem)
		if err != nil {
			return nil, err
		}
		l.Items = append(l.Items, v)
	}
	return l, nil
}

func (d *decoder) mapBody() (*Map, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	key, err := d.typeByte()
	if err != nil {
		return nil, err
	}
	elem, err := d.typeByte()
	if err != nil {
		return nil, err
	}
	n, err := d.length(minEncodedSize(key) + minEncodedSize(elem))
	if err != nil {
		return nil, err
	}
	m := &Map{Key: key, Elem: elem, Entries: make([]Entry, 0, n)}
	for i := 0; i < n; i++ {
		k, err := d.value(key)
		if err != nil {
			return nil, err
		}
		v, err := d.value(elem)
		if err != nil {
			return nil, err
		}
		m.Entries = append(m.Entries, Entry{Key: k, Value: v})
	}
	return m, nil
}

func (d *decoder) union() (Union, error) {
	if err := d.enter(); err != nil {
		return Union{}, err
	}
	defer d.leave()

	key, err := d.byte()
	if err != nil {
		return Union{}, err
	}
	if key == UnionUnset {
		return Unset(), nil
	}
	f, err := d.field(map[string]struct{}{})
	if err != nil {
		return Union{}, err
	}
	return Union{Key: key, Label: f.Label, Value: f.Value}, nil
}

// Package tdf implements the tagged binary value format carried in every
// packet body: a self-describing tree of integers, strings, blobs, lists,
// maps, labelled structs and unions.
package tdf

// Type identifies the wire kind of a value. It is written as a single byte
// after every struct label and before list, map and union contents.
type Type byte

const (
	TypeInteger    Type = 0x0
	TypeString     Type = 0x1
	TypeBlob       Type = 0x2
	TypeStruct     Type = 0x3
	TypeList       Type = 0x4
	TypeMap        Type = 0x5
	TypeUnion      Type = 0x6
	TypeVarIntList Type = 0x7
	TypePair       Type = 0x8
	TypeTriple     Type = 0x9
	TypeFloat32    Type = 0xA
	TypeFloat64    Type = 0xB
)

// UnionUnset is the discriminant written for a union with no value.
const UnionUnset uint8 = 0x7F

// DefaultMaxDepth bounds container nesting during decode.
const DefaultMaxDepth = 32

var typeNames = map[Type]string{
	TypeInteger:    "integer",
	TypeString:     "string",
	TypeBlob:       "blob",
	TypeStruct:     "struct",
	TypeList:       "list",
	TypeMap:        "map",
	TypeUnion:      "union",
	TypeVarIntList: "varint_list",
	TypePair:       "pair",
	TypeTriple:     "triple",
	TypeFloat32:    "float32",
	TypeFloat64:    "float64",
}

// String returns the lowercase name of the type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether t is a known wire type.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

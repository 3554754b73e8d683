package tdf

import "fmt"

// Lookup returns the value stored under label.
func (s *Struct) Lookup(label string) (Value, bool) {
	if s == nil {
		return nil, false
	}
	for _, f := range s.Fields {
		if f.Label == label {
			return f.Value, true
		}
	}
	return nil, false
}

// Has reports whether label is present.
func (s *Struct) Has(label string) bool {
	_, ok := s.Lookup(label)
	return ok
}

// Set replaces the value under label, or appends it.
func (s *Struct) Set(label string, v Value) {
	for i := range s.Fields {
		if s.Fields[i].Label == label {
			s.Fields[i].Value = v
			return
		}
	}
	s.Fields = append(s.Fields, Field{Label: label, Value: v})
}

func missing(label string) error {
	return &MalformedError{Reason: ReasonMissingField, Detail: fmt.Sprintf("field %s", label)}
}

func mismatch(label string, want Type, got Value) error {
	return &MalformedError{
		Reason: ReasonTypeMismatch,
		Detail: fmt.Sprintf("field %s: want %s, got %s", label, want, got.Type()),
	}
}

// Integer returns the integer stored under label.
func (s *Struct) Integer(label string) (Integer, error) {
	v, ok := s.Lookup(label)
	if !ok {
		return Integer{}, missing(label)
	}
	i, ok := v.(Integer)
	if !ok {
		return Integer{}, mismatch(label, TypeInteger, v)
	}
	return i, nil
}

// GetUint returns a non-negative integer field.
func (s *Struct) GetUint(label string) (uint64, error) {
	i, err := s.Integer(label)
	if err != nil {
		return 0, err
	}
	if i.Negative {
		return 0, &MalformedError{Reason: ReasonOverflow, Detail: fmt.Sprintf("field %s is negative", label)}
	}
	return i.Magnitude, nil
}

// GetInt returns a signed integer field.
func (s *Struct) GetInt(label string) (int64, error) {
	i, err := s.Integer(label)
	if err != nil {
		return 0, err
	}
	return i.Int64(), nil
}

// GetBool returns an integer field as a bool.
func (s *Struct) GetBool(label string) (bool, error) {
	i, err := s.Integer(label)
	if err != nil {
		return false, err
	}
	return i.Magnitude != 0, nil
}

// GetString returns a string field.
func (s *Struct) GetString(label string) (string, error) {
	v, ok := s.Lookup(label)
	if !ok {
		return "", missing(label)
	}
	str, ok := v.(String)
	if !ok {
		return "", mismatch(label, TypeString, v)
	}
	return string(str), nil
}

// GetBlob returns a blob field.
func (s *Struct) GetBlob(label string) ([]byte, error) {
	v, ok := s.Lookup(label)
	if !ok {
		return nil, missing(label)
	}
	b, ok := v.(Blob)
	if !ok {
		return nil, mismatch(label, TypeBlob, v)
	}
	return b, nil
}

// GetStruct returns a nested struct field.
func (s *Struct) GetStruct(label string) (*Struct, error) {
	v, ok := s.Lookup(label)
	if !ok {
		return nil, missing(label)
	}
	n, ok := v.(*Struct)
	if !ok {
		return nil, mismatch(label, TypeStruct, v)
	}
	return n, nil
}

// GetList returns a list field.
func (s *Struct) GetList(label string) (*List, error) {
	v, ok := s.Lookup(label)
	if !ok {
		return nil, missing(label)
	}
	l, ok := v.(*List)
	if !ok {
		return nil, mismatch(label, TypeList, v)
	}
	return l, nil
}

// GetMap returns a map field.
func (s *Struct) GetMap(label string) (*Map, error) {
	v, ok := s.Lookup(label)
	if !ok {
		return nil, missing(label)
	}
	m, ok := v.(*Map)
	if !ok {
		return nil, mismatch(label, TypeMap, v)
	}
	return m, nil
}

// GetStringMap returns a map<string,string> field as a Go map.
func (s *Struct) GetStringMap(label string) (map[string]string, error) {
	m, err := s.GetMap(label)
	if err != nil {
		return nil, err
	}
	return m.StringMap()
}

// GetFloat returns a Float32 or Float64 field widened to float64.
func (s *Struct) GetFloat(label string) (float64, error) {
	v, ok := s.Lookup(label)
	if !ok {
		return 0, missing(label)
	}
	switch f := v.(type) {
	case Float32:
		return float64(f), nil
	case Float64:
		return float64(f), nil
	}
	return 0, mismatch(label, TypeFloat64, v)
}

// UintOr returns the unsigned field under label, or def when it is absent.
// A present field of the wrong type is still an error.
func (s *Struct) UintOr(label string, def uint64) (uint64, error) {
	if !s.Has(label) {
		return def, nil
	}
	return s.GetUint(label)
}

// StringOr returns the string field under label, or def when it is absent.
func (s *Struct) StringOr(label, def string) (string, error) {
	if !s.Has(label) {
		return def, nil
	}
	return s.GetString(label)
}

package tdf

import (
	"errors"
	"fmt"
)

// ErrMalformed matches every decode failure via errors.Is.
var ErrMalformed = errors.New("tdf: malformed payload")

// ErrInvalidValue is returned when a programmatically built value cannot be
// encoded (bad label, heterogeneous list, wrong union discriminant).
var ErrInvalidValue = errors.New("tdf: invalid value")

// Reason classifies a malformed payload.
type Reason int

const (
	ReasonTruncated Reason = iota + 1
	ReasonUnknownType
	ReasonDuplicateTag
	ReasonDepthExceeded
	ReasonOverflow
	ReasonInvalidLabel
	ReasonTypeMismatch
	ReasonMissingField
	ReasonTrailingData
)

var reasonNames = map[Reason]string{
	ReasonTruncated:     "truncated",
	ReasonUnknownType:   "unknown tag",
	ReasonDuplicateTag:  "duplicate tag",
	ReasonDepthExceeded: "depth exceeded",
	ReasonOverflow:      "overflow",
	ReasonInvalidLabel:  "invalid label",
	ReasonTypeMismatch:  "type mismatch",
	ReasonMissingField:  "missing field",
	ReasonTrailingData:  "trailing data",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// MalformedError describes why a payload could not be decoded.
type MalformedError struct {
	Reason Reason
	Offset int
	Detail string
}

func (e *MalformedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("tdf: malformed payload (%s) at offset %d", e.Reason, e.Offset)
	}
	return fmt.Sprintf("tdf: malformed payload (%s) at offset %d: %s", e.Reason, e.Offset, e.Detail)
}

// Is lets errors.Is(err, ErrMalformed) match any MalformedError.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

func malformed(reason Reason, offset int, format string, args ...interface{}) *MalformedError {
	return &MalformedError{
		Reason: reason,
		Offset: offset,
		Detail: fmt.Sprintf(format, args...),
	}
}

// ReasonOf extracts the malformed reason from err, or 0 if err is not a
// MalformedError.
func ReasonOf(err error) Reason {
	var me *MalformedError
	if errors.As(err, &me) {
		return me.Reason
	}
	return 0
}

package atom

import (
	"errors"
	"fmt"
)

var (
	ErrCRCMismatch    = errors.New("atom crc mismatch")
	ErrMalformedField = errors.New("malformed field")
)

// CRCError reports an atom whose stored checksum disagrees with its content.
type CRCError struct {
	Index    int
	Type     Type
	Stored   uint16
	Computed uint16
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("crc mismatch in atom %d (%s): stored %#04x, computed %#04x",
		e.Index, e.Type, e.Stored, e.Computed)
}

func (e *CRCError) Is(target error) bool {
	return target == ErrCRCMismatch
}

// FieldError reports a field whose stored value cannot be decoded.
// Pin is -1 for fields that do not belong to a single GPIO pin.
type FieldError struct {
	Field  string
	Pin    int
	Value  int
	Reason string
}

func (e *FieldError) Error() string {
	if e.Pin >= 0 {
		return fmt.Sprintf("malformed field %s on pin %d: %s", e.Field, e.Pin, e.Reason)
	}
	return fmt.Sprintf("malformed field %s: %s", e.Field, e.Reason)
}

func (e *FieldError) Is(target error) bool {
	return target == ErrMalformedField
}

func outOfRange(field string, pin int, value uint8) *FieldError {
	return &FieldError{
		Field:  field,
		Pin:    pin,
		Value:  int(value),
		Reason: fmt.Sprintf("value %d out of range", value),
	}
}

package fault

import (
	"errors"
	"fmt"
)

// Kind classifies why a record left the pipeline without being uploaded.
type Kind string

const (
	Parse          Kind = "parse"
	Classification Kind = "classification"
	Mapping        Kind = "mapping"
	Assembly       Kind = "assembly"
)

// Fault is a per-record failure. It is reported, never fatal to the stream.
type Fault struct {
	Kind   Kind
	Field  string
	Reason string
}

func (f *Fault) Error() string {
	if f.Field != "" {
		return fmt.Sprintf("%s fault: %s: %s", f.Kind, f.Field, f.Reason)
	}
	return fmt.Sprintf("%s fault: %s", f.Kind, f.Reason)
}

func New(kind Kind, reason string) *Fault {
	return &Fault{Kind: kind, Reason: reason}
}

func Newf(kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Field builds a mapping fault for a single property.
func Field(name string, reason string) *Fault {
	return &Fault{Kind: Mapping, Field: name, Reason: reason}
}

// As extracts a *Fault from err, if any.
func As(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

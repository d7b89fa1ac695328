package domain

import "fmt"

// MissingVariableError reports a variable or attribute the source dataset
// does not carry. Attributes are named "<variable>.<attribute>".
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("missing variable %q", e.Name)
}

// IndexOutOfBoundsError reports a coordinate the classification grid does
// not cover.
type IndexOutOfBoundsError struct {
	Lon float64
	Lat float64
}

func (e *IndexOutOfBoundsError) Error() string {
	return fmt.Sprintf("basin grid does not cover lon=%s lat=%s", FormatCoord(e.Lon), FormatCoord(e.Lat))
}

// MalformedAttributeError reports an attribute that is present but not
// string-typed.
type MalformedAttributeError struct {
	Variable  string
	Attribute string
}

func (e *MalformedAttributeError) Error() string {
	return fmt.Sprintf("attribute %s.%s is not a string", e.Variable, e.Attribute)
}

// StorageWriteError wraps a failure surfaced by a record store.
type StorageWriteError struct {
	Op  string
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// DuplicateLocationError reports two grid points that resolved to the same
// identity within one batch.
type DuplicateLocationError struct {
	ID string
}

func (e *DuplicateLocationError) Error() string {
	return fmt.Sprintf("duplicate location id %q", e.ID)
}

package zms

import "fmt"

// UnsupportedVersionError reports an identifier tag that does not match any
// of the four known revisions.
type UnsupportedVersionError struct {
	Identifier string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("zms: unsupported version %q", e.Identifier)
}

// TruncatedInputError reports a stream that ended before a required field.
// The format stores no lengths up front, so a short read is the only
// truncation signal available.
type TruncatedInputError struct {
	Field string
	Err   error
}

func (e *TruncatedInputError) Error() string {
	return fmt.Sprintf("zms: truncated input reading %s: %v", e.Field, e.Err)
}

func (e *TruncatedInputError) Unwrap() error {
	return e.Err
}

// CapacityExceededError reports a count that does not fit the count-field
// width of the target revision. It is raised before any byte is written.
type CapacityExceededError struct {
	Field string
	Count int
	Limit uint32
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("zms: %s count %d exceeds revision limit %d", e.Field, e.Count, e.Limit)
}

// DanglingFaceIndexError reports a face referencing a vertex index at or
// beyond the vertex count.
type DanglingFaceIndexError struct {
	Face        int
	Index       uint32
	VertexCount int
}

func (e *DanglingFaceIndexError) Error() string {
	return fmt.Sprintf("zms: face %d references vertex %d of %d", e.Face, e.Index, e.VertexCount)
}

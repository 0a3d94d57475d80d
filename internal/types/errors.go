package types

import "fmt"

// MalformedRecordError represents a single row failing schema validation.
// The row is dropped and the run continues.
type MalformedRecordError struct {
	Source  Source
	Row     int
	Message string
	Cause   error
}

func (e *MalformedRecordError) Error() string {
	where := string(e.Source)
	if e.Row > 0 {
		where = fmt.Sprintf("%s row %d", e.Source, e.Row)
	}
	if e.Cause != nil {
		return fmt.Sprintf("malformed record (%s): %s: %v", where, e.Message, e.Cause)
	}
	return fmt.Sprintf("malformed record (%s): %s", where, e.Message)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Cause
}

package report

import "fmt"

// TemplateError represents an error parsing or executing the HTML brief template
type TemplateError struct {
	Message string
	Cause   error
}

func (e *TemplateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("template error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("template error: %s", e.Message)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// WriteError represents a failure writing a report to its destination
type WriteError struct {
	Format  string
	Message string
	Cause   error
}

func (e *WriteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s report: %s: %v", e.Format, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s report: %s", e.Format, e.Message)
}

func (e *WriteError) Unwrap() error {
	return e.Cause
}

package crawling

import "fmt"

// LinkExtractionError reports that a verified page could not be scanned for
// same-site links. Contact extraction falls back to the page itself.
type LinkExtractionError struct {
	BaseURL string
	Message string
	Cause   error
}

func (e *LinkExtractionError) Error() string {
	msg := e.Message
	if e.BaseURL != "" {
		msg = e.BaseURL + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("link discovery failed for %s: %v", msg, e.Cause)
	}
	return fmt.Sprintf("link discovery failed for %s", msg)
}

func (e *LinkExtractionError) Unwrap() error {
	return e.Cause
}

// Package sources defines the contract shared by the registry adapters.
package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/sponsor-leads/internal/types"
)

// ErrSourceUnavailable is matched by every UnavailableError.
var ErrSourceUnavailable = errors.New("source unavailable")

// UnavailableError reports that an adapter could not reach its upstream.
// The pipeline skips that stream for the run.
type UnavailableError struct {
	Source  types.Source
	Message string
	Cause   error
}

func (e *UnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s unavailable: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s unavailable: %s", e.Source, e.Message)
}

func (e *UnavailableError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrSourceUnavailable}
	}
	return []error{ErrSourceUnavailable, e.Cause}
}

// Batch is the normalized output of one adapter fetch.
type Batch struct {
	Source    types.Source
	Records   []types.RegistryRecord
	FetchedAt time.Time
	// Malformed counts rows dropped for failing validation.
	Malformed int
	// Filtered counts valid rows excluded by adapter policy (route, noise).
	Filtered int
	// Origin is where the data came from, for the run summary.
	Origin string
}

// Adapter fetches records from one upstream.
type Adapter interface {
	Source() types.Source
	Fetch(ctx context.Context) (*Batch, error)
}

// Preparer completes a novel record before scoring. keep=false drops the
// record from scoring; it is still marked seen.
type Preparer interface {
	Prepare(ctx context.Context, rec types.RegistryRecord) (prepared types.RegistryRecord, keep bool, err error)
}

// Static is an Adapter that returns fixed records. It backs tests and replays.
type Static struct {
	From    types.Source
	Records []types.RegistryRecord
	Err     error
}

// Source returns the configured source.
func (s *Static) Source() types.Source { return s.From }

// Fetch returns the fixed records or error.
func (s *Static) Fetch(_ context.Context) (*Batch, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	recs := make([]types.RegistryRecord, len(s.Records))
	copy(recs, s.Records)
	return &Batch{Source: s.From, Records: recs, Origin: "static"}, nil
}

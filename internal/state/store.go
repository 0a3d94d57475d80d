// Package state defines the persistent store of previously seen registry records
// and an in-memory implementation of it.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/sponsor-leads/internal/types"
)

// ErrStoreCorrupt is matched by every error reporting an unreadable or corrupt store.
var ErrStoreCorrupt = errors.New("state store corrupt")

// CorruptError represents a store that cannot be trusted. Runs must abort
// before emitting anything when they see it.
type CorruptError struct {
	Message string
	Cause   error
}

func (e *CorruptError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("state store corrupt: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("state store corrupt: %s", e.Message)
}

func (e *CorruptError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrStoreCorrupt}
	}
	return []error{ErrStoreCorrupt, e.Cause}
}

// Corrupt wraps err as a CorruptError unless it already is one.
func Corrupt(message string, err error) error {
	if errors.Is(err, ErrStoreCorrupt) {
		return err
	}
	return &CorruptError{Message: message, Cause: err}
}

// Reader is the query half of the store. The differ only needs this.
type Reader interface {
	// Has reports whether key was committed by an earlier run.
	// Marks buffered in the current run are not visible.
	Has(ctx context.Context, key types.SeenKey) (bool, error)
}

// Store is the persistent set of seen keys plus run metadata and the company
// cache. One run at a time; writes are buffered until Commit.
type Store interface {
	Reader
	CompanyCache
	MarkSeen(ctx context.Context, key types.SeenKey, meta types.SeenMeta) error
	Meta(ctx context.Context, name string) (string, bool, error)
	SetMeta(ctx context.Context, name, value string) error
	// Commit flushes every buffered write atomically.
	Commit(ctx context.Context) error
	// RecordRun stores the summary of a finished run.
	RecordRun(ctx context.Context, run RunRecord) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// RunRecord is the persisted outcome of one run.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    []byte // JSON
}

// Stats summarizes store contents.
type Stats struct {
	SeenKeys  int
	Companies int
	Runs      int
	LastRun   time.Time
}

// Meta keys.
const (
	MetaSponsorBaselined = "sponsor_baselined"
	MetaLastRunID        = "last_run_id"
)

// Pending buffers writes between Commit calls. Store implementations embed it.
type Pending struct {
	Seen map[types.SeenKey]types.SeenMeta
	Meta map[string]string
	// Order keeps first-mark order so flushes are deterministic.
	Order []types.SeenKey

	// Mappings and Companies are upserts; the last write wins.
	Mappings  map[types.SeenKey]SponsorMapping
	Companies map[string]CompanyRecord
}

// NewPending returns an empty buffer.
func NewPending() *Pending {
	p := &Pending{}
	p.Reset()
	return p
}

// Mark buffers key. The first mark of a key wins.
func (p *Pending) Mark(key types.SeenKey, meta types.SeenMeta) {
	if _, ok := p.Seen[key]; ok {
		return
	}
	p.Seen[key] = meta
	p.Order = append(p.Order, key)
}

// Empty reports whether nothing is buffered.
func (p *Pending) Empty() bool {
	return len(p.Order) == 0 && len(p.Meta) == 0 && len(p.Mappings) == 0 && len(p.Companies) == 0
}

// Reset drops all buffered writes.
func (p *Pending) Reset() {
	p.Seen = make(map[types.SeenKey]types.SeenMeta)
	p.Meta = make(map[string]string)
	p.Order = nil
	p.Mappings = make(map[types.SeenKey]SponsorMapping)
	p.Companies = make(map[string]CompanyRecord)
}

package state

import (
	"context"
	"sync"

	"github.com/jonathan/sponsor-leads/internal/types"
)

// Memory is an in-process Store. It backs dry runs and tests.
type Memory struct {
	mu        sync.Mutex
	seen      map[types.SeenKey]types.SeenMeta
	meta      map[string]string
	mappings  map[types.SeenKey]SponsorMapping
	companies map[string]CompanyRecord
	runs      []RunRecord
	pending   *Pending

	// FailWith makes every read return a corrupt-store error when set.
	FailWith error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		seen:      make(map[types.SeenKey]types.SeenMeta),
		meta:      make(map[string]string),
		mappings:  make(map[types.SeenKey]SponsorMapping),
		companies: make(map[string]CompanyRecord),
		pending:   NewPending(),
	}
}

// Has reports whether key was committed.
func (m *Memory) Has(_ context.Context, key types.SeenKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return false, Corrupt("read seen key", m.FailWith)
	}
	_, ok := m.seen[key]
	return ok, nil
}

// MarkSeen buffers key until Commit.
func (m *Memory) MarkSeen(_ context.Context, key types.SeenKey, meta types.SeenMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending.Mark(key, meta)
	return nil
}

// Meta returns a committed metadata value.
func (m *Memory) Meta(_ context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return "", false, Corrupt("read meta", m.FailWith)
	}
	v, ok := m.meta[name]
	return v, ok, nil
}

// SetMeta buffers a metadata write until Commit.
func (m *Memory) SetMeta(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending.Meta[name] = value
	return nil
}

// SponsorMapping returns the committed mapping for a sponsor row key.
func (m *Memory) SponsorMapping(_ context.Context, key types.SeenKey) (SponsorMapping, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return SponsorMapping{}, false, Corrupt("read sponsor mapping", m.FailWith)
	}
	v, ok := m.mappings[key]
	return v, ok, nil
}

// SetSponsorMapping buffers a mapping until Commit.
func (m *Memory) SetSponsorMapping(_ context.Context, key types.SeenKey, mapping SponsorMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending.Mappings[key] = mapping
	return nil
}

// Company returns the committed enrichment record for a company number.
func (m *Memory) Company(_ context.Context, companyNumber string) (CompanyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return CompanyRecord{}, false, Corrupt("read company", m.FailWith)
	}
	v, ok := m.companies[companyNumber]
	return v, ok, nil
}

// PutCompany buffers an enrichment record until Commit.
func (m *Memory) PutCompany(_ context.Context, rec CompanyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending.Companies[rec.CompanyNumber] = rec
	return nil
}

// Commit applies buffered writes. Keys already present keep their first-seen data.
func (m *Memory) Commit(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.pending.Order {
		if _, ok := m.seen[key]; !ok {
			m.seen[key] = m.pending.Seen[key]
		}
	}
	for k, v := range m.pending.Meta {
		m.meta[k] = v
	}
	for k, v := range m.pending.Mappings {
		m.mappings[k] = v
	}
	for k, v := range m.pending.Companies {
		m.companies[k] = v
	}
	m.pending.Reset()
	return nil
}

// RecordRun appends a run record.
func (m *Memory) RecordRun(_ context.Context, run RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

// Stats summarizes the store.
func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{SeenKeys: len(m.seen), Companies: len(m.companies), Runs: len(m.runs)}
	if len(m.runs) > 0 {
		s.LastRun = m.runs[len(m.runs)-1].FinishedAt
	}
	return s, nil
}

// Seen returns the committed metadata for key.
func (m *Memory) Seen(key types.SeenKey) (types.SeenMeta, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.seen[key]
	return meta, ok
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

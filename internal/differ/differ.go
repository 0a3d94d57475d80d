// Package differ selects the registry records that have not been seen by an earlier run.
package differ

import (
	"context"

	"github.com/jonathan/sponsor-leads/internal/state"
	"github.com/jonathan/sponsor-leads/internal/types"
)

// Stats counts what Diff dropped.
type Stats struct {
	Input      int
	Duplicates int // repeated within the same fetch
	Seen       int // committed by an earlier run
	Novel      int
}

// Diff returns the records whose SeenKey is absent from the store, in input
// order. When a key repeats within records only its first occurrence is kept.
//
// Diff only queries the store. Marking records seen is left to the caller so
// nothing is persisted until the run commits.
func Diff(ctx context.Context, store state.Reader, records []types.RegistryRecord) ([]types.RegistryRecord, Stats, error) {
	stats := Stats{Input: len(records)}
	batch := make(map[types.SeenKey]struct{}, len(records))
	out := make([]types.RegistryRecord, 0, len(records))

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		key := rec.Key()
		if _, dup := batch[key]; dup {
			stats.Duplicates++
			continue
		}
		batch[key] = struct{}{}

		seen, err := store.Has(ctx, key)
		if err != nil {
			return nil, stats, state.Corrupt("diff lookup "+string(key), err)
		}
		if seen {
			stats.Seen++
			continue
		}
		out = append(out, rec)
	}

	stats.Novel = len(out)
	return out, stats, nil
}

// Package holdings batch-fetches the grouped copy inventory for a page of
// bibliographic records.
package holdings

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Holding is one distinct copy shape attached to a record, with the number
// of copies that share it.
type Holding struct {
	Count       int  `json:"count"`
	Status      int  `json:"status"`
	CircLib     int  `json:"circ_lib"`
	Location    int  `json:"location"`
	Circulate   bool `json:"circulate"`
	OPACVisible bool `json:"opac_visible"`
}

// Row is one row of the grouped holdings query.
type Row struct {
	ParentID int64
	Holding
}

// Store runs the grouped holdings query for a batch of record ids.
type Store interface {
	HoldingRows(ctx context.Context, parentIDs []int64) ([]Row, error)
}

// Aggregator fetches holdings for a page of records in one query.
type Aggregator struct {
	store  Store
	onRows func(n int)
	logger *slog.Logger
}

// NewAggregator creates an Aggregator. onRows, if non-nil, receives the row
// count of every fetch.
func NewAggregator(store Store, onRows func(n int)) *Aggregator {
	return &Aggregator{
		store:  store,
		onRows: onRows,
		logger: slog.Default().With("component", "holdings-aggregator"),
	}
}

// Fetch returns holdings keyed by parent id. Parents without copies are
// absent from the result; callers treat a missing key as no holdings.
func (a *Aggregator) Fetch(ctx context.Context, parentIDs []int64) (map[int64][]Holding, error) {
	ids := dedupe(parentIDs)
	if len(ids) == 0 {
		return map[int64][]Holding{}, nil
	}

	rows, err := a.store.HoldingRows(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching holdings for %d records: %w", len(ids), err)
	}
	if a.onRows != nil {
		a.onRows(len(rows))
	}
	a.logger.Debug("fetched holdings", "records", len(ids), "rows", len(rows))
	return Group(rows), nil
}

// Group folds rows into per-parent lists, merging rows of identical shape by
// summing their counts. Output order within a parent follows first
// appearance.
func Group(rows []Row) map[int64][]Holding {
	type shape struct {
		parent int64
		h      Holding
	}
	out := make(map[int64][]Holding)
	index := make(map[shape]int)
	for _, r := range rows {
		key := r.Holding
		key.Count = 0
		s := shape{parent: r.ParentID, h: key}

		count := r.Count
		if count <= 0 {
			count = 1
		}
		if i, ok := index[s]; ok {
			out[r.ParentID][i].Count += count
			continue
		}
		h := r.Holding
		h.Count = count
		index[s] = len(out[r.ParentID])
		out[r.ParentID] = append(out[r.ParentID], h)
	}
	return out
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

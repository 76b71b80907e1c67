package cut

import (
	"context"
	"fmt"

	"github.com/kilianp07/haulboard/core/store"
)

// Lineage returns the ids of every transport connected to id through
// originalTransportId links, followed both back to the original and forward
// to the transports recreated from it. id itself is included. Deleted
// transports are traversed too so a chain is never split by a deletion.
func Lineage(ctx context.Context, s store.Store, id string) (map[string]struct{}, error) {
	visited := map[string]struct{}{id: {}}
	frontier := []string{id}
	for len(frontier) > 0 {
		next := []string{}
		back, err := s.ListTransports(ctx, store.TransportFilter{IDs: frontier, IncludeDeleted: true})
		if err != nil {
			return nil, fmt.Errorf("lineage of %s: %w", id, err)
		}
		for _, t := range back {
			if t.OriginalTransportID == nil {
				continue
			}
			if _, ok := visited[*t.OriginalTransportID]; !ok {
				visited[*t.OriginalTransportID] = struct{}{}
				next = append(next, *t.OriginalTransportID)
			}
		}
		forward, err := s.ListTransports(ctx, store.TransportFilter{OriginalIDs: frontier, IncludeDeleted: true})
		if err != nil {
			return nil, fmt.Errorf("lineage of %s: %w", id, err)
		}
		for _, t := range forward {
			if _, ok := visited[t.ID]; !ok {
				visited[t.ID] = struct{}{}
				next = append(next, t.ID)
			}
		}
		frontier = next
	}
	return visited, nil
}

// SameLineage reports whether a and b belong to the same cut lineage.
func SameLineage(ctx context.Context, s store.Store, a, b string) (bool, error) {
	if a == b {
		return true, nil
	}
	ids, err := Lineage(ctx, s, a)
	if err != nil {
		return false, err
	}
	_, ok := ids[b]
	return ok, nil
}

// Package registry exposes the drivers, trucks and trailers that can be
// placed on the planning board.
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/kilianp07/haulboard/core/model"
	"github.com/kilianp07/haulboard/core/store"
)

// Entry is the display view of an assignable resource.
type Entry struct {
	ID    string             `json:"id"`
	Kind  model.ResourceKind `json:"kind"`
	Name  string             `json:"name"`
	Plate string             `json:"plate,omitempty"`
}

// Registry is a read-only view over the resources held by the store.
type Registry struct {
	store store.Store
}

func New(s store.Store) *Registry {
	return &Registry{store: s}
}

// ListActive returns the active resources of kind sorted by name.
func (r *Registry) ListActive(ctx context.Context, kind model.ResourceKind) ([]Entry, error) {
	if _, err := model.ParseResourceKind(string(kind)); err != nil {
		return nil, err
	}
	res, err := r.store.ListResources(ctx, kind, true)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	out := make([]Entry, 0, len(res))
	for _, rs := range res {
		out = append(out, toEntry(rs))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get returns an active resource. An inactive one is rejected as invalid so
// it cannot be bound to a slot.
func (r *Registry) Get(ctx context.Context, kind model.ResourceKind, id string) (Entry, error) {
	rs, err := r.store.GetResource(ctx, kind, id)
	if err != nil {
		return Entry{}, err
	}
	if !rs.Active {
		return Entry{}, &model.Error{Kind: model.ErrInvalid, Entity: string(kind), ID: id, Message: "resource is inactive"}
	}
	return toEntry(rs), nil
}

// DisplayName returns the name of the resource, or its id when it cannot be
// resolved. Empty ids yield "".
func (r *Registry) DisplayName(ctx context.Context, kind model.ResourceKind, id string) string {
	if id == "" {
		return ""
	}
	rs, err := r.store.GetResource(ctx, kind, id)
	if err != nil || rs.Name == "" {
		return id
	}
	return rs.Name
}

func toEntry(r model.Resource) Entry {
	return Entry{ID: r.ID, Kind: r.Kind, Name: r.Name, Plate: r.Plate}
}

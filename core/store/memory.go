package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/haulboard/core/model"
)

type memData struct {
	transports  map[string]model.Transport
	slots       map[string]model.PlanningSlot
	assignments map[string]model.TransportSlot
	cutInfos    map[string]model.CutInfo // keyed by transport id
	locations   map[string]model.CutLocation
	resources   map[string]model.Resource
}

func newMemData() *memData {
	return &memData{
		transports:  map[string]model.Transport{},
		slots:       map[string]model.PlanningSlot{},
		assignments: map[string]model.TransportSlot{},
		cutInfos:    map[string]model.CutInfo{},
		locations:   map[string]model.CutLocation{},
		resources:   map[string]model.Resource{},
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.transports {
		c.transports[k] = v.Clone()
	}
	for k, v := range d.slots {
		c.slots[k] = v
	}
	for k, v := range d.assignments {
		c.assignments[k] = v
	}
	for k, v := range d.cutInfos {
		c.cutInfos[k] = v
	}
	for k, v := range d.locations {
		c.locations[k] = v
	}
	for k, v := range d.resources {
		c.resources[k] = v
	}
	return c
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*memTx)(nil)
)

// MemoryStore keeps everything in process memory. A single mutex serialises
// all access, so every transaction is fully isolated.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
	now  func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData(), now: time.Now}
}

func (s *MemoryStore) tx() *memTx { return &memTx{data: s.data, now: s.now} }

// WithTx runs fn under the store lock and restores the previous state when
// fn fails.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.data.clone()
	if err := fn(s.tx()); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) GetTransport(ctx context.Context, id string) (model.Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().GetTransport(ctx, id)
}

func (s *MemoryStore) SaveTransport(ctx context.Context, t *model.Transport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().SaveTransport(ctx, t)
}

func (s *MemoryStore) ListTransports(ctx context.Context, f TransportFilter) ([]model.Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().ListTransports(ctx, f)
}

func (s *MemoryStore) GetSlot(ctx context.Context, id string) (model.PlanningSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().GetSlot(ctx, id)
}

func (s *MemoryStore) SaveSlot(ctx context.Context, sl *model.PlanningSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().SaveSlot(ctx, sl)
}

func (s *MemoryStore) DeleteSlot(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().DeleteSlot(ctx, id)
}

func (s *MemoryStore) ListSlots(ctx context.Context, f SlotFilter) ([]model.PlanningSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().ListSlots(ctx, f)
}

func (s *MemoryStore) FindAssignment(ctx context.Context, transportID string, day time.Time) (model.TransportSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().FindAssignment(ctx, transportID, day)
}

func (s *MemoryStore) SaveAssignment(ctx context.Context, a *model.TransportSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().SaveAssignment(ctx, a)
}

func (s *MemoryStore) ListAssignments(ctx context.Context, f AssignmentFilter) ([]model.TransportSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().ListAssignments(ctx, f)
}

func (s *MemoryStore) GetCutInfo(ctx context.Context, transportID string) (model.CutInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().GetCutInfo(ctx, transportID)
}

func (s *MemoryStore) SaveCutInfo(ctx context.Context, c *model.CutInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().SaveCutInfo(ctx, c)
}

func (s *MemoryStore) ListCutInfos(ctx context.Context, f CutInfoFilter) ([]model.CutInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().ListCutInfos(ctx, f)
}

func (s *MemoryStore) GetLocation(ctx context.Context, id string) (model.CutLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().GetLocation(ctx, id)
}

func (s *MemoryStore) SaveLocation(ctx context.Context, l *model.CutLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().SaveLocation(ctx, l)
}

func (s *MemoryStore) DeleteLocation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().DeleteLocation(ctx, id)
}

func (s *MemoryStore) GetResource(ctx context.Context, kind model.ResourceKind, id string) (model.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().GetResource(ctx, kind, id)
}

func (s *MemoryStore) SaveResource(ctx context.Context, r *model.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().SaveResource(ctx, r)
}

func (s *MemoryStore) ListResources(ctx context.Context, kind model.ResourceKind, activeOnly bool) ([]model.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx().ListResources(ctx, kind, activeOnly)
}

// memTx operates on the data without locking; the caller holds the lock.
type memTx struct {
	data *memData
	now  func() time.Time
}

func (t *memTx) WithTx(ctx context.Context, fn func(Store) error) error { return fn(t) }

func (t *memTx) GetTransport(_ context.Context, id string) (model.Transport, error) {
	tr, ok := t.data.transports[id]
	if !ok {
		return model.Transport{}, model.NotFound("transport", id)
	}
	return tr.Clone(), nil
}

func (t *memTx) SaveTransport(_ context.Context, tr *model.Transport) error {
	if tr.ID == "" {
		tr.ID = model.NewID()
	}
	now := t.now()
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = now
	}
	tr.UpdatedAt = now
	tr.Reference = model.NormalizeReference(tr.OrderNumber)
	t.data.transports[tr.ID] = tr.Clone()
	return nil
}

func (t *memTx) ListTransports(_ context.Context, f TransportFilter) ([]model.Transport, error) {
	res := []model.Transport{}
	for _, tr := range t.data.transports {
		if tr.IsDeleted && !f.IncludeDeleted {
			continue
		}
		if len(f.IDs) > 0 && !contains(f.IDs, tr.ID) {
			continue
		}
		if f.Reference != "" && tr.Reference != model.NormalizeReference(f.Reference) {
			continue
		}
		if len(f.OriginalIDs) > 0 && (tr.OriginalTransportID == nil || !contains(f.OriginalIDs, *tr.OriginalTransportID)) {
			continue
		}
		if f.ClientID != "" && tr.ClientID != f.ClientID {
			continue
		}
		res = append(res, tr.Clone())
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.Before(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (t *memTx) GetSlot(_ context.Context, id string) (model.PlanningSlot, error) {
	s, ok := t.data.slots[id]
	if !ok {
		return model.PlanningSlot{}, model.NotFound("slot", id)
	}
	return s, nil
}

func (t *memTx) SaveSlot(_ context.Context, s *model.PlanningSlot) error {
	if s.ID == "" {
		s.ID = model.NewID()
	}
	now := t.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	s.Day = model.Day(s.Day)
	t.data.slots[s.ID] = *s
	return nil
}

func (t *memTx) DeleteSlot(_ context.Context, id string) error {
	if _, ok := t.data.slots[id]; !ok {
		return model.NotFound("slot", id)
	}
	delete(t.data.slots, id)
	return nil
}

func (t *memTx) ListSlots(_ context.Context, f SlotFilter) ([]model.PlanningSlot, error) {
	res := []model.PlanningSlot{}
	for _, s := range t.data.slots {
		if !f.Day.IsZero() && !s.Day.Equal(model.Day(f.Day)) {
			continue
		}
		if len(f.IDs) > 0 && !contains(f.IDs, s.ID) {
			continue
		}
		if f.DriverID != "" && model.StrVal(s.DriverID) != f.DriverID {
			continue
		}
		if f.TruckID != "" && model.StrVal(s.TruckID) != f.TruckID {
			continue
		}
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Order != res[j].Order {
			return res[i].Order < res[j].Order
		}
		if res[i].Number != res[j].Number {
			return res[i].Number < res[j].Number
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (t *memTx) FindAssignment(_ context.Context, transportID string, day time.Time) (model.TransportSlot, error) {
	day = model.Day(day)
	for _, a := range t.data.assignments {
		if a.TransportID == transportID && a.Date.Equal(day) {
			return a, nil
		}
	}
	return model.TransportSlot{}, &model.Error{Kind: model.ErrNotFound, Entity: "assignment", ID: transportID, Date: day}
}

func (t *memTx) SaveAssignment(_ context.Context, a *model.TransportSlot) error {
	a.Date = model.Day(a.Date)
	for id, existing := range t.data.assignments {
		if id != a.ID && existing.TransportID == a.TransportID && existing.Date.Equal(a.Date) {
			return &model.Error{Kind: model.ErrConflict, Entity: "assignment", ID: a.TransportID, Date: a.Date, Message: "row already exists", Related: []string{id}}
		}
	}
	if a.ID == "" {
		a.ID = model.NewID()
	}
	now := t.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	t.data.assignments[a.ID] = *a
	return nil
}

func (t *memTx) ListAssignments(_ context.Context, f AssignmentFilter) ([]model.TransportSlot, error) {
	res := []model.TransportSlot{}
	for _, a := range t.data.assignments {
		if f.TransportID != "" && a.TransportID != f.TransportID {
			continue
		}
		if f.SlotID != "" && !a.InSlot(f.SlotID) {
			continue
		}
		if f.Unassigned && a.SlotID != nil {
			continue
		}
		if !f.Date.IsZero() && !a.Date.Equal(model.Day(f.Date)) {
			continue
		}
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Date.Equal(res[j].Date) {
			return res[i].Date.Before(res[j].Date)
		}
		if res[i].SlotOrder != res[j].SlotOrder {
			return res[i].SlotOrder < res[j].SlotOrder
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (t *memTx) GetCutInfo(_ context.Context, transportID string) (model.CutInfo, error) {
	c, ok := t.data.cutInfos[transportID]
	if !ok {
		return model.CutInfo{}, model.NotFound("cut info", transportID)
	}
	return c, nil
}

func (t *memTx) SaveCutInfo(_ context.Context, c *model.CutInfo) error {
	if existing, ok := t.data.cutInfos[c.TransportID]; ok && c.ID == "" {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	}
	if c.ID == "" {
		c.ID = model.NewID()
	}
	now := t.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	t.data.cutInfos[c.TransportID] = *c
	return nil
}

func (t *memTx) ListCutInfos(_ context.Context, f CutInfoFilter) ([]model.CutInfo, error) {
	res := []model.CutInfo{}
	for _, c := range t.data.cutInfos {
		if f.LocationID != "" && c.LocationID != f.LocationID {
			continue
		}
		if len(f.TransportIDs) > 0 && !contains(f.TransportIDs, c.TransportID) {
			continue
		}
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].StartDate.Equal(res[j].StartDate) {
			return res[i].StartDate.Before(res[j].StartDate)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (t *memTx) GetLocation(_ context.Context, id string) (model.CutLocation, error) {
	l, ok := t.data.locations[id]
	if !ok {
		return model.CutLocation{}, model.NotFound("cut location", id)
	}
	return l, nil
}

func (t *memTx) SaveLocation(_ context.Context, l *model.CutLocation) error {
	if l.ID == "" {
		l.ID = model.NewID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = t.now()
	}
	t.data.locations[l.ID] = *l
	return nil
}

func (t *memTx) DeleteLocation(_ context.Context, id string) error {
	if _, ok := t.data.locations[id]; !ok {
		return model.NotFound("cut location", id)
	}
	delete(t.data.locations, id)
	return nil
}

func (t *memTx) GetResource(_ context.Context, kind model.ResourceKind, id string) (model.Resource, error) {
	r, ok := t.data.resources[id]
	if !ok || r.Kind != kind {
		return model.Resource{}, model.NotFound(string(kind), id)
	}
	return r, nil
}

func (t *memTx) SaveResource(_ context.Context, r *model.Resource) error {
	if r.ID == "" {
		r.ID = model.NewID()
	}
	t.data.resources[r.ID] = *r
	return nil
}

func (t *memTx) ListResources(_ context.Context, kind model.ResourceKind, activeOnly bool) ([]model.Resource, error) {
	res := []model.Resource{}
	for _, r := range t.data.resources {
		if kind != "" && r.Kind != kind {
			continue
		}
		if activeOnly && !r.Active {
			continue
		}
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

// Package cut manages transports pulled from the active board: cutting,
// restoring, recreating, archiving and soft deletion, plus the locations
// cut transports are parked at.
package cut

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kilianp07/haulboard/core/logger"
	"github.com/kilianp07/haulboard/core/model"
	"github.com/kilianp07/haulboard/core/notify"
	"github.com/kilianp07/haulboard/core/store"
)

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock used for restore and repair timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager runs the cut lifecycle ACTIVE -> CUT -> RESTORED.
type Manager struct {
	store    store.Store
	notifier notify.Notifier
	log      logger.Logger
	now      func() time.Time
}

func NewManager(s store.Store, n notify.Notifier, log logger.Logger, opts ...Option) *Manager {
	if n == nil {
		n = notify.NopNotifier{}
	}
	if log == nil {
		log = logger.Nop{}
	}
	m := &Manager{store: s, notifier: n, log: log, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Request describes a cut.
type Request struct {
	CutType    model.CutType `json:"cutType"`
	LocationID string        `json:"locationId"`
	StartDate  time.Time     `json:"startDate"`
}

// Filter selects cut transports for List. Zero fields do not filter.
type Filter struct {
	// Date keeps transports whose cut window contains the day.
	Date         time.Time
	ClientID     string
	CutType      model.CutType
	LocationID   string
	ShowRestored bool
	ShowArchived bool
}

// Entry is one row of the cut list.
type Entry struct {
	Transport model.Transport `json:"transport"`
	CutInfo   model.CutInfo   `json:"cutInfo"`
}

func validCutType(t model.CutType) bool {
	switch t {
	case model.CutTypeStorage, model.CutTypeTransfer, model.CutTypeReturn:
		return true
	}
	return false
}

func (m *Manager) write(ctx context.Context, c model.Caller, fn func(tx store.Store) error) error {
	if err := c.RequirePlanner(); err != nil {
		return err
	}
	return m.store.WithTx(ctx, fn)
}

func liveTransport(ctx context.Context, tx store.Store, id string) (model.Transport, error) {
	t, err := tx.GetTransport(ctx, id)
	if err != nil {
		return model.Transport{}, err
	}
	if t.IsDeleted {
		return model.Transport{}, model.NotFound("transport", id)
	}
	return t, nil
}

// Cut pulls the transport from the board and parks it at the location.
func (m *Manager) Cut(ctx context.Context, c model.Caller, transportID string, req Request) (Entry, error) {
	if !validCutType(req.CutType) {
		return Entry{}, model.Invalid("unknown cut type %q", req.CutType)
	}
	if req.StartDate.IsZero() {
		req.StartDate = m.now()
	}
	var out Entry
	err := m.write(ctx, c, func(tx store.Store) error {
		t, err := liveTransport(ctx, tx, transportID)
		if err != nil {
			return err
		}
		if t.IsCut {
			return &model.Error{Kind: model.ErrInvalid, Entity: "transport", ID: transportID, Message: "already cut"}
		}
		if _, err := tx.GetLocation(ctx, req.LocationID); err != nil {
			return err
		}
		ci := model.CutInfo{
			TransportID: transportID,
			CutType:     req.CutType,
			LocationID:  req.LocationID,
			StartDate:   model.Day(req.StartDate),
		}
		if err := tx.SaveCutInfo(ctx, &ci); err != nil {
			return err
		}
		t.IsCut = true
		t.IsRestored = false
		if err := tx.SaveTransport(ctx, &t); err != nil {
			return err
		}
		out = Entry{Transport: t, CutInfo: ci}
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	m.log.Infof("transport %s cut to %s", transportID, req.LocationID)
	m.notifyCut(ctx, out)
	return out, nil
}

// Restore returns a cut transport to the board and closes its cut window.
func (m *Manager) Restore(ctx context.Context, c model.Caller, transportID string) (Entry, error) {
	var out Entry
	err := m.write(ctx, c, func(tx store.Store) error {
		var err error
		out, err = m.restore(ctx, tx, transportID)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	m.notifyCut(ctx, out)
	return out, nil
}

func (m *Manager) restore(ctx context.Context, tx store.Store, transportID string) (Entry, error) {
	t, err := liveTransport(ctx, tx, transportID)
	if err != nil {
		return Entry{}, err
	}
	if !t.IsCut {
		return Entry{}, &model.Error{Kind: model.ErrInvalid, Entity: "transport", ID: transportID, Message: "not cut"}
	}
	t.IsCut = false
	t.IsRestored = true
	if err := tx.SaveTransport(ctx, &t); err != nil {
		return Entry{}, err
	}
	ci, err := tx.GetCutInfo(ctx, transportID)
	if err != nil {
		return Entry{}, err
	}
	end := m.now().UTC()
	ci.EndDate = &end
	if err := tx.SaveCutInfo(ctx, &ci); err != nil {
		return Entry{}, err
	}
	return Entry{Transport: t, CutInfo: ci}, nil
}

// RestoreAsNew restores the cut transport and creates a fresh active
// transport linked to it through originalTransportId. An empty orderNumber
// keeps the original one. The new reference must not collide with a
// transport outside the lineage.
func (m *Manager) RestoreAsNew(ctx context.Context, c model.Caller, transportID, orderNumber string) (model.Transport, error) {
	var (
		restored Entry
		created  model.Transport
	)
	err := m.write(ctx, c, func(tx store.Store) error {
		orig, err := liveTransport(ctx, tx, transportID)
		if err != nil {
			return err
		}
		if strings.TrimSpace(orderNumber) == "" {
			orderNumber = orig.OrderNumber
		}
		dups, err := duplicates(ctx, tx, transportID, orderNumber)
		if err != nil {
			return err
		}
		if len(dups) > 0 {
			return duplicateError(orderNumber, dups)
		}
		if restored, err = m.restore(ctx, tx, transportID); err != nil {
			return err
		}
		created = recreate(orig, orderNumber)
		return tx.SaveTransport(ctx, &created)
	})
	if err != nil {
		return model.Transport{}, err
	}
	m.notifyCut(ctx, restored)
	m.notifier.Notify(ctx, notify.TransportUpdated, created)
	return created, nil
}

func recreate(orig model.Transport, orderNumber string) model.Transport {
	t := model.NewTransport(orderNumber)
	t.ClientID = orig.ClientID
	t.PickupRef = orig.PickupRef
	t.DropoffRef = orig.DropoffRef
	t.OriginalTransportID = &orig.ID
	for _, d := range orig.Destinations {
		t.Destinations = append(t.Destinations, model.Destination{ID: model.NewID(), TransportID: t.ID, Position: d.Position, Address: d.Address})
	}
	for _, n := range orig.Notes {
		t.Notes = append(t.Notes, model.Note{ID: model.NewID(), TransportID: t.ID, Text: n.Text, CreatedAt: n.CreatedAt})
	}
	return t
}

// Duplicates returns the live transports sharing the reference of
// orderNumber with transportID, excluding its own cut lineage. An empty
// transportID checks a transport that does not exist yet.
func (m *Manager) Duplicates(ctx context.Context, transportID, orderNumber string) ([]model.Transport, error) {
	return duplicates(ctx, m.store, transportID, orderNumber)
}

// IsDuplicate reports whether orderNumber collides for transportID.
func (m *Manager) IsDuplicate(ctx context.Context, transportID, orderNumber string) (bool, error) {
	d, err := m.Duplicates(ctx, transportID, orderNumber)
	return len(d) > 0, err
}

func duplicates(ctx context.Context, s store.Store, transportID, orderNumber string) ([]model.Transport, error) {
	ref := model.NormalizeReference(orderNumber)
	if ref == "" {
		return nil, model.Invalid("order number is empty")
	}
	same, err := s.ListTransports(ctx, store.TransportFilter{Reference: ref})
	if err != nil {
		return nil, err
	}
	if len(same) == 0 {
		return nil, nil
	}
	lineage := map[string]struct{}{}
	if transportID != "" {
		if lineage, err = Lineage(ctx, s, transportID); err != nil {
			return nil, err
		}
	}
	out := []model.Transport{}
	for _, t := range same {
		if _, ok := lineage[t.ID]; ok {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func duplicateError(orderNumber string, dups []model.Transport) error {
	ids := make([]string, len(dups))
	for i, d := range dups {
		ids[i] = d.ID
	}
	return &model.Error{Kind: model.ErrConflict, Entity: "reference", ID: model.NormalizeReference(orderNumber),
		Message: "order number already used", Related: ids}
}

// Archive hides a cut or restored transport from the cut list.
func (m *Manager) Archive(ctx context.Context, c model.Caller, transportID string) (model.Transport, error) {
	var out model.Transport
	err := m.write(ctx, c, func(tx store.Store) error {
		t, err := liveTransport(ctx, tx, transportID)
		if err != nil {
			return err
		}
		if !t.IsCut && !t.IsRestored {
			return &model.Error{Kind: model.ErrInvalid, Entity: "transport", ID: transportID, Message: "only cut or restored transports can be archived"}
		}
		t.IsArchived = true
		if err := tx.SaveTransport(ctx, &t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return model.Transport{}, err
	}
	m.notifier.Notify(ctx, notify.TransportUpdated, out)
	return out, nil
}

// Delete soft-deletes the transport and frees its slots. A transport still
// referenced through originalTransportId by a live transport is in use.
func (m *Manager) Delete(ctx context.Context, c model.Caller, transportID string) (model.Transport, error) {
	var out model.Transport
	err := m.write(ctx, c, func(tx store.Store) error {
		t, err := liveTransport(ctx, tx, transportID)
		if err != nil {
			return err
		}
		refs, err := tx.ListTransports(ctx, store.TransportFilter{OriginalIDs: []string{transportID}})
		if err != nil {
			return err
		}
		if len(refs) > 0 {
			ids := make([]string, len(refs))
			for i, r := range refs {
				ids[i] = r.ID
			}
			return &model.Error{Kind: model.ErrInUse, Entity: "transport", ID: transportID,
				Message: "referenced by recreated transports", Related: ids}
		}
		rows, err := tx.ListAssignments(ctx, store.AssignmentFilter{TransportID: transportID})
		if err != nil {
			return err
		}
		for i := range rows {
			if rows[i].SlotID == nil {
				continue
			}
			rows[i].SlotID = nil
			if err := tx.SaveAssignment(ctx, &rows[i]); err != nil {
				return err
			}
		}
		t.IsDeleted = true
		t.SentToDriver = false
		if err := tx.SaveTransport(ctx, &t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return model.Transport{}, err
	}
	m.notifier.Notify(ctx, notify.TransportUpdated, out)
	return out, nil
}

// List returns the cut transports matching f, oldest cut first.
func (m *Manager) List(ctx context.Context, f Filter) ([]Entry, error) {
	if f.CutType != "" && !validCutType(f.CutType) {
		return nil, model.Invalid("unknown cut type %q", f.CutType)
	}
	infos, err := m.store.ListCutInfos(ctx, store.CutInfoFilter{LocationID: f.LocationID})
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return []Entry{}, nil
	}
	ids := make([]string, len(infos))
	for i, ci := range infos {
		ids[i] = ci.TransportID
	}
	ts, err := m.store.ListTransports(ctx, store.TransportFilter{IDs: ids, ClientID: f.ClientID})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Transport, len(ts))
	for _, t := range ts {
		byID[t.ID] = t
	}
	out := []Entry{}
	for _, ci := range infos {
		t, ok := byID[ci.TransportID]
		if !ok {
			continue
		}
		if t.IsArchived && !f.ShowArchived {
			continue
		}
		if !t.IsCut && !(f.ShowRestored && t.IsRestored) {
			continue
		}
		if f.CutType != "" && ci.CutType != f.CutType {
			continue
		}
		if !f.Date.IsZero() && !ci.Covers(f.Date) {
			continue
		}
		out = append(out, Entry{Transport: t, CutInfo: ci})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].CutInfo, out[j].CutInfo
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		return out[i].Transport.Reference < out[j].Transport.Reference
	})
	return out, nil
}

// CreateLocation registers a place cut transports can be parked at.
func (m *Manager) CreateLocation(ctx context.Context, c model.Caller, name, address string) (model.CutLocation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.CutLocation{}, model.Invalid("location name is empty")
	}
	loc := model.CutLocation{Name: name, Address: address}
	if err := m.write(ctx, c, func(tx store.Store) error {
		return tx.SaveLocation(ctx, &loc)
	}); err != nil {
		return model.CutLocation{}, err
	}
	m.notifier.Notify(ctx, notify.LocationCreated, loc)
	return loc, nil
}

// DeleteLocation removes a location no cut transport is parked at.
func (m *Manager) DeleteLocation(ctx context.Context, c model.Caller, id string) error {
	err := m.write(ctx, c, func(tx store.Store) error {
		if _, err := tx.GetLocation(ctx, id); err != nil {
			return err
		}
		parked, err := parkedAt(ctx, tx, id)
		if err != nil {
			return err
		}
		if len(parked) > 0 {
			return &model.Error{Kind: model.ErrInUse, Entity: "cut location", ID: id,
				Message: fmt.Sprintf("%d cut transport(s) parked", len(parked)), Related: parked}
		}
		return tx.DeleteLocation(ctx, id)
	})
	if err != nil {
		return err
	}
	m.notifier.Notify(ctx, notify.LocationDeleted, notify.LocationRemoved{LocationID: id})
	return nil
}

// parkedAt returns the ids of live transports still cut at the location.
func parkedAt(ctx context.Context, tx store.Store, locationID string) ([]string, error) {
	infos, err := tx.ListCutInfos(ctx, store.CutInfoFilter{LocationID: locationID})
	if err != nil || len(infos) == 0 {
		return nil, err
	}
	out := []string{}
	for _, ci := range infos {
		t, err := tx.GetTransport(ctx, ci.TransportID)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if t.IsCut && !t.IsDeleted {
			out = append(out, t.ID)
		}
	}
	return out, nil
}

// Repair runs the cut info repair pass and publishes every corrected row.
func (m *Manager) Repair(ctx context.Context) (int, error) {
	fixed, err := RepairCutInfos(ctx, m.store, m.now(), m.log)
	if err != nil {
		return 0, err
	}
	for _, ci := range fixed {
		t, err := m.store.GetTransport(ctx, ci.TransportID)
		if err != nil {
			continue
		}
		info := ci
		m.notifier.Notify(ctx, notify.CutUpdated, notify.CutState{Transport: t, CutInfo: &info})
	}
	return len(fixed), nil
}

func (m *Manager) notifyCut(ctx context.Context, e Entry) {
	ci := e.CutInfo
	m.notifier.Notify(ctx, notify.CutUpdated, notify.CutState{Transport: e.Transport, CutInfo: &ci})
}

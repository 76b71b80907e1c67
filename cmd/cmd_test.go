package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/haulboard/api/middleware"
	"github.com/kilianp07/haulboard/core/model"
	"github.com/kilianp07/haulboard/core/notify"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HB_HTTP__JWT_SECRET", "cli-secret")
	t.Setenv("HB_LOGGING__LEVEL", "error")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	out, err := execute(t, "token", "--user", "alice", "--role", "viewer")
	require.NoError(t, err)
	caller, err := middleware.ParseToken([]byte("cli-secret"), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, model.Caller{UserID: "alice", Role: model.RoleViewer}, caller)
}

func TestTokenCommandRejectsRole(t *testing.T) {
	_, err := execute(t, "token", "--role", "root")
	assert.Error(t, err)
}

func TestDayCommand(t *testing.T) {
	out, err := execute(t, "day", "--date", "2024-05-01", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-05-01")
}

func TestRepairCommand(t *testing.T) {
	out, err := execute(t, "repair")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)
}

func TestWatchNeedsRemoteBus(t *testing.T) {
	_, err := execute(t, "watch")
	assert.Error(t, err)
}

func TestDescribeShowsReconciledState(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	slot := model.PlanningSlot{ID: "s1", Day: day, Number: 2, DriverID: model.StrPtr("D2"), UpdatedAt: t0.Add(time.Minute)}
	stale := slot
	stale.DriverID = model.StrPtr("D1")
	stale.UpdatedAt = t0

	v := notify.NewView()
	newer := notify.Event{Name: notify.DriverAssigned, Data: notify.ResourceAssigned{Slot: slot}}
	older := notify.Event{Name: notify.DriverAssigned, Data: notify.ResourceAssigned{Slot: stale}}
	v.Apply(newer)
	v.Apply(older)
	assert.Equal(t, "slot 2 2024-05-01 driver=D2 truck=-", describe(v, older))

	for i, id := range []string{"t1", "t2"} {
		e := notify.Event{Name: notify.AssignmentUpdated, Data: model.AssignedTransport{
			Assignment: model.TransportSlot{ID: "a" + id, TransportID: id, SlotID: &slot.ID, Date: day, SlotOrder: 2 - i},
			Transport:  model.Transport{ID: id, OrderNumber: strings.ToUpper(id)},
		}}
		v.Apply(e)
		if i == 1 {
			assert.Equal(t, "slot s1 2024-05-01 [t2,t1]", describe(v, e))
		}
	}

	sent := notify.Event{Name: notify.TransportUpdated, Data: model.Transport{ID: "t1", OrderNumber: "T1", Status: model.StatusPlanned, SentToDriver: true, UpdatedAt: t0}}
	v.Apply(sent)
	assert.Equal(t, "t1 T1 status=PLANNED sent=true", describe(v, sent))

	gone := notify.Event{Name: notify.SlotDeleted, Data: notify.SlotRemoved{SlotID: "s1", Date: day, Unassigned: []string{"t1", "t2"}}}
	v.Apply(gone)
	assert.Equal(t, "slot s1 removed", describe(v, older))
}

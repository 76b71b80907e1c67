package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/haulboard/api/middleware"
	"github.com/kilianp07/haulboard/core/conflict"
	"github.com/kilianp07/haulboard/core/cut"
	"github.com/kilianp07/haulboard/core/model"
	"github.com/kilianp07/haulboard/core/notify"
	"github.com/kilianp07/haulboard/core/planning"
	"github.com/kilianp07/haulboard/core/registry"
	"github.com/kilianp07/haulboard/core/store"
	"github.com/kilianp07/haulboard/internal/eventbus"
)

var secret = []byte("api-test")

type env struct {
	st      *store.MemoryStore
	fan     *notify.Fanout
	router  *gin.Engine
	planner string
	viewer  string
}

func newEnv(t *testing.T) env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	ctx := context.Background()
	for _, r := range []model.Resource{
		{ID: "D1", Kind: model.KindDriver, Name: "Dan", Active: true},
		{ID: "K1", Kind: model.KindTruck, Name: "Scania", Active: true},
	} {
		r := r
		require.NoError(t, st.SaveResource(ctx, &r))
	}
	fan := notify.NewFanout(eventbus.New[notify.Event](16), nil, nil)
	t.Cleanup(func() { _ = fan.Close() })
	reg := registry.New(st)
	checker := conflict.New(st, reg)
	router := NewRouter(Deps{
		Board:    planning.NewBoard(st, reg, checker, fan, nil),
		Cuts:     cut.NewManager(st, fan, nil),
		Checker:  checker,
		Registry: reg,
		Stream:   fan,
	}, Options{JWTSecret: secret, CORSOrigins: []string{"http://localhost:3000"}})

	planner, err := middleware.IssueToken(secret, "p1", model.RolePlanner, time.Hour)
	require.NoError(t, err)
	viewer, err := middleware.IssueToken(secret, "v1", model.RoleViewer, time.Hour)
	require.NoError(t, err)
	return env{st: st, fan: fan, router: router, planner: planner, viewer: viewer}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Related []string        `json:"related"`
}

func (e env) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	var out envelope
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr, out
}

func (e env) transport(t *testing.T, order string) model.Transport {
	t.Helper()
	tr := model.NewTransport(order)
	require.NoError(t, e.st.SaveTransport(context.Background(), &tr))
	return tr
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHealthIsPublic(t *testing.T) {
	e := newEnv(t)
	rr, _ := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	e := newEnv(t)
	rr, out := e.do(t, http.MethodGet, "/api/planning/days/2024-05-01", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "error", out.Status)
}

func TestListResources(t *testing.T) {
	e := newEnv(t)
	rr, out := e.do(t, http.MethodGet, "/api/resources/driver", e.viewer, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]registry.Entry](t, out.Data)
	require.Len(t, list, 1)
	assert.Equal(t, "Dan", list[0].Name)

	rr, _ = e.do(t, http.MethodGet, "/api/resources/boat", e.viewer, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPlanningFlow(t *testing.T) {
	e := newEnv(t)
	a := e.transport(t, "A-1")
	b := e.transport(t, "B-1")

	rr, out := e.do(t, http.MethodPost, "/api/planning/days/2024-05-01/slots", e.planner, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	slot := decode[model.PlanningSlot](t, out.Data)

	rr, _ = e.do(t, http.MethodPut, "/api/planning/slots/"+slot.ID+"/driver", e.planner, map[string]any{"driverId": "D1"})
	require.Equal(t, http.StatusOK, rr.Code)
	rr, _ = e.do(t, http.MethodPut, "/api/planning/slots/"+slot.ID+"/note", e.planner, map[string]any{"text": "7am depot"})
	require.Equal(t, http.StatusOK, rr.Code)

	for _, id := range []string{a.ID, b.ID} {
		rr, _ = e.do(t, http.MethodPut, "/api/planning/assignments", e.planner, map[string]any{
			"transportId": id, "slotId": slot.ID, "date": "2024-05-01",
		})
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr, _ = e.do(t, http.MethodPut, "/api/planning/reorder", e.planner, map[string]any{
		"slotId": slot.ID, "transportId": b.ID, "newOrder": 0, "date": "2024-05-01",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr, out = e.do(t, http.MethodGet, "/api/planning/days/2024-05-01", e.viewer, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	plan := decode[model.DayPlan](t, out.Data)
	require.Len(t, plan.Slots, 1)
	assert.Equal(t, "D1", model.StrVal(plan.Slots[0].Slot.DriverID))
	assert.Equal(t, "7am depot", plan.Slots[0].Slot.DriverStartNote)
	require.Len(t, plan.Slots[0].Transports, 2)
	assert.Equal(t, b.ID, plan.Slots[0].Transports[0].Transport.ID)

	rr, _ = e.do(t, http.MethodDelete, "/api/planning/assignments", e.planner, map[string]any{
		"transportId": a.ID, "date": "2024-05-01",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr, _ = e.do(t, http.MethodDelete, "/api/planning/slots/"+slot.ID, e.planner, map[string]any{"date": "2024-05-01"})
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestErrorMapping(t *testing.T) {
	e := newEnv(t)
	tr := e.transport(t, "C-1")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"viewer cannot mutate", http.MethodPost, "/api/planning/days/2024-05-01/slots", "viewer", nil, http.StatusForbidden},
		{"bad date", http.MethodGet, "/api/planning/days/05-01-2024", "planner", nil, http.StatusBadRequest},
		{"unknown transport", http.MethodPost, "/api/transports/nope/cancel", "planner", nil, http.StatusNotFound},
		{"missing body field", http.MethodPut, "/api/transports/" + tr.ID + "/sent", "planner", map[string]any{}, http.StatusBadRequest},
		{"unknown slot", http.MethodPut, "/api/planning/assignments", "planner", map[string]any{"transportId": tr.ID, "slotId": "nope", "date": "2024-05-01"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := e.planner
			if tt.token == "viewer" {
				token = e.viewer
			}
			rr, out := e.do(t, tt.method, tt.path, token, tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
			assert.Equal(t, "error", out.Status)
			assert.NotEmpty(t, out.Message)
		})
	}
}

func TestConflictCheckAndCheckedAssign(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	busy := e.transport(t, "BUSY")
	slot := model.PlanningSlot{Day: day, Number: 1, Order: 1, DriverID: model.StrPtr("D1")}
	require.NoError(t, e.st.SaveSlot(ctx, &slot))
	require.NoError(t, e.st.SaveAssignment(ctx, &model.TransportSlot{TransportID: busy.ID, SlotID: &slot.ID, Date: day, SlotOrder: 1}))
	rr, _ := e.do(t, http.MethodPut, "/api/transports/"+busy.ID+"/sent", e.planner, map[string]any{"sent": true})
	require.Equal(t, http.StatusOK, rr.Code)

	rr, out := e.do(t, http.MethodPost, "/api/planning/conflicts", e.viewer, map[string]any{
		"dates": []string{"2024-05-01", "2024-05-02"}, "driverId": "D1",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	res := decode[conflict.Result](t, out.Data)
	assert.False(t, res.Available)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, busy.ID, res.Conflicts[0].Assignments[0].TransportID)

	other := model.PlanningSlot{Day: day, Number: 2, Order: 2, DriverID: model.StrPtr("D1")}
	require.NoError(t, e.st.SaveSlot(ctx, &other))
	next := e.transport(t, "NEXT")
	rr, out = e.do(t, http.MethodPut, "/api/planning/assignments", e.planner, map[string]any{
		"transportId": next.ID, "slotId": other.ID, "date": "2024-05-01", "checked": true,
	})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, out.Related, busy.ID)
}

func TestCutLifecycle(t *testing.T) {
	e := newEnv(t)
	tr := e.transport(t, "CUT-1")

	rr, out := e.do(t, http.MethodPost, "/api/cut-locations", e.planner, map[string]any{"name": "North yard"})
	require.Equal(t, http.StatusCreated, rr.Code)
	loc := decode[model.CutLocation](t, out.Data)

	rr, _ = e.do(t, http.MethodPost, "/api/transports/"+tr.ID+"/cut", e.planner, map[string]any{
		"cutType": "STORAGE", "locationId": loc.ID, "startDate": "2024-05-01",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr, out = e.do(t, http.MethodGet, "/api/cuts?date=2024-05-03&locationId="+loc.ID, e.viewer, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]cut.Entry](t, out.Data), 1)

	rr, _ = e.do(t, http.MethodDelete, "/api/cut-locations/"+loc.ID, e.planner, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, out = e.do(t, http.MethodPost, "/api/transports/"+tr.ID+"/reference-check", e.viewer, map[string]any{"orderNumber": "cut-1"})
	require.Equal(t, http.StatusOK, rr.Code)
	check := decode[map[string]any](t, out.Data)
	assert.Equal(t, false, check["duplicate"])

	rr, out = e.do(t, http.MethodPost, "/api/transports/"+tr.ID+"/restore", e.planner, map[string]any{"asNew": true})
	require.Equal(t, http.StatusCreated, rr.Code)
	fresh := decode[model.Transport](t, out.Data)
	assert.Equal(t, tr.ID, model.StrVal(fresh.OriginalTransportID))

	rr, _ = e.do(t, http.MethodDelete, "/api/transports/"+tr.ID, e.planner, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, _ = e.do(t, http.MethodGet, "/api/cuts?showArchived=maybe", e.viewer, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStreamDeliversEvents(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/board/stream?topics=slot", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+e.viewer)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string, 32)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()
	waitFor := func(prefix string) string {
		for {
			select {
			case l, ok := <-lines:
				require.True(t, ok, "stream closed before %q", prefix)
				if strings.HasPrefix(l, prefix) {
					return l
				}
			case <-ctx.Done():
				t.Fatalf("timeout waiting for %q", prefix)
			}
		}
	}
	waitFor("event:ready")

	e.fan.Notify(ctx, notify.TransportUpdated, map[string]string{"id": "ignored"})
	e.fan.Notify(ctx, notify.SlotCreated, map[string]string{"id": "s1"})
	assert.Equal(t, "event:"+notify.SlotCreated, waitFor("event:"))
	assert.Contains(t, waitFor("data:"), `"s1"`)
}

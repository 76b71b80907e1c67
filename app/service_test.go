package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/haulboard/config"
	"github.com/kilianp07/haulboard/core/model"
)

func memoryConfig() *config.Config {
	cfg := &config.Config{}
	cfg.HTTP.JWTSecret = "secret"
	cfg.HTTP.Address = "127.0.0.1:0"
	cfg.SetDefaults()
	return cfg
}

func TestNewMemoryService(t *testing.T) {
	svc, err := New(memoryConfig())
	require.NoError(t, err)
	defer svc.Close()

	rr := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	ctx := context.Background()
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	slot, err := svc.Board.CreateSlot(ctx, model.System, day)
	require.NoError(t, err)
	plan, err := svc.Board.ListDay(ctx, day)
	require.NoError(t, err)
	require.Len(t, plan.Slots, 1)
	assert.Equal(t, slot.ID, plan.Slots[0].Slot.ID)
}

func TestRepair(t *testing.T) {
	svc, err := New(memoryConfig())
	require.NoError(t, err)
	defer svc.Close()

	ctx := context.Background()
	tr := model.NewTransport("R-1")
	tr.IsCut = true
	require.NoError(t, svc.Store.SaveTransport(ctx, &tr))
	end := time.Now()
	require.NoError(t, svc.Store.SaveCutInfo(ctx, &model.CutInfo{
		TransportID: tr.ID, CutType: model.CutTypeStorage, LocationID: "L1", StartDate: end, EndDate: &end,
	}))

	n, err := svc.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunStopsWithContext(t *testing.T) {
	cfg := memoryConfig()
	cfg.Maintenance.RepairSchedule = "@every 1h"
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNewRejectsUnreachableBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.Notify.Backend = config.BackendNATS
	cfg.Notify.NATS.URL = "nats://127.0.0.1:1"
	cfg.Notify.NATS.ConnectTimeoutMS = 200
	_, err := New(cfg)
	assert.Error(t, err)
}

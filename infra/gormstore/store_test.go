package gormstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	gormlogger "gorm.io/gorm/logger"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/haulboard/core/model"
	"github.com/kilianp07/haulboard/core/store"
)

func startPostgres(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode")
	}
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "haulboard",
			"POSTGRES_PASSWORD": "haulboard",
			"POSTGRES_DB":       "haulboard",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=haulboard password=haulboard dbname=haulboard sslmode=disable", host, port.Port())
	s, err := Open(Config{DSN: dsn, LogLevel: "silent"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConfig(t *testing.T) {
	var c Config
	assert.Error(t, c.Validate())
	c.DSN = "host=localhost"
	c.SetDefaults()
	assert.NoError(t, c.Validate())
	assert.Equal(t, 10, c.MaxIdleConns)
	assert.Equal(t, 50, c.MaxOpenConns)
	assert.Equal(t, "warn", c.LogLevel)
}

func TestWithUTC(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"host=db user=x", "host=db user=x TimeZone=UTC"},
		{"host=db TimeZone=Europe/Paris", "host=db TimeZone=Europe/Paris"},
		{"postgres://u:p@db:5432/hb?sslmode=disable", "postgres://u:p@db:5432/hb?sslmode=disable&timezone=UTC"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, withUTC(tt.in))
	}
}

type levelLog struct {
	debug, warn []string
}

func (l *levelLog) Debugf(f string, a ...any) { l.debug = append(l.debug, fmt.Sprintf(f, a...)) }
func (l *levelLog) Debugw(string, map[string]any) {}
func (l *levelLog) Infof(string, ...any) {}
func (l *levelLog) Infow(string, map[string]any) {}
func (l *levelLog) Warnf(f string, a ...any) { l.warn = append(l.warn, fmt.Sprintf(f, a...)) }
func (l *levelLog) Errorf(string, ...any) {}

func TestGormWriterLevels(t *testing.T) {
	tests := []struct {
		level     string
		wantWarn  int
		wantDebug int
	}{
		{"warn", 1, 0},
		{"error", 1, 0},
		{"info", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := &levelLog{}
			w := gormWriter{log: l, level: parseLogLevel(tt.level)}
			w.Printf("SLOW SQL >= %v", time.Second)
			assert.Len(t, l.warn, tt.wantWarn)
			assert.Len(t, l.debug, tt.wantDebug)
		})
	}
	assert.Equal(t, gormlogger.Warn, parseLogLevel(""))
}

func TestStoreRoundTrip(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()
	day := model.Day(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))

	tr := model.NewTransport(" ord-1 ")
	tr.Destinations = []model.Destination{{Position: 1, Address: "Lyon"}, {Position: 0, Address: "Paris"}}
	tr.Notes = []model.Note{{Text: "fragile"}}
	require.NoError(t, s.SaveTransport(ctx, &tr))

	got, err := s.GetTransport(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", got.Reference)
	require.Len(t, got.Destinations, 2)
	assert.Equal(t, "Paris", got.Destinations[0].Address)
	require.Len(t, got.Notes, 1)

	got.Destinations = got.Destinations[:1]
	require.NoError(t, s.SaveTransport(ctx, &got))
	got, err = s.GetTransport(ctx, tr.ID)
	require.NoError(t, err)
	assert.Len(t, got.Destinations, 1)

	slot := model.PlanningSlot{Day: day, Number: 1, Order: 1}
	require.NoError(t, s.SaveSlot(ctx, &slot))
	slots, err := s.ListSlots(ctx, store.SlotFilter{Day: day})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].Day.Equal(day))

	a := model.TransportSlot{TransportID: tr.ID, SlotID: &slot.ID, Date: day, SlotOrder: 1}
	require.NoError(t, s.SaveAssignment(ctx, &a))
	dup := model.TransportSlot{TransportID: tr.ID, Date: day}
	err = s.SaveAssignment(ctx, &dup)
	assert.True(t, errors.Is(err, model.ErrConflict), "got %v", err)

	found, err := s.FindAssignment(ctx, tr.ID, day)
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)
	assert.True(t, found.Date.Equal(day))

	_, err = s.FindAssignment(ctx, tr.ID, day.AddDate(0, 0, 1))
	assert.True(t, errors.Is(err, model.ErrNotFound))

	err = s.DeleteSlot(ctx, model.NewID())
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestStoreTxRollback(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var id string
	err := s.WithTx(ctx, func(tx store.Store) error {
		tr := model.NewTransport("ORD-2")
		if err := tx.SaveTransport(ctx, &tr); err != nil {
			return err
		}
		id = tr.ID
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = s.GetTransport(ctx, id)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestCutInfoUpsert(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()
	tr := model.NewTransport("ORD-3")
	require.NoError(t, s.SaveTransport(ctx, &tr))
	loc := model.CutLocation{Name: "Depot"}
	require.NoError(t, s.SaveLocation(ctx, &loc))

	start := model.Day(time.Now())
	first := model.CutInfo{TransportID: tr.ID, CutType: model.CutTypeStorage, LocationID: loc.ID, StartDate: start}
	require.NoError(t, s.SaveCutInfo(ctx, &first))
	end := time.Now().UTC()
	second := model.CutInfo{TransportID: tr.ID, CutType: model.CutTypeStorage, LocationID: loc.ID, StartDate: start, EndDate: &end}
	require.NoError(t, s.SaveCutInfo(ctx, &second))
	assert.Equal(t, first.ID, second.ID)

	infos, err := s.ListCutInfos(ctx, store.CutInfoFilter{LocationID: loc.ID})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.NotNil(t, infos[0].EndDate)
}

func TestResourcesInactive(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()
	on := model.Resource{Kind: model.KindDriver, Name: "Bea", Active: true}
	off := model.Resource{Kind: model.KindDriver, Name: "Al", Active: false}
	require.NoError(t, s.SaveResource(ctx, &on))
	require.NoError(t, s.SaveResource(ctx, &off))

	active, err := s.ListResources(ctx, model.KindDriver, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Bea", active[0].Name)

	_, err = s.GetResource(ctx, model.KindTruck, on.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

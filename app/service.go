package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/haulboard/api"
	"github.com/kilianp07/haulboard/config"
	"github.com/kilianp07/haulboard/core/conflict"
	"github.com/kilianp07/haulboard/core/cut"
	"github.com/kilianp07/haulboard/core/notify"
	"github.com/kilianp07/haulboard/core/planning"
	"github.com/kilianp07/haulboard/core/registry"
	"github.com/kilianp07/haulboard/core/store"
	"github.com/kilianp07/haulboard/infra/gormstore"
	"github.com/kilianp07/haulboard/infra/logger"
	"github.com/kilianp07/haulboard/infra/metrics"
	"github.com/kilianp07/haulboard/infra/mqtt"
	"github.com/kilianp07/haulboard/infra/natsbus"
	"github.com/kilianp07/haulboard/internal/eventbus"
	"github.com/kilianp07/haulboard/jobs/repair"
)

// Service wires the store, the planning core, the notification fan-out and
// the HTTP API.
type Service struct {
	Store    store.Store
	Board    *planning.Board
	Cuts     *cut.Manager
	Checker  *conflict.Checker
	Registry *registry.Registry
	Fanout   *notify.Fanout

	cfg        *config.Config
	log        logger.Logger
	handler    http.Handler
	closeStore func() error
	repair     *repair.Job
	closeOnce  sync.Once
}

// New builds a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	log := logger.New("service")

	st, closeStore, err := openStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	pub, err := openPublisher(cfg.Notify)
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	fan := notify.NewFanout(eventbus.New[notify.Event](64), pub, logger.New("notify"), notify.WithTimeout(cfg.Notify.Timeout()))

	reg := registry.New(st)
	checker := conflict.New(st, reg)
	board := planning.NewBoard(st, reg, checker, fan, logger.New("planning"),
		planning.WithGuardedAssignments(cfg.Planning.GuardAssignments))
	cuts := cut.NewManager(st, fan, logger.New("cut"))

	svc := &Service{
		Store:      st,
		Board:      board,
		Cuts:       cuts,
		Checker:    checker,
		Registry:   reg,
		Fanout:     fan,
		cfg:        cfg,
		log:        log,
		closeStore: closeStore,
		repair:     repair.New(cuts, logger.New("repair"), 0),
	}
	svc.handler = api.NewRouter(api.Deps{
		Board:    board,
		Cuts:     cuts,
		Checker:  checker,
		Registry: reg,
		Stream:   fan,
		Log:      logger.New("api"),
	}, api.Options{
		JWTSecret:   []byte(cfg.HTTP.JWTSecret),
		CORSOrigins: cfg.HTTP.CORSOrigins,
	})
	return svc, nil
}

func openStore(cfg config.DatabaseConfig) (store.Store, func() error, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := gormstore.Open(cfg.Postgres, logger.New("gorm"))
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store: %w", err)
		}
		return s, s.Close, nil
	default:
		return store.NewMemoryStore(), func() error { return nil }, nil
	}
}

func openPublisher(cfg config.NotifyConfig) (notify.Publisher, error) {
	switch cfg.Backend {
	case config.BackendMQTT:
		p, err := mqtt.NewPublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		return p, nil
	case config.BackendNATS:
		p, err := natsbus.Connect(cfg.NATS)
		if err != nil {
			return nil, fmt.Errorf("nats publisher: %w", err)
		}
		return p, nil
	default:
		return nil, nil
	}
}

// Handler returns the HTTP handler of the API.
func (s *Service) Handler() http.Handler { return s.handler }

// Repair runs one cut-info repair pass.
func (s *Service) Repair(ctx context.Context) (int, error) { return s.Cuts.Repair(ctx) }

// Run serves the API, the metrics endpoint and the repair schedule until
// ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.repair.Run(ctx)
	if spec := s.cfg.Maintenance.RepairSchedule; spec != "" {
		if err := s.repair.Start(ctx, spec); err != nil {
			return fmt.Errorf("repair schedule: %w", err)
		}
	}
	if s.cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewEventSink(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("event sink: %w", err)
		}
		metrics.StartEventCollector(ctx, s.Fanout, sink)
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.Addr(), nil, logger.New("metrics")); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	srv := api.NewServer(s.cfg.HTTP.Address, s.handler, s.cfg.HTTP.ShutdownTimeout(), logger.New("http"))
	return srv.Run(ctx)
}

// Close stops the scheduler, flushes pending notifications and releases
// the store.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.repair.Stop()
		err = errors.Join(s.Fanout.Close(), s.closeStore())
	})
	return err
}

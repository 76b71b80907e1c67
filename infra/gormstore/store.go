// Package gormstore persists the planning board in PostgreSQL through gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kilianp07/haulboard/core/logger"
	"github.com/kilianp07/haulboard/core/model"
	"github.com/kilianp07/haulboard/core/store"
)

// Config holds connection settings for the PostgreSQL store.
type Config struct {
	DSN                string `json:"dsn"`
	MaxIdleConns       int    `json:"max_idle_conns"`
	MaxOpenConns       int    `json:"max_open_conns"`
	ConnMaxLifetimeSec int    `json:"conn_max_lifetime_sec"`
	// LogLevel is one of silent, error, warn or info.
	LogLevel string `json:"log_level"`
}

// SetDefaults fills pool sizes when unset.
func (c *Config) SetDefaults() {
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 50
	}
	if c.ConnMaxLifetimeSec == 0 {
		c.ConnMaxLifetimeSec = 3600
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

// Validate checks the connection settings.
func (c Config) Validate() error {
	if c.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.MaxIdleConns < 0 || c.MaxOpenConns < 0 {
		return errors.New("database pool sizes must be positive")
	}
	return nil
}

var _ store.Store = (*Store)(nil)

// Store implements store.Store on a gorm connection.
type Store struct {
	db   *gorm.DB
	inTx bool
}

// Open connects to PostgreSQL, configures the pool and migrates the schema.
func Open(cfg Config, log logger.Logger) (*Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop{}
	}
	level := parseLogLevel(cfg.LogLevel)
	gl := gormlogger.New(gormWriter{log: log, level: level}, gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
	})
	db, err := gorm.Open(postgres.Open(withUTC(cfg.DSN)), &gorm.Config{
		Logger:         gl,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeSec) * time.Second)

	s := New(db)
	if err := s.Migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	log.Infof("connected to postgres")
	return s, nil
}

// New wraps an existing gorm connection.
func New(db *gorm.DB) *Store { return &Store{db: db} }

// Migrate creates or updates every table of the board.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(
		&model.Transport{},
		&model.Destination{},
		&model.Note{},
		&model.PlanningSlot{},
		&model.TransportSlot{},
		&model.CutLocation{},
		&model.CutInfo{},
		&model.Resource{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn inside a database transaction. Nested calls reuse the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, inTx: true})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB { return s.db.WithContext(ctx) }

// forUpdate locks selected rows until the transaction ends.
func (s *Store) forUpdate(q *gorm.DB) *gorm.DB {
	if s.inTx {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (s *Store) transports(ctx context.Context) *gorm.DB {
	return s.conn(ctx).
		Preload("Destinations", func(db *gorm.DB) *gorm.DB { return db.Order("position, id") }).
		Preload("Notes", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") })
}

func (s *Store) GetTransport(ctx context.Context, id string) (model.Transport, error) {
	var t model.Transport
	if err := s.transports(ctx).First(&t, "id = ?", id).Error; err != nil {
		return model.Transport{}, translate(err, "transport", id)
	}
	return t, nil
}

// SaveTransport upserts the transport and replaces its destinations and notes.
func (s *Store) SaveTransport(ctx context.Context, t *model.Transport) error {
	if t.ID == "" {
		t.ID = model.NewID()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Reference = model.NormalizeReference(t.OrderNumber)
	for i := range t.Destinations {
		if t.Destinations[i].ID == "" {
			t.Destinations[i].ID = model.NewID()
		}
		t.Destinations[i].TransportID = t.ID
	}
	for i := range t.Notes {
		if t.Notes[i].ID == "" {
			t.Notes[i].ID = model.NewID()
		}
		if t.Notes[i].CreatedAt.IsZero() {
			t.Notes[i].CreatedAt = now
		}
		t.Notes[i].TransportID = t.ID
	}
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(t).Error; err != nil {
			return err
		}
		if err := tx.Where("transport_id = ?", t.ID).Delete(&model.Destination{}).Error; err != nil {
			return err
		}
		if err := tx.Where("transport_id = ?", t.ID).Delete(&model.Note{}).Error; err != nil {
			return err
		}
		if len(t.Destinations) > 0 {
			if err := tx.Create(&t.Destinations).Error; err != nil {
				return err
			}
		}
		if len(t.Notes) > 0 {
			if err := tx.Create(&t.Notes).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return translate(err, "transport", t.ID)
}

func (s *Store) ListTransports(ctx context.Context, f store.TransportFilter) ([]model.Transport, error) {
	q := s.transports(ctx)
	if !f.IncludeDeleted {
		q = q.Where("is_deleted = ?", false)
	}
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if f.Reference != "" {
		q = q.Where("reference = ?", model.NormalizeReference(f.Reference))
	}
	if len(f.OriginalIDs) > 0 {
		q = q.Where("original_transport_id IN ?", f.OriginalIDs)
	}
	if f.ClientID != "" {
		q = q.Where("client_id = ?", f.ClientID)
	}
	res := []model.Transport{}
	if err := q.Order("created_at, id").Find(&res).Error; err != nil {
		return nil, fmt.Errorf("list transports: %w", err)
	}
	return res, nil
}

func (s *Store) GetSlot(ctx context.Context, id string) (model.PlanningSlot, error) {
	var sl model.PlanningSlot
	if err := s.conn(ctx).First(&sl, "id = ?", id).Error; err != nil {
		return model.PlanningSlot{}, translate(err, "slot", id)
	}
	normalizeSlot(&sl)
	return sl, nil
}

func (s *Store) SaveSlot(ctx context.Context, sl *model.PlanningSlot) error {
	if sl.ID == "" {
		sl.ID = model.NewID()
	}
	now := time.Now().UTC()
	if sl.CreatedAt.IsZero() {
		sl.CreatedAt = now
	}
	sl.UpdatedAt = now
	sl.Day = model.Day(sl.Day)
	return translate(s.conn(ctx).Save(sl).Error, "slot", sl.ID)
}

func (s *Store) DeleteSlot(ctx context.Context, id string) error {
	res := s.conn(ctx).Delete(&model.PlanningSlot{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, "slot", id)
	}
	if res.RowsAffected == 0 {
		return model.NotFound("slot", id)
	}
	return nil
}

func (s *Store) ListSlots(ctx context.Context, f store.SlotFilter) ([]model.PlanningSlot, error) {
	q := s.conn(ctx)
	if !f.Day.IsZero() {
		q = q.Where("day = ?", dayParam(f.Day))
	}
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if f.DriverID != "" {
		q = q.Where("driver_id = ?", f.DriverID)
	}
	if f.TruckID != "" {
		q = q.Where("truck_id = ?", f.TruckID)
	}
	res := []model.PlanningSlot{}
	if err := q.Order("display_order, number, id").Find(&res).Error; err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	for i := range res {
		normalizeSlot(&res[i])
	}
	return res, nil
}

// FindAssignment locks the row when called inside a transaction.
func (s *Store) FindAssignment(ctx context.Context, transportID string, day time.Time) (model.TransportSlot, error) {
	day = model.Day(day)
	var a model.TransportSlot
	err := s.forUpdate(s.conn(ctx)).
		Where("transport_id = ? AND date = ?", transportID, dayParam(day)).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.TransportSlot{}, &model.Error{Kind: model.ErrNotFound, Entity: "assignment", ID: transportID, Date: day}
	}
	if err != nil {
		return model.TransportSlot{}, fmt.Errorf("find assignment: %w", err)
	}
	normalizeAssignment(&a)
	return a, nil
}

func (s *Store) SaveAssignment(ctx context.Context, a *model.TransportSlot) error {
	a.Date = model.Day(a.Date)
	if a.ID == "" {
		a.ID = model.NewID()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	err := s.conn(ctx).Save(a).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &model.Error{Kind: model.ErrConflict, Entity: "assignment", ID: a.TransportID, Date: a.Date, Message: "row already exists"}
	}
	return translate(err, "assignment", a.ID)
}

func (s *Store) ListAssignments(ctx context.Context, f store.AssignmentFilter) ([]model.TransportSlot, error) {
	q := s.conn(ctx)
	if f.TransportID != "" {
		q = q.Where("transport_id = ?", f.TransportID)
	}
	if f.SlotID != "" {
		q = q.Where("slot_id = ?", f.SlotID)
	}
	if f.Unassigned {
		q = q.Where("slot_id IS NULL")
	}
	if !f.Date.IsZero() {
		q = q.Where("date = ?", dayParam(f.Date))
	}
	res := []model.TransportSlot{}
	if err := q.Order("date, slot_order, id").Find(&res).Error; err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	for i := range res {
		normalizeAssignment(&res[i])
	}
	return res, nil
}

// GetCutInfo locks the row when called inside a transaction.
func (s *Store) GetCutInfo(ctx context.Context, transportID string) (model.CutInfo, error) {
	var c model.CutInfo
	if err := s.forUpdate(s.conn(ctx)).First(&c, "transport_id = ?", transportID).Error; err != nil {
		return model.CutInfo{}, translate(err, "cut info", transportID)
	}
	normalizeCutInfo(&c)
	return c, nil
}

// SaveCutInfo upserts by transport id; a transport has at most one row.
func (s *Store) SaveCutInfo(ctx context.Context, c *model.CutInfo) error {
	db := s.conn(ctx)
	if c.ID == "" {
		var existing model.CutInfo
		err := db.Select("id", "created_at").First(&existing, "transport_id = ?", c.TransportID).Error
		switch {
		case err == nil:
			c.ID = existing.ID
			c.CreatedAt = existing.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("lookup cut info: %w", err)
		}
	}
	if c.ID == "" {
		c.ID = model.NewID()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.StartDate = model.Day(c.StartDate)
	return translate(db.Save(c).Error, "cut info", c.TransportID)
}

func (s *Store) ListCutInfos(ctx context.Context, f store.CutInfoFilter) ([]model.CutInfo, error) {
	q := s.conn(ctx)
	if f.LocationID != "" {
		q = q.Where("location_id = ?", f.LocationID)
	}
	if len(f.TransportIDs) > 0 {
		q = q.Where("transport_id IN ?", f.TransportIDs)
	}
	res := []model.CutInfo{}
	if err := q.Order("start_date, id").Find(&res).Error; err != nil {
		return nil, fmt.Errorf("list cut infos: %w", err)
	}
	for i := range res {
		normalizeCutInfo(&res[i])
	}
	return res, nil
}

func (s *Store) GetLocation(ctx context.Context, id string) (model.CutLocation, error) {
	var l model.CutLocation
	if err := s.conn(ctx).First(&l, "id = ?", id).Error; err != nil {
		return model.CutLocation{}, translate(err, "cut location", id)
	}
	return l, nil
}

func (s *Store) SaveLocation(ctx context.Context, l *model.CutLocation) error {
	if l.ID == "" {
		l.ID = model.NewID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	return translate(s.conn(ctx).Save(l).Error, "cut location", l.ID)
}

func (s *Store) DeleteLocation(ctx context.Context, id string) error {
	res := s.conn(ctx).Delete(&model.CutLocation{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, "cut location", id)
	}
	if res.RowsAffected == 0 {
		return model.NotFound("cut location", id)
	}
	return nil
}

func (s *Store) GetResource(ctx context.Context, kind model.ResourceKind, id string) (model.Resource, error) {
	var r model.Resource
	if err := s.conn(ctx).First(&r, "id = ? AND kind = ?", id, kind).Error; err != nil {
		return model.Resource{}, translate(err, string(kind), id)
	}
	return r, nil
}

func (s *Store) SaveResource(ctx context.Context, r *model.Resource) error {
	if r.ID == "" {
		r.ID = model.NewID()
	}
	return translate(s.conn(ctx).Save(r).Error, string(r.Kind), r.ID)
}

func (s *Store) ListResources(ctx context.Context, kind model.ResourceKind, activeOnly bool) ([]model.Resource, error) {
	q := s.conn(ctx)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	res := []model.Resource{}
	if err := q.Order("name, id").Find(&res).Error; err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return res, nil
}

func translate(err error, entity, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.NotFound(entity, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &model.Error{Kind: model.ErrConflict, Entity: entity, ID: id, Message: "duplicate key"}
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return model.InUse(entity, id, "still referenced")
	default:
		return fmt.Errorf("%s %s: %w", entity, id, err)
	}
}

// dayParam binds a calendar day as a date literal so the session time zone
// cannot shift it.
func dayParam(t time.Time) string { return model.Day(t).Format(model.DayLayout) }

func normalizeSlot(s *model.PlanningSlot) { s.Day = model.Day(s.Day) }

func normalizeAssignment(a *model.TransportSlot) {
	a.Date = model.Day(a.Date)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
}

func normalizeCutInfo(c *model.CutInfo) {
	c.StartDate = model.Day(c.StartDate)
	if c.EndDate != nil {
		end := c.EndDate.UTC()
		c.EndDate = &end
	}
}

// withUTC pins the session time zone of the DSN to UTC unless it sets one.
func withUTC(dsn string) string {
	if strings.Contains(strings.ToLower(dsn), "timezone") {
		return dsn
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		q := u.Query()
		q.Set("timezone", "UTC")
		u.RawQuery = q.Encode()
		return u.String()
	}
	return strings.TrimSpace(dsn) + " TimeZone=UTC"
}

func parseLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// gormWriter forwards gorm's log lines. Below the info level gorm only
// prints slow queries and errors, which go out as warnings; at info every
// statement is traced and stays at debug.
type gormWriter struct {
	log   logger.Logger
	level gormlogger.LogLevel
}

func (w gormWriter) Printf(format string, args ...any) {
	if w.level >= gormlogger.Info {
		w.log.Debugf(format, args...)
		return
	}
	w.log.Warnf(format, args...)
}

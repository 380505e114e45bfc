package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"downtime-backend/internal/model"
	"downtime-backend/internal/tenant"
)

// ErrNotFound is returned when a row does not exist or is outside the tenant scope.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for all database operations.
type Store interface {
	// Transaction runs fn against a Store bound to a single database transaction.
	// The transaction is rolled back if fn returns an error.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	FindMachine(ctx context.Context, scope tenant.Scope, machineID string) (*model.Machine, error)
	// LockMachine loads the machine and holds a row lock on it until the
	// surrounding transaction ends.
	LockMachine(ctx context.Context, scope tenant.Scope, machineID string) (*model.Machine, error)
	ListMachines(ctx context.Context, scope tenant.Scope, filter MachineFilter) ([]model.Machine, error)
	UpdateMachineStatus(ctx context.Context, machineID string, status model.MachineStatus) error

	GetStoppage(ctx context.Context, scope tenant.Scope, id string) (*model.StoppageEvent, error)
	ListStoppages(ctx context.Context, scope tenant.Scope, filter StoppageFilter) ([]model.StoppageEvent, error)
	// OpenStoppages returns the open events of a machine, oldest first, leaving
	// out excludeID when it is not empty.
	OpenStoppages(ctx context.Context, machineID, excludeID string) ([]model.StoppageEvent, error)
	OpenCategories(ctx context.Context, machineID string) ([]model.StoppageCategory, error)
	CreateStoppage(ctx context.Context, event *model.StoppageEvent) error
	SaveStoppage(ctx context.Context, event *model.StoppageEvent) error
	DeleteStoppage(ctx context.Context, id string) error

	UpsertSectionsAndMachines(ctx context.Context, tenantID string, items []RegistryItem) error

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// scoped restricts a query to the tenant of the scope.
func scoped(scope tenant.Scope) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if scope.All {
			return db
		}
		return db.Where("tenant_id = ?", scope.TenantID)
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *gormStore) FindMachine(ctx context.Context, scope tenant.Scope, machineID string) (*model.Machine, error) {
	var machine model.Machine
	if err := s.db.WithContext(ctx).Scopes(scoped(scope)).
		Preload("Section").
		Where("id = ?", machineID).
		First(&machine).Error; err != nil {
		return nil, notFound(err)
	}
	return &machine, nil
}

func (s *gormStore) LockMachine(ctx context.Context, scope tenant.Scope, machineID string) (*model.Machine, error) {
	q := s.db.WithContext(ctx).Scopes(scoped(scope))
	// SQLite has no FOR UPDATE; its pool is pinned to one connection instead.
	if s.db.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var machine model.Machine
	if err := q.Where("id = ?", machineID).First(&machine).Error; err != nil {
		return nil, notFound(err)
	}
	return &machine, nil
}

// MachineFilter narrows ListMachines.
type MachineFilter struct {
	SectionID string
	Status    model.MachineStatus
}

func (s *gormStore) ListMachines(ctx context.Context, scope tenant.Scope, filter MachineFilter) ([]model.Machine, error) {
	q := s.db.WithContext(ctx).Scopes(scoped(scope)).Preload("Section")
	if filter.SectionID != "" {
		q = q.Where("section_id = ?", filter.SectionID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var machines []model.Machine
	if err := q.Order("code").Find(&machines).Error; err != nil {
		return nil, err
	}
	return machines, nil
}

func (s *gormStore) UpdateMachineStatus(ctx context.Context, machineID string, status model.MachineStatus) error {
	res := s.db.WithContext(ctx).Model(&model.Machine{}).
		Where("id = ?", machineID).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update status of machine %s: %w", machineID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) GetStoppage(ctx context.Context, scope tenant.Scope, id string) (*model.StoppageEvent, error) {
	var event model.StoppageEvent
	if err := s.db.WithContext(ctx).Scopes(scoped(scope)).
		Where("id = ?", id).
		First(&event).Error; err != nil {
		return nil, notFound(err)
	}
	return &event, nil
}

// StoppageFilter narrows ListStoppages. Zero values mean "no restriction".
type StoppageFilter struct {
	MachineID string
	Open      *bool
	From      *time.Time // start time >= From
	To        *time.Time // start time < To
	Limit     int
	Offset    int
}

func (s *gormStore) ListStoppages(ctx context.Context, scope tenant.Scope, filter StoppageFilter) ([]model.StoppageEvent, error) {
	q := s.db.WithContext(ctx).Scopes(scoped(scope))
	if filter.MachineID != "" {
		q = q.Where("machine_id = ?", filter.MachineID)
	}
	if filter.Open != nil {
		if *filter.Open {
			q = q.Where("end_time IS NULL")
		} else {
			q = q.Where("end_time IS NOT NULL")
		}
	}
	if filter.From != nil {
		q = q.Where("start_time >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("start_time < ?", *filter.To)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var events []model.StoppageEvent
	if err := q.Order("start_time DESC").Order("id").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *gormStore) openQuery(ctx context.Context, machineID string) *gorm.DB {
	return s.db.WithContext(ctx).Model(&model.StoppageEvent{}).
		Where("machine_id = ? AND end_time IS NULL", machineID)
}

func (s *gormStore) OpenStoppages(ctx context.Context, machineID, excludeID string) ([]model.StoppageEvent, error) {
	q := s.openQuery(ctx, machineID)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}

	var events []model.StoppageEvent
	if err := q.Order("start_time").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch open stoppages of machine %s: %w", machineID, err)
	}
	return events, nil
}

func (s *gormStore) OpenCategories(ctx context.Context, machineID string) ([]model.StoppageCategory, error) {
	var categories []model.StoppageCategory
	if err := s.openQuery(ctx, machineID).Pluck("category", &categories).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch open categories of machine %s: %w", machineID, err)
	}
	return categories, nil
}

func (s *gormStore) CreateStoppage(ctx context.Context, event *model.StoppageEvent) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(event).Error; err != nil {
		return fmt.Errorf("failed to create stoppage for machine %s: %w", event.MachineID, err)
	}
	return nil
}

func (s *gormStore) SaveStoppage(ctx context.Context, event *model.StoppageEvent) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(event).Error; err != nil {
		return fmt.Errorf("failed to save stoppage %s: %w", event.ID, err)
	}
	return nil
}

func (s *gormStore) DeleteStoppage(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.StoppageEvent{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete stoppage %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

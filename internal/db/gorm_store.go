package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/leelachesszero/sprt-server/internal/coordinator"
	"github.com/leelachesszero/sprt-server/internal/db/queries"
	"github.com/leelachesszero/sprt-server/internal/models"
)

var _ coordinator.Store = (*GormStore)(nil)

// GormStore keeps engines and tests in PostgreSQL.
type GormStore struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// NewGormStore wraps an open gorm connection.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	return &GormStore{db: db, sqlDB: sqlDB}, nil
}

// Engine implements coordinator.EngineRegistry.
func (s *GormStore) Engine(ctx context.Context, id uint) (models.Engine, error) {
	e, err := queries.FetchEngineByID(ctx, s.sqlDB, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Engine{}, fmt.Errorf("engine %d: %w", id, coordinator.ErrNotFound)
	}
	if err != nil {
		return models.Engine{}, fmt.Errorf("fetch engine %d: %w", id, err)
	}
	return *e, nil
}

func (s *GormStore) CreateEngine(ctx context.Context, e *models.Engine) error {
	return s.db.WithContext(ctx).Create(e).Error
}

// CreateTest inserts t without touching the engine rows it references.
func (s *GormStore) CreateTest(ctx context.Context, t *models.Test) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(t).Error
}

func (s *GormStore) SaveTest(ctx context.Context, t *models.Test) error {
	n, err := queries.UpdateTestState(ctx, s.sqlDB, t)
	if err != nil {
		return fmt.Errorf("update test %d: %w", t.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("test %d: %w", t.ID, coordinator.ErrNotFound)
	}
	return nil
}

func (s *GormStore) ListTests(ctx context.Context) ([]models.Test, error) {
	var tests []models.Test
	err := s.db.WithContext(ctx).
		Preload("Dev").
		Preload("Base").
		Order("id").
		Find(&tests).Error
	return tests, err
}

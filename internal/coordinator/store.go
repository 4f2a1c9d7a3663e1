package coordinator

import (
	"context"
	"errors"

	"github.com/leelachesszero/sprt-server/internal/models"
)

// ErrNotFound is wrapped by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// EngineRegistry resolves engine identities. Read only from the
// coordinator's point of view.
type EngineRegistry interface {
	Engine(ctx context.Context, id uint) (models.Engine, error)
}

// Store persists engines and tests. Leases are never persisted.
type Store interface {
	EngineRegistry
	CreateEngine(ctx context.Context, e *models.Engine) error
	// CreateTest assigns t.ID.
	CreateTest(ctx context.Context, t *models.Test) error
	// SaveTest writes the mutable statistics and status of t.
	SaveTest(ctx context.Context, t *models.Test) error
	// ListTests returns every test with its engines resolved.
	ListTests(ctx context.Context) ([]models.Test, error)
}

// Package queries contains the hand written SQL used on the hot path.
package queries

import (
	"context"
	"database/sql"

	"github.com/leelachesszero/sprt-server/internal/models"
)

// FetchEngineByID returns an engine by its ID.
func FetchEngineByID(ctx context.Context, db *sql.DB, id uint) (*models.Engine, error) {
	row := db.QueryRowContext(ctx, `
SELECT id, created_at, name, source, sha, bench
FROM engines
WHERE id = $1`, id)
	var e models.Engine
	err := row.Scan(&e.ID, &e.CreatedAt, &e.Name, &e.Source, &e.Sha, &e.Bench)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateTestState writes the counters, LLR and status of a test and returns
// the number of rows changed.
func UpdateTestState(ctx context.Context, db *sql.DB, t *models.Test) (int64, error) {
	res, err := db.ExecContext(ctx, `
UPDATE tests
SET games = $1, wins = $2, draws = $3, losses = $4,
	ll = $5, ld = $6, dd = $7, dw = $8, ww = $9,
	current_llr = $10, status = $11, error_reason = $12, updated_at = $13
WHERE id = $14`,
		t.Games, t.Wins, t.Draws, t.Losses,
		t.LL, t.LD, t.DD, t.DW, t.WW,
		t.CurrentLLR, t.Status, t.ErrorReason, t.UpdatedAt,
		t.ID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

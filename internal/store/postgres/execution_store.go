package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore on cycle_executions.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore on pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionColumns = `group_id, cycle, kind, direction, coefficient, leg_count, placed_count, outcome, created_at`

// Create inserts a summary. Re-inserting the same group is a no-op.
func (s *ExecutionStore) Create(ctx context.Context, e domain.CycleExecution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cycle_executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (group_id) DO NOTHING`,
		e.GroupID, e.Cycle, string(e.Kind), string(e.Direction), e.Coefficient,
		e.LegCount, e.PlacedCount, string(e.Outcome), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create cycle execution %s: %w", e.GroupID, err)
	}
	return nil
}

// GetByGroupID returns domain.ErrNotFound for an unknown group.
func (s *ExecutionStore) GetByGroupID(ctx context.Context, groupID string) (domain.CycleExecution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM cycle_executions WHERE group_id = $1`, groupID)
	e, err := scanExecution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CycleExecution{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CycleExecution{}, fmt.Errorf("postgres: get cycle execution %s: %w", groupID, err)
	}
	return e, nil
}

// ListRecent returns the newest summaries first. An empty cycle matches all.
func (s *ExecutionStore) ListRecent(ctx context.Context, cycle string, limit int) ([]domain.CycleExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+executionColumns+` FROM cycle_executions
		WHERE ($1 = '' OR cycle = $1)
		ORDER BY created_at DESC
		LIMIT $2`, cycle, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list cycle executions: %w", err)
	}
	defer rows.Close()

	var out []domain.CycleExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan cycle execution: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list cycle executions rows: %w", err)
	}
	return out, nil
}

func scanExecution(row pgx.Row) (domain.CycleExecution, error) {
	var (
		e                        domain.CycleExecution
		kind, direction, outcome string
	)
	if err := row.Scan(&e.GroupID, &e.Cycle, &kind, &direction, &e.Coefficient,
		&e.LegCount, &e.PlacedCount, &outcome, &e.CreatedAt); err != nil {
		return domain.CycleExecution{}, err
	}
	e.Kind = domain.CycleKind(kind)
	e.Direction = domain.Direction(direction)
	e.Outcome = domain.PlacementOutcome(outcome)
	return e, nil
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)

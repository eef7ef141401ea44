package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// OrderStore implements domain.OrderStore on the arbitrage_orders table.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore on pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `data_id, group_id, cycle, direction, venue, base, quote, side,
	price, quantity, filled_quantity, avg_price, fee_rate, status, order_id,
	created_at, modified_at`

// SaveOrUpdate upserts o by DataID. Rows already FILLED or CANCELED are left
// untouched so a replayed write cannot resurrect a finished leg.
func (s *OrderStore) SaveOrUpdate(ctx context.Context, o *domain.ArbitrageOrder) error {
	const query = `
		INSERT INTO arbitrage_orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (data_id) DO UPDATE SET
			price           = EXCLUDED.price,
			quantity        = EXCLUDED.quantity,
			filled_quantity = EXCLUDED.filled_quantity,
			avg_price       = EXCLUDED.avg_price,
			status          = EXCLUDED.status,
			order_id        = EXCLUDED.order_id,
			modified_at     = EXCLUDED.modified_at
		WHERE arbitrage_orders.status NOT IN ('FILLED', 'CANCELED')`

	_, err := s.pool.Exec(ctx, query,
		o.DataID, o.GroupID, o.Cycle, string(o.Direction), o.Venue, o.Base, o.Quote, string(o.Side),
		o.Price, o.Quantity, o.FilledQuantity, o.AvgPrice, o.FeeRate, string(o.Status), nullable(o.OrderID),
		o.CreatedAt, o.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save order %s: %w", o.DataID, err)
	}
	return nil
}

// Find returns rows matching f, oldest first.
func (s *OrderStore) Find(ctx context.Context, f domain.OrderFilter) ([]domain.ArbitrageOrder, error) {
	query, args := buildFindQuery(f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: find orders: %w", err)
	}
	defer rows.Close()

	var out []domain.ArbitrageOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: find orders rows: %w", err)
	}
	return out, nil
}

// buildFindQuery renders f as a parameterised SELECT.
func buildFindQuery(f domain.OrderFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if len(f.Venues) > 0 {
		add("venue = ANY($%d)", f.Venues)
	}
	if len(f.InstrumentKeys) > 0 {
		add("(venue || ':' || base || '_' || quote) = ANY($%d)", f.InstrumentKeys)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", statuses)
	}
	if f.GroupID != "" {
		add("group_id = $%d", f.GroupID)
	}
	if f.ModifiedBefore != nil {
		add("modified_at < $%d", *f.ModifiedBefore)
	}

	query := "SELECT " + orderColumns + " FROM arbitrage_orders"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, data_id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func scanOrder(row pgx.Row) (domain.ArbitrageOrder, error) {
	var (
		o                       domain.ArbitrageOrder
		direction, side, status string
		orderID                 *string
	)
	err := row.Scan(
		&o.DataID, &o.GroupID, &o.Cycle, &direction, &o.Venue, &o.Base, &o.Quote, &side,
		&o.Price, &o.Quantity, &o.FilledQuantity, &o.AvgPrice, &o.FeeRate, &status, &orderID,
		&o.CreatedAt, &o.ModifiedAt,
	)
	if err != nil {
		return domain.ArbitrageOrder{}, fmt.Errorf("postgres: scan order: %w", err)
	}
	o.Direction = domain.Direction(direction)
	o.Side = domain.Side(side)
	o.Status = domain.OrderStatus(status)
	if orderID != nil {
		o.OrderID = *orderID
	}
	return o, nil
}

// nullable maps "" to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ domain.OrderStore = (*OrderStore)(nil)

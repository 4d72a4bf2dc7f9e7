package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository reads customers from Postgres.
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository wraps a pgx pool (or anything with the same query surface).
func NewPostgresRepository(db querier) *PostgresRepository {
	if db == nil {
		panic("customers: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const customerColumns = `
	id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(customer_segment, ''),
	COALESCE(response_count, 0), COALESCE(conversion_count, 0),
	COALESCE(email_open_rate, 0), COALESCE(click_rate, 0), COALESCE(total_spent, 0)
`

// List returns customers ordered by total spent, highest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Customer, error) {
	filter = filter.normalized()
	query := `SELECT ` + customerColumns + `
		FROM customers
		WHERE ($1 = '' OR customer_segment = $1)
		ORDER BY total_spent DESC NULLS LAST
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, filter.Segment, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("customers: list failed: %w", err)
	}
	defer rows.Close()

	out := make([]Customer, 0, filter.Limit)
	for rows.Next() {
		var c Customer
		if err := scanCustomer(rows, &c); err != nil {
			return nil, fmt.Errorf("customers: scan failed: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("customers: list failed: %w", err)
	}
	return out, nil
}

// Get fetches a single customer.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	var c Customer
	if err := scanCustomer(r.db.QueryRow(ctx, query, id), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("customers: select failed: %w", err)
	}
	return &c, nil
}

func scanCustomer(row pgx.Row, c *Customer) error {
	return row.Scan(
		&c.ID,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.Segment,
		&c.ResponseCount,
		&c.ConversionCount,
		&c.EmailOpenRate,
		&c.ClickRate,
		&c.TotalSpent,
	)
}

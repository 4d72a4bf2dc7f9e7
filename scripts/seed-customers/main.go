package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/wolfman30/outreach-console/internal/customers"
)

const upsertCustomer = `
	INSERT INTO customers (
		id, name, email, phone, customer_segment,
		response_count, conversion_count, email_open_rate, click_rate, total_spent
	) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		email = EXCLUDED.email,
		phone = EXCLUDED.phone,
		customer_segment = EXCLUDED.customer_segment,
		response_count = EXCLUDED.response_count,
		conversion_count = EXCLUDED.conversion_count,
		email_open_rate = EXCLUDED.email_open_rate,
		click_rate = EXCLUDED.click_rate,
		total_spent = EXCLUDED.total_spent,
		updated_at = NOW()
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/seed-customers <customers.json>")
		os.Exit(1)
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		fmt.Println("Error: DATABASE_URL environment variable not set")
		os.Exit(1)
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Printf("Error opening file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	list, err := readCustomers(f)
	if err != nil {
		fmt.Printf("Error reading customers: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		fmt.Printf("Error connecting: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	n, err := seed(ctx, pool, list)
	if err != nil {
		fmt.Printf("Error seeding: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d customers\n", n)
}

// readCustomers decodes a JSON array of customers and drops entries without
// an id or any contact.
func readCustomers(r io.Reader) ([]customers.Customer, error) {
	var raw []customers.Customer
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	out := raw[:0]
	for _, c := range raw {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" || !c.HasContact() {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// seed upserts every customer in one transaction.
func seed(ctx context.Context, db txStarter, list []customers.Customer) (int, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range list {
		if _, err := tx.Exec(ctx, upsertCustomer,
			c.ID, c.Name, c.Email, c.Phone, c.Segment,
			c.ResponseCount, c.ConversionCount, c.EmailOpenRate, c.ClickRate, c.TotalSpent,
		); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(list), nil
}

type txStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

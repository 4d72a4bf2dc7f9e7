package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	appmigrations "github.com/wolfman30/outreach-console/migrations"
)

// migrator is the subset of *migrate.Migrate the commands use.
type migrator interface {
	Up() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
}

func main() {
	_ = godotenv.Load()

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("db driver: %v", err)
	}

	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		log.Fatalf("source driver: %v", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	defer func() { _, _ = m.Close() }()

	msg, err := run(m, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(msg)
}

// run executes one command: up (default), down [n], force <version> or version.
func run(m migrator, args []string) (string, error) {
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return "", fmt.Errorf("migrate up: %w", err)
		}
		return "migrations complete", nil

	case "down":
		steps := 1
		if len(args) >= 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return "", fmt.Errorf("invalid step count %q", args[1])
			}
			steps = n
		}
		if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return "", fmt.Errorf("migrate down: %w", err)
		}
		return fmt.Sprintf("rolled back %d migration(s)", steps), nil

	case "force":
		if len(args) < 2 {
			return "", errors.New("force requires a version")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return "", fmt.Errorf("invalid version: %w", err)
		}
		if err := m.Force(version); err != nil {
			return "", fmt.Errorf("force version: %w", err)
		}
		return fmt.Sprintf("forced version to %d", version), nil

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return "no migrations applied", nil
		}
		if err != nil {
			return "", fmt.Errorf("version: %w", err)
		}
		return fmt.Sprintf("version %d (dirty=%t)", version, dirty), nil

	default:
		return "", fmt.Errorf("unknown command %q", cmd)
	}
}

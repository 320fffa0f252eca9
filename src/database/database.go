// backend/src/database/database.go
package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	stdlog "log"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/username/trackfolio/backend/src/logger"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var DB *sql.DB

// Open opens a SQLite database with WAL, busy timeout and foreign keys enabled.
// ":memory:" is accepted and yields a private in-memory database on a single connection.
func Open(databasePath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", databasePath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", databasePath, err)
	}

	// Limit open connections to 1 for SQLite to avoid locking issues
	db.SetMaxOpenConns(1)
	if strings.HasPrefix(databasePath, ":memory:") {
		// The in-memory database lives as long as its only connection.
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
		db.SetMaxIdleConns(1)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func InitDB(databasePath string) {
	db, err := Open(databasePath)
	if err != nil {
		stdlog.Fatalf("%v", err)
	}
	DB = db
	logger.L.Info("Database connection established with WAL mode, busy_timeout, and foreign_keys enabled.")
}

// Migrate applies the embedded migrations to db. It does not close db.
func Migrate(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create sqlite migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migration instance creation failed: %w", err)
	}

	err = m.Up()
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.L.Info("No new database migrations to apply.")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	logger.L.Info("Database migrations applied successfully.")
	return nil
}

func RunMigrations() {
	if DB == nil {
		logger.L.Error("Database connection is not initialized before running migrations")
		return
	}

	logger.L.Info("Applying database migrations...", "source", "embedded")
	if err := Migrate(DB); err != nil {
		logger.L.Error("Failed to apply migrations", "error", err)
		stdlog.Fatalf("%v", err)
	}
}

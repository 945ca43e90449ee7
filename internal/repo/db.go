// Package repo is the relational Store: books, reviews, users and quick-rate
// idempotency records kept in SQLite or PostgreSQL through GORM. This file
// opens the two drivers and migrates the schema.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-library-backend/internal/domain"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = domain.ErrNotFound

// ErrDuplicate is returned on unique-index violations (user email).
var ErrDuplicate = domain.ErrDuplicate

type pool struct {
	maxOpen, maxIdle int
	idleTime, life   time.Duration
}

var (
	sqlitePool   = pool{maxOpen: 10, maxIdle: 10, idleTime: 5 * time.Minute, life: 30 * time.Minute}
	postgresPool = pool{maxOpen: 25, maxIdle: 10, idleTime: 5 * time.Minute, life: 30 * time.Minute}

	// WAL lets catalog reads proceed while a rating recompute writes.
	sqlitePragmas = []string{
		"journal_mode=WAL",
		"synchronous=NORMAL",
		"foreign_keys=ON",
		"busy_timeout=5000",
	}
)

// Open dispatches on the STORE_DRIVER value: target is a file path for
// "sqlite" and a DSN for "postgres".
func Open(driver, target string) (*gorm.DB, error) {
	switch driver {
	case "sqlite":
		return OpenSQLite(target)
	case "postgres":
		return OpenPostgres(target)
	default:
		return nil, fmt.Errorf("repo: unsupported driver %q", driver)
	}
}

// OpenSQLite opens (or creates) the library database at path with the pure
// Go driver. The parent directory must already exist.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("repo: sqlite directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	for _, p := range sqlitePragmas {
		if err := db.Exec("PRAGMA " + p).Error; err != nil {
			return nil, fmt.Errorf("repo: pragma %s: %w", p, err)
		}
	}
	return tune(db, sqlitePool)
}

// OpenPostgres connects to PostgreSQL using dsn.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("repo: postgres dsn is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	return tune(db, postgresPool)
}

// tune applies pool limits and attaches OpenTelemetry spans to every
// statement.
func tune(db *gorm.DB, p pool) (*gorm.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(p.maxOpen)
	sqlDB.SetMaxIdleConns(p.maxIdle)
	sqlDB.SetConnMaxIdleTime(p.idleTime)
	sqlDB.SetConnMaxLifetime(p.life)
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate creates or updates the books, reviews, users and idempotency
// tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Book{},
		&domain.Review{},
		&domain.User{},
		&domain.Idempotency{},
	)
}

// duplicateMarkers are driver messages for unique violations that
// TranslateError does not always map (SQLite wraps them differently).
var duplicateMarkers = []string{
	"unique constraint",
	"constraint failed: unique",
	"duplicate key",
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	for _, m := range duplicateMarkers {
		if strings.Contains(low, m) {
			return true
		}
	}
	return false
}

// notFound maps gorm.ErrRecordNotFound to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-library-backend/internal/domain"
	"github.com/tbourn/go-library-backend/internal/events"
	"github.com/tbourn/go-library-backend/internal/repo"
)

// newStore returns a migrated in-memory store private to the test. A single
// connection keeps every goroutine on the same database.
func newStore(t *testing.T) *repo.Store {
	t.Helper()
	return newStoreNamed(t, "")
}

// newStoreNamed is newStore for tests that need more than one database.
func newStoreNamed(t *testing.T, suffix string) *repo.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + suffix
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return repo.NewStore(db)
}

func seedBook(t *testing.T, st *repo.Store, title string) *domain.Book {
	t.Helper()
	b := &domain.Book{Title: title, Author: "Author", Genre: "Fiction"}
	b.ApplyDefaults()
	if err := st.CreateBook(context.Background(), b); err != nil {
		t.Fatalf("create book: %v", err)
	}
	return b
}

func mustBook(t *testing.T, st *repo.Store, id string) *domain.Book {
	t.Helper()
	b, err := st.GetBook(context.Background(), id)
	if err != nil {
		t.Fatalf("get book %s: %v", id, err)
	}
	return b
}

func wantKind(t *testing.T, err, kind error, msg string) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("want %v, got %v", kind, err)
	}
	if msg != "" && Message(err) != msg {
		t.Fatalf("message: want %q, got %q", msg, Message(err))
	}
}

// recPublisher records published events.
type recPublisher struct {
	mu     sync.Mutex
	topics []string
	events []*events.Event
	err    error
}

func (p *recPublisher) Publish(_ context.Context, topic string, ev *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, ev)
	return p.err
}

func (p *recPublisher) Close() error { return nil }

func (p *recPublisher) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

// failLocker never grants a lock.
type failLocker struct{}

func (failLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("lock backend down")
}

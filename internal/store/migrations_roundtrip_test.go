package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	databaseURL := "sqlite://" + filepath.Join(t.TempDir(), "finished.db")
	db, err := Open(ctx, databaseURL)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := ApplyMigrations(ctx, db, DialectSQLite); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewSQLStore(db, DialectSQLite)
}

func TestMigrationsAreIdempotentSQLite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := ApplyMigrations(ctx, s.DB(), DialectSQLite); err != nil {
		t.Fatalf("apply migrations twice: %v", err)
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 recorded migrations, got %d", count)
	}

	for _, table := range []string{"users", "items", "refresh_sessions", "revoked_access_tokens"} {
		var name string
		err := s.DB().QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestMigrationsApplyPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("FINISHED_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("FINISHED_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, DialectPostgres); err != nil {
		t.Fatalf("apply migrations (pass 1): %v", err)
	}
	if err := ApplyMigrations(ctx, db, DialectPostgres); err != nil {
		t.Fatalf("apply migrations (pass 2): %v", err)
	}

	s := NewSQLStore(db, DialectPostgres)
	if _, err := s.InsertItem(ctx, Item{Title: "Inception", Type: TypeMovies, UserID: "user-1"}); err != nil {
		t.Fatalf("insert item: %v", err)
	}
	items, err := s.ListItems(ctx, "user-1")
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 || items[0].Rank() != 0 {
		t.Fatalf("unexpected items: %+v", items)
	}
}

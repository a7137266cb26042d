package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"finished/api/internal/config"
	"finished/api/internal/ratelimit"
	"finished/api/internal/store"
)

type testEnv struct {
	store   *store.SQLStore
	service *Service
	handler http.Handler
}

func newTestEnv(t *testing.T, limiter *ratelimit.KeyedRateLimiter) *testEnv {
	t.Helper()
	return newTestEnvWithSessions(t, limiter, nil)
}

// newTestEnvWithSessions keeps sessions outside the items database when
// sessions is set.
func newTestEnvWithSessions(t *testing.T, limiter *ratelimit.KeyedRateLimiter, sessions SessionStore) *testEnv {
	t.Helper()
	ctx := context.Background()
	url := "sqlite://" + filepath.Join(t.TempDir(), "api.db")
	db, err := store.Open(ctx, url)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(ctx, db, store.DialectSQLite); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	sqlStore := store.NewSQLStore(db, store.DialectSQLite)
	svc := New(config.Config{
		TokenSecret: "test-secret",
		AccessTTL:   time.Hour,
		RefreshTTL:  24 * time.Hour,
	}, sqlStore, sessions, nil, nil)
	svc.UsePasswordCost(bcrypt.MinCost)

	return &testEnv{
		store:   sqlStore,
		service: svc,
		handler: NewHTTPServer(svc, "*", nil, limiter).Handler(),
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

// signIn registers a user and returns its access token.
func (e *testEnv) signIn(t *testing.T, email, name string) Session {
	t.Helper()
	ctx := context.Background()
	if _, err := e.service.SignUp(ctx, email, "password123", name); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	session, err := e.service.SignIn(ctx, email, "password123")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	return session
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
}

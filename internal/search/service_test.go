package search

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/goleak"

	"finished/api/internal/store"
)

type fakeItemSearcher struct {
	searchFn func(ctx context.Context, ownerID, text string, itemType store.ItemType, limit int) ([]store.Item, error)
	listFn   func(ctx context.Context) ([]store.Item, error)
}

func (f fakeItemSearcher) SearchItems(ctx context.Context, ownerID, text string, itemType store.ItemType, limit int) ([]store.Item, error) {
	return f.searchFn(ctx, ownerID, text, itemType, limit)
}

func (f fakeItemSearcher) ListAllItems(ctx context.Context) ([]store.Item, error) {
	return f.listFn(ctx)
}

func TestServiceFallsBackToSQL(t *testing.T) {
	var gotOwner string
	svc := NewService(nil, NewSQLSearch(fakeItemSearcher{
		searchFn: func(_ context.Context, ownerID, text string, itemType store.ItemType, _ int) ([]store.Item, error) {
			gotOwner = ownerID
			if itemType != store.TypeGames {
				t.Fatalf("expected type filter to be forwarded, got %q", itemType)
			}
			return []store.Item{{ID: "g1", Title: "Hades", Description: "roguelike", Type: store.TypeGames}}, nil
		},
	}), nil)

	resp := svc.Search(context.Background(), Query{OwnerID: "user-1", Text: "hades", Type: store.TypeGames})
	if gotOwner != "user-1" {
		t.Fatalf("expected owner scope, got %q", gotOwner)
	}
	if resp.Total != 1 || resp.Results[0].Snippet != "roguelike" || resp.Query != "hades" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestServiceReturnsEmptyResultsOnFailure(t *testing.T) {
	svc := NewService(nil, NewSQLSearch(fakeItemSearcher{
		searchFn: func(context.Context, string, string, store.ItemType, int) ([]store.Item, error) {
			return nil, errors.New("db down")
		},
	}), nil)

	resp := svc.Search(context.Background(), Query{OwnerID: "user-1", Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %+v", resp.Results)
	}
}

func TestServiceSkipsIndexingWithoutMeili(t *testing.T) {
	svc := NewService(nil, nil, nil)
	svc.IndexItems(store.Item{ID: "1"})
	svc.DeleteItem("1")
	svc.ReindexAll(context.Background())
	svc.Close()
}

func TestMeiliUnavailableFallsBackAndStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := NewMeili("http://127.0.0.1:1", "", nil)
	if m.Healthy() {
		t.Fatal("expected unreachable meilisearch to be unhealthy")
	}
	if _, _, err := m.Search(context.Background(), Query{OwnerID: "user-1", Text: "x"}); err == nil {
		t.Fatal("expected search against unhealthy meilisearch to fail")
	}

	svc := NewService(m, NewSQLSearch(fakeItemSearcher{
		searchFn: func(context.Context, string, string, store.ItemType, int) ([]store.Item, error) {
			return []store.Item{{ID: "1", Title: "Heat", Type: store.TypeMovies}}, nil
		},
	}), nil)
	if resp := svc.Search(context.Background(), Query{OwnerID: "user-1", Text: "heat"}); resp.Total != 1 {
		t.Fatalf("expected sql fallback hit, got %+v", resp)
	}
	svc.Close()
}

package finished

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"finished/api/internal/store"
)

func mixedStore() *ItemStore {
	return NewItemStore([]store.Item{
		{ID: "m1", Title: "Alien", Type: store.TypeMovies},
		{ID: "b1", Title: "Dune", Type: store.TypeBooks},
		{ID: "m2", Title: "Heat", Type: store.TypeMovies},
		{ID: "g1", Title: "Doom", Type: store.TypeGames},
		{ID: "m3", Title: "Ran", Type: store.TypeMovies},
	})
}

func TestItemStoreByTypeIsACopy(t *testing.T) {
	s := mixedStore()
	movies := s.ByType(store.TypeMovies)
	movies[0].Title = "changed"

	if got := s.ByType(store.TypeMovies)[0].Title; got != "Alien" {
		t.Fatalf("expected view mutation not to leak, got %q", got)
	}
	if diff := cmp.Diff([]string{"m1", "m2", "m3"}, ids(s.ByType(store.TypeMovies))); diff != "" {
		t.Errorf("movies mismatch (-want +got):\n%s", diff)
	}
	if got := s.ByType(store.TypeBooks); len(got) != 1 {
		t.Errorf("expected one book, got %v", got)
	}
}

func TestItemStoreMove(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		ok       bool
		want     []string
	}{
		{name: "first to last", from: 0, to: 2, ok: true, want: []string{"b1", "m2", "g1", "m3", "m1"}},
		{name: "last to first", from: 2, to: 0, ok: true, want: []string{"m3", "m1", "b1", "m2", "g1"}},
		{name: "adjacent", from: 0, to: 1, ok: true, want: []string{"b1", "m2", "m1", "g1", "m3"}},
		{name: "same index", from: 1, to: 1, ok: true, want: []string{"m1", "b1", "m2", "g1", "m3"}},
		{name: "out of range", from: 0, to: 3, ok: false, want: []string{"m1", "b1", "m2", "g1", "m3"}},
		{name: "negative", from: -1, to: 0, ok: false, want: []string{"m1", "b1", "m2", "g1", "m3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mixedStore()
			if ok := s.Move(store.TypeMovies, tt.from, tt.to); ok != tt.ok {
				t.Fatalf("Move() = %v, want %v", ok, tt.ok)
			}
			if diff := cmp.Diff(tt.want, ids(s.List())); diff != "" {
				t.Errorf("list mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestItemStoreMoveKeepsPartitions(t *testing.T) {
	s := mixedStore()
	before := map[store.ItemType][]string{}
	for _, itemType := range store.ItemTypes {
		before[itemType] = ids(s.ByType(itemType))
	}

	for from := 0; from < 3; from++ {
		for to := 0; to < 3; to++ {
			s.Move(store.TypeMovies, from, to)
		}
	}

	if diff := cmp.Diff(before[store.TypeBooks], ids(s.ByType(store.TypeBooks))); diff != "" {
		t.Errorf("books changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(before[store.TypeGames], ids(s.ByType(store.TypeGames))); diff != "" {
		t.Errorf("games changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(before[store.TypeMovies], ids(s.ByType(store.TypeMovies)), cmpSorted); diff != "" {
		t.Errorf("movie membership changed (-want +got):\n%s", diff)
	}
	if s.Len() != 5 {
		t.Errorf("expected 5 items, got %d", s.Len())
	}
}

func TestItemStoreRemoveAndSetTitle(t *testing.T) {
	s := mixedStore()
	if !s.Remove("b1") {
		t.Fatal("expected b1 to be removed")
	}
	if s.Remove("b1") {
		t.Fatal("expected second remove to report absent")
	}
	if _, ok := s.SetTitle("missing", "x"); ok {
		t.Fatal("expected SetTitle on unknown id to fail")
	}
	item, ok := s.SetTitle("g1", "Doom II")
	if !ok || item.Title != "Doom II" {
		t.Fatalf("unexpected SetTitle result %+v %v", item, ok)
	}
	if got, _ := s.Get("g1"); got.Title != "Doom II" {
		t.Errorf("expected stored title to change, got %q", got.Title)
	}
}

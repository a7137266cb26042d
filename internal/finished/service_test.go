package finished

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"finished/api/internal/search"
	"finished/api/internal/store"
)

func newLocalService(t *testing.T) (*Service, *fakeTable) {
	t.Helper()
	table := newFakeTable()
	index, err := search.NewLocalIndex()
	if err != nil {
		t.Fatalf("NewLocalIndex() error = %v", err)
	}
	t.Cleanup(func() { _ = index.Close() })
	svc := NewService(NewAdapter(newFileSlot(t), table, nil), index, nil)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return svc, table
}

func mustAdd(t *testing.T, svc *Service, title string, itemType store.ItemType) store.Item {
	t.Helper()
	item, err := svc.Add(context.Background(), title, "", itemType)
	if err != nil {
		t.Fatalf("Add(%q) error = %v", title, err)
	}
	return item
}

func TestAddValidation(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		title       string
		description string
		itemType    store.ItemType
	}{
		{name: "empty title", title: "", itemType: store.TypeMovies},
		{name: "blank title", title: " \t ", itemType: store.TypeMovies},
		{name: "long title", title: strings.Repeat("x", 91), itemType: store.TypeBooks},
		{name: "long description", title: "Alien", description: strings.Repeat("x", store.MaxDescriptionLength+1), itemType: store.TypeMovies},
		{name: "missing type", title: "Alien", itemType: ""},
		{name: "unknown type", title: "Alien", itemType: "music"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Add(ctx, tt.title, tt.description, tt.itemType)
			if !IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if _, err := svc.Add(ctx, "Heat", strings.Repeat("é", store.MaxDescriptionLength), store.TypeMovies); err != nil {
		t.Fatalf("description at the limit should be accepted: %v", err)
	}
	if got := titles(svc.List()); len(got) != 1 || got[0] != "Heat" {
		t.Fatalf("expected only the valid item added, got %v", got)
	}
}

func TestAddTrimsAndPersistsLocally(t *testing.T) {
	svc, _ := newLocalService(t)
	item, err := svc.Add(context.Background(), "  Inception ", " dreams ", store.TypeMovies)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if item.Title != "Inception" || item.Description != "dreams" || item.ID == "" {
		t.Fatalf("unexpected item %+v", item)
	}

	reloaded := NewService(svc.adapter, nil, nil)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(svc.List(), reloaded.List()); diff != "" {
		t.Errorf("reloaded list mismatch (-want +got):\n%s", diff)
	}
}

func TestIDsStayUniqueAcrossAddRemove(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()

	// Force collisions to make sure the generator is retried.
	seq := []string{"dup", "dup", "dup", "x1", "dup", "x2", "x3", "x4"}
	n := 0
	svc.newID = func() string {
		id := seq[n%len(seq)]
		n++
		return id
	}

	types := store.ItemTypes
	for i := 0; i < 6; i++ {
		item := mustAdd(t, svc, fmt.Sprintf("item %d", i), types[i%len(types)])
		if i%3 == 2 {
			if err := svc.Remove(ctx, item.ID); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}
		}
		seen := map[string]bool{}
		for _, existing := range svc.List() {
			if seen[existing.ID] {
				t.Fatalf("duplicate id %q after step %d", existing.ID, i)
			}
			seen[existing.ID] = true
		}
	}
}

func TestRemoveTwiceIsNoop(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	a := mustAdd(t, svc, "Alien", store.TypeMovies)
	mustAdd(t, svc, "Dune", store.TypeBooks)

	for i := 0; i < 2; i++ {
		if err := svc.Remove(ctx, a.ID); err != nil {
			t.Fatalf("Remove() #%d error = %v", i, err)
		}
	}
	if err := svc.Remove(ctx, "never-existed"); err != nil {
		t.Fatalf("Remove(unknown) error = %v", err)
	}
	if diff := cmp.Diff([]string{"Dune"}, titles(svc.List())); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateTitle(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	item := mustAdd(t, svc, "Halo", store.TypeGames)

	if err := svc.UpdateTitle(ctx, item.ID, "   "); err != nil {
		t.Fatalf("blank UpdateTitle() error = %v", err)
	}
	if got := svc.List()[0].Title; got != "Halo" {
		t.Fatalf("expected blank title to keep prior value, got %q", got)
	}

	if err := svc.UpdateTitle(ctx, "missing", "Anything"); err != nil {
		t.Fatalf("UpdateTitle(unknown) error = %v", err)
	}

	if err := svc.UpdateTitle(ctx, item.ID, strings.Repeat("y", 91)); !IsValidation(err) {
		t.Fatalf("expected ValidationError for long title, got %v", err)
	}

	if err := svc.UpdateTitle(ctx, item.ID, " Halo 2 "); err != nil {
		t.Fatalf("UpdateTitle() error = %v", err)
	}
	if got := svc.List()[0]; got.Title != "Halo 2" || got.Type != store.TypeGames {
		t.Fatalf("unexpected item after update %+v", got)
	}
}

func TestReorderWithinPartition(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	mustAdd(t, svc, "Alien", store.TypeMovies)
	mustAdd(t, svc, "Dune", store.TypeBooks)
	mustAdd(t, svc, "Heat", store.TypeMovies)
	mustAdd(t, svc, "Doom", store.TypeGames)
	mustAdd(t, svc, "Ran", store.TypeMovies)

	if err := svc.Reorder(ctx, store.TypeMovies, 2, 0); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}
	if diff := cmp.Diff([]string{"Ran", "Alien", "Heat"}, titles(svc.ByType(store.TypeMovies))); diff != "" {
		t.Errorf("movies mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Dune"}, titles(svc.ByType(store.TypeBooks))); diff != "" {
		t.Errorf("books mismatch (-want +got):\n%s", diff)
	}

	before := svc.List()
	if err := svc.Reorder(ctx, store.TypeBooks, 0, 1); err != nil {
		t.Fatalf("out of range Reorder() error = %v", err)
	}
	if diff := cmp.Diff(before, svc.List()); diff != "" {
		t.Errorf("out of range reorder changed list (-want +got):\n%s", diff)
	}

	reloaded := NewService(svc.adapter, nil, nil)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff([]string{"Ran", "Alien", "Heat"}, titles(reloaded.ByType(store.TypeMovies))); diff != "" {
		t.Errorf("persisted order mismatch (-want +got):\n%s", diff)
	}
}

func TestLocalWriteFailureSurfacesPersistenceError(t *testing.T) {
	slot := &failingSlot{Slot: newFileSlot(t)}
	svc := NewService(NewAdapter(slot, nil, nil), nil, nil)
	ctx := context.Background()

	slot.failWrites = true
	item, err := svc.Add(ctx, "Alien", "", store.TypeMovies)
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Op != "add" {
		t.Fatalf("expected PersistenceError for add, got %v", err)
	}
	// The optimistic add is kept.
	if diff := cmp.Diff([]string{item.ID}, ids(svc.List())); diff != "" {
		t.Errorf("expected item to stay in memory (-want +got):\n%s", diff)
	}

	if err := svc.Remove(ctx, item.ID); !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError for remove, got %v", err)
	}
	if len(svc.List()) != 0 {
		t.Errorf("expected optimistic remove to stick, got %v", svc.List())
	}
}

func signedIn(t *testing.T) (*Service, *fakeTable) {
	t.Helper()
	svc, table := newLocalService(t)
	if err := svc.SetIdentity(context.Background(), Authenticated{ID: "user-1", DisplayName: "Ada"}); err != nil {
		t.Fatalf("SetIdentity() error = %v", err)
	}
	return svc, table
}

func TestSignInMigratesLocalList(t *testing.T) {
	svc, table := newLocalService(t)
	ctx := context.Background()
	a := mustAdd(t, svc, "Alien", store.TypeMovies)
	b := mustAdd(t, svc, "Dune", store.TypeBooks)
	c := mustAdd(t, svc, "Heat", store.TypeMovies)

	if err := svc.SetIdentity(ctx, Authenticated{ID: "user-1", DisplayName: "Ada"}); err != nil {
		t.Fatalf("SetIdentity() error = %v", err)
	}
	if _, ok := svc.Backend().(RemoteBackend); !ok {
		t.Fatalf("expected remote backend, got %T", svc.Backend())
	}

	rows, _ := table.ListItems(ctx)
	if diff := cmp.Diff([]string{a.ID, b.ID, c.ID}, ids(rows)); diff != "" {
		t.Errorf("remote ids mismatch (-want +got):\n%s", diff)
	}
	for i, row := range rows {
		if row.Rank() != i || row.UserID != "user-1" {
			t.Errorf("row %d: order=%d owner=%q", i, row.Rank(), row.UserID)
		}
	}
	if diff := cmp.Diff(ids(rows), ids(svc.List())); diff != "" {
		t.Errorf("service list mismatch (-want +got):\n%s", diff)
	}

	data, err := svc.adapter.slot.Read(ctx)
	if err != nil || data != nil {
		t.Fatalf("expected local slot empty, got %q, %v", data, err)
	}

	// Signing in again as the same user changes nothing.
	if err := svc.SetIdentity(ctx, Authenticated{ID: "user-1", DisplayName: "Ada L."}); err != nil {
		t.Fatalf("repeat SetIdentity() error = %v", err)
	}
	if table.count() != 3 {
		t.Fatalf("expected 3 remote rows, got %d", table.count())
	}
	if got := svc.Identity().(Authenticated).DisplayName; got != "Ada L." {
		t.Errorf("expected display name refresh, got %q", got)
	}
}

func TestSignInLoadFailureDropsPreviousList(t *testing.T) {
	svc, table := newLocalService(t)
	ctx := context.Background()
	mustAdd(t, svc, "Alien", store.TypeMovies)
	table.listErr = errUnavailable

	err := svc.SetIdentity(ctx, Authenticated{ID: "user-1"})
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Op != "load" {
		t.Fatalf("expected load PersistenceError, got %v", err)
	}
	if _, ok := svc.Backend().(RemoteBackend); !ok {
		t.Fatalf("expected remote backend, got %T", svc.Backend())
	}
	if got := svc.List(); len(got) != 0 {
		t.Fatalf("local items must not stand in for the remote list, got %v", titles(got))
	}
	results, err := svc.Search(ctx, "alien", "", 10)
	if err != nil || len(results) != 0 {
		t.Fatalf("Search() = %v, %v; want no hits", results, err)
	}
}

func TestSignInMigrationFailureKeepsLocalList(t *testing.T) {
	svc, table := newLocalService(t)
	ctx := context.Background()
	mustAdd(t, svc, "Alien", store.TypeMovies)
	table.upsertErr = errUnavailable

	err := svc.SetIdentity(ctx, Authenticated{ID: "user-1"})
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Op != "migrate" || !errors.Is(err, errUnavailable) {
		t.Fatalf("expected migrate PersistenceError, got %v", err)
	}
	if _, ok := svc.Backend().(RemoteBackend); !ok {
		t.Fatal("expected identity switch despite failed migration")
	}

	data, _ := svc.adapter.slot.Read(ctx)
	if len(data) == 0 {
		t.Fatal("expected local list to be retained")
	}

	// Signing out and back in retries the upload.
	table.upsertErr = nil
	if err := svc.SetIdentity(ctx, Anonymous{}); err != nil {
		t.Fatalf("sign out error = %v", err)
	}
	if diff := cmp.Diff([]string{"Alien"}, titles(svc.List())); diff != "" {
		t.Errorf("local list after sign out (-want +got):\n%s", diff)
	}
	if err := svc.SetIdentity(ctx, Authenticated{ID: "user-1"}); err != nil {
		t.Fatalf("retry SetIdentity() error = %v", err)
	}
	if table.count() != 1 {
		t.Fatalf("expected one remote row, got %d", table.count())
	}
}

func TestRemoteAddAssignsNextOrder(t *testing.T) {
	svc, table := signedIn(t)
	ctx := context.Background()

	first := mustAdd(t, svc, "Alien", store.TypeMovies)
	mustAdd(t, svc, "Dune", store.TypeBooks)
	second := mustAdd(t, svc, "Heat", store.TypeMovies)

	if first.ID != "srv-1" {
		t.Errorf("expected server id, got %q", first.ID)
	}
	if first.Rank() != 0 || second.Rank() != 1 {
		t.Errorf("expected orders 0 and 1, got %d and %d", first.Rank(), second.Rank())
	}
	if table.count() != 3 {
		t.Errorf("expected 3 remote rows, got %d", table.count())
	}

	table.insertErr = errUnavailable
	if _, err := svc.Add(ctx, "Ran", "", store.TypeMovies); !errors.Is(err, errUnavailable) {
		t.Fatalf("expected insert error, got %v", err)
	}
	if len(svc.List()) != 3 {
		t.Errorf("expected failed remote add not to append, got %v", titles(svc.List()))
	}
}

func TestRemoteReorderPersistsWholePartition(t *testing.T) {
	svc, table := signedIn(t)
	ctx := context.Background()
	mustAdd(t, svc, "Alien", store.TypeMovies)
	mustAdd(t, svc, "Heat", store.TypeMovies)
	mustAdd(t, svc, "Ran", store.TypeMovies)
	mustAdd(t, svc, "Dune", store.TypeBooks)

	if err := svc.Reorder(ctx, store.TypeMovies, 0, 2); err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}

	rows, _ := table.ListItems(ctx)
	var movies []string
	for _, row := range rows {
		if row.Type == store.TypeMovies {
			movies = append(movies, row.Title)
		}
	}
	if diff := cmp.Diff([]string{"Heat", "Ran", "Alien"}, movies); diff != "" {
		t.Errorf("remote movie order (-want +got):\n%s", diff)
	}
	for i, item := range svc.ByType(store.TypeMovies) {
		if item.Rank() != i {
			t.Errorf("in-memory %s has order %d, want %d", item.Title, item.Rank(), i)
		}
	}

	table.ordersErr = errUnavailable
	err := svc.Reorder(ctx, store.TypeMovies, 0, 1)
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if diff := cmp.Diff([]string{"Ran", "Heat", "Alien"}, titles(svc.ByType(store.TypeMovies))); diff != "" {
		t.Errorf("optimistic reorder not kept (-want +got):\n%s", diff)
	}
}

func TestRemoteRemoveAndUpdate(t *testing.T) {
	svc, table := signedIn(t)
	ctx := context.Background()
	item := mustAdd(t, svc, "Halo", store.TypeGames)

	if err := svc.UpdateTitle(ctx, item.ID, "Halo 3"); err != nil {
		t.Fatalf("UpdateTitle() error = %v", err)
	}
	rows, _ := table.ListItems(ctx)
	if rows[0].Title != "Halo 3" {
		t.Errorf("expected remote title update, got %q", rows[0].Title)
	}

	table.deleteErr = errUnavailable
	if err := svc.Remove(ctx, item.ID); !errors.Is(err, errUnavailable) {
		t.Fatalf("expected delete error, got %v", err)
	}
	table.deleteErr = nil
	if err := svc.Remove(ctx, item.ID); err != nil {
		t.Fatalf("Remove() of already removed item error = %v", err)
	}
}

func TestSignOutReturnsToLocalList(t *testing.T) {
	svc, _ := signedIn(t)
	ctx := context.Background()
	mustAdd(t, svc, "Remote only", store.TypeBooks)

	if err := svc.SetIdentity(ctx, nil); err != nil {
		t.Fatalf("SetIdentity(nil) error = %v", err)
	}
	if _, ok := svc.Identity().(Anonymous); !ok {
		t.Fatalf("expected anonymous identity, got %T", svc.Identity())
	}
	if len(svc.List()) != 0 {
		t.Fatalf("expected empty local list, got %v", titles(svc.List()))
	}
}

func TestFollowAppliesIdentityChanges(t *testing.T) {
	svc, table := newLocalService(t)
	mustAdd(t, svc, "Alien", store.TypeMovies)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan Identity)
	notified := make(chan Identity, 2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Follow(ctx, changes, func(id Identity, err error) {
			if err != nil {
				t.Errorf("notify error = %v", err)
			}
			notified <- id
		})
	}()

	changes <- Authenticated{ID: "user-1"}
	select {
	case <-notified:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for identity switch")
	}
	if table.count() != 1 {
		t.Errorf("expected migration on followed sign-in, got %d rows", table.count())
	}

	close(changes)
	<-done
}

func TestSearchLocalList(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	mustAdd(t, svc, "The Witcher 3", store.TypeGames)
	mustAdd(t, svc, "The Witcher", store.TypeBooks)
	mustAdd(t, svc, "Alien", store.TypeMovies)

	results, err := svc.Search(ctx, "witcher", "", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %+v", results)
	}

	results, err = svc.Search(ctx, "witcher", store.TypeBooks, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Type != store.TypeBooks {
		t.Fatalf("expected one book, got %+v", results)
	}

	item := svc.ByType(store.TypeMovies)[0]
	if err := svc.Remove(ctx, item.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	results, _ = svc.Search(ctx, "alien", "", 10)
	if len(results) != 0 {
		t.Fatalf("expected removed item to drop out of search, got %+v", results)
	}
}

func TestSearchURL(t *testing.T) {
	tests := []struct {
		item store.Item
		want string
	}{
		{store.Item{Title: "Inception", Type: store.TypeMovies}, "https://www.google.com/search?q=Inception+movie"},
		{store.Item{Title: "Halo 3", Type: store.TypeGames}, "https://www.google.com/search?q=Halo+3+game"},
		{store.Item{Title: "Dune & Co", Type: store.TypeBooks}, "https://www.google.com/search?q=Dune+%26+Co+book"},
	}
	for _, tt := range tests {
		if got := SearchURL(tt.item); got != tt.want {
			t.Errorf("SearchURL(%q) = %q, want %q", tt.item.Title, got, tt.want)
		}
	}
}

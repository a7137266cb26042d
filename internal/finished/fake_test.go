package finished

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp/cmpopts"

	"finished/api/internal/local"
	"finished/api/internal/store"
)

var cmpSorted = cmpopts.SortSlices(func(a, b string) bool { return a < b })

var errUnavailable = errors.New("remote unavailable")

// fakeTable is an in-memory remote table for a single owner. The *Err fields
// make the matching call fail.
type fakeTable struct {
	mu      sync.Mutex
	rows    map[string]store.Item
	nextID  int
	calls   []string
	listErr error

	insertErr error
	upsertErr error
	titleErr  error
	ordersErr error
	deleteErr error
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[string]store.Item{}}
}

func (f *fakeTable) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeTable) ListItems(context.Context) ([]store.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list")
	if f.listErr != nil {
		return nil, f.listErr
	}
	items := make([]store.Item, 0, len(f.rows))
	for _, item := range f.rows {
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Rank() != items[j].Rank() {
			return items[i].Rank() < items[j].Rank()
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (f *fakeTable) InsertItem(_ context.Context, item store.Item) (store.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("insert")
	if f.insertErr != nil {
		return store.Item{}, f.insertErr
	}
	f.nextID++
	item.ID = fmt.Sprintf("srv-%d", f.nextID)
	f.rows[item.ID] = item
	return item, nil
}

func (f *fakeTable) UpsertItems(_ context.Context, items []store.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("upsert")
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, item := range items {
		f.rows[item.ID] = item
	}
	return nil
}

func (f *fakeTable) UpdateTitle(_ context.Context, id, title string) (store.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("title")
	if f.titleErr != nil {
		return store.Item{}, f.titleErr
	}
	item, ok := f.rows[id]
	if !ok {
		return store.Item{}, errors.New("not found")
	}
	item.Title = title
	f.rows[id] = item
	return item, nil
}

func (f *fakeTable) UpdateOrders(_ context.Context, orders []store.ItemOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("orders")
	if f.ordersErr != nil {
		return f.ordersErr
	}
	for _, o := range orders {
		if item, ok := f.rows[o.ID]; ok {
			f.rows[o.ID] = item.WithOrder(o.Order)
		}
	}
	return nil
}

func (f *fakeTable) DeleteItem(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeTable) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// failingSlot wraps a slot and fails writes while failWrites is set.
type failingSlot struct {
	local.Slot
	failWrites bool
}

func (s *failingSlot) Write(ctx context.Context, data []byte) error {
	if s.failWrites {
		return errors.New("disk full")
	}
	return s.Slot.Write(ctx, data)
}

func newFileSlot(t *testing.T) *local.FileSlot {
	t.Helper()
	return local.NewFileSlot(filepath.Join(t.TempDir(), "finishedList.json"))
}

func ids(items []store.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func titles(items []store.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Title)
	}
	return out
}

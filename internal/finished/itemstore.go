package finished

import (
	"slices"

	"finished/api/internal/store"
)

// ItemStore is the ordered in-memory list. It is not safe for concurrent use;
// Service serializes access to it.
type ItemStore struct {
	items []store.Item
}

func NewItemStore(items []store.Item) *ItemStore {
	return &ItemStore{items: slices.Clone(items)}
}

// List returns a copy of every item in display order.
func (s *ItemStore) List() []store.Item {
	return slices.Clone(s.items)
}

// ByType returns the items of one partition, in display order. The slice is
// rebuilt on every call.
func (s *ItemStore) ByType(itemType store.ItemType) []store.Item {
	out := []store.Item{}
	for _, item := range s.items {
		if item.Type == itemType {
			out = append(out, item)
		}
	}
	return out
}

func (s *ItemStore) Len() int {
	return len(s.items)
}

func (s *ItemStore) Replace(items []store.Item) {
	s.items = slices.Clone(items)
}

func (s *ItemStore) Append(item store.Item) {
	s.items = append(s.items, item)
}

func (s *ItemStore) index(id string) int {
	return slices.IndexFunc(s.items, func(item store.Item) bool { return item.ID == id })
}

func (s *ItemStore) Get(id string) (store.Item, bool) {
	i := s.index(id)
	if i < 0 {
		return store.Item{}, false
	}
	return s.items[i], true
}

// Remove deletes the item with id and reports whether it was present.
func (s *ItemStore) Remove(id string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	return true
}

// SetTitle replaces the title of id and returns the updated item.
func (s *ItemStore) SetTitle(id, title string) (store.Item, bool) {
	i := s.index(id)
	if i < 0 {
		return store.Item{}, false
	}
	s.items[i].Title = title
	return s.items[i], true
}

// Set overwrites the stored copy of item, matched by id.
func (s *ItemStore) Set(item store.Item) {
	if i := s.index(item.ID); i >= 0 {
		s.items[i] = item
	}
}

// Move relocates the item at partition index from to the global position of
// partition index to. Items of other types keep their positions relative to
// each other. It reports false when either index is out of range.
func (s *ItemStore) Move(itemType store.ItemType, from, to int) bool {
	positions := []int{}
	for i, item := range s.items {
		if item.Type == itemType {
			positions = append(positions, i)
		}
	}
	if from < 0 || to < 0 || from >= len(positions) || to >= len(positions) {
		return false
	}
	if from == to {
		return true
	}
	gFrom, gTo := positions[from], positions[to]
	moved := s.items[gFrom]
	s.items = slices.Delete(s.items, gFrom, gFrom+1)
	s.items = slices.Insert(s.items, gTo, moved)
	return true
}

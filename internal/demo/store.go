// Package demo is a throwaway in-memory REST backend for the list. Nothing
// survives a restart and there is no authentication.
package demo

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Item is the demo wire shape. Type is not checked against the enum on
// create, only on bulk replace.
type Item struct {
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Type        string `json:"type" validate:"required,oneof=movies games books"`
}

// Store owns the process's list. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	items []Item
	newID func() string
}

func NewStore() *Store {
	return &Store{items: []Item{}, newID: uuid.NewString}
}

func (s *Store) List() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Create appends a new item with a generated id.
func (s *Store) Create(title, description, itemType string) Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := Item{ID: s.newID(), Title: title, Description: description, Type: itemType}
	s.items = append(s.items, item)
	return item
}

// Delete is a no-op for an unknown id.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = slices.DeleteFunc(s.items, func(item Item) bool { return item.ID == id })
}

// Replace swaps the whole list. Callers validate first.
func (s *Store) Replace(items []Item) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = slices.Clone(items)
	if s.items == nil {
		s.items = []Item{}
	}
	return slices.Clone(s.items)
}

// Package finished holds the client-side list: the in-memory item store, the
// adapter that persists it locally or remotely, and the service that is the
// only mutation surface for the views.
package finished

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"finished/api/internal/search"
	"finished/api/internal/store"
)

// Service serializes every list operation behind one mutex so each runs to
// completion before the next starts.
type Service struct {
	mu       sync.Mutex
	items    *ItemStore
	adapter  *Adapter
	identity Identity
	backend  Backend
	index    *search.LocalIndex
	logger   *zap.Logger
	newID    func() string
}

// NewService starts anonymous with an empty list. Call Load or SetIdentity to
// read the stored list. index may be nil, which disables Search.
func NewService(adapter *Adapter, index *search.LocalIndex, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		items:    NewItemStore(nil),
		adapter:  adapter,
		identity: Anonymous{},
		backend:  LocalBackend{},
		index:    index,
		logger:   logger.Named("list"),
		newID:    uuid.NewString,
	}
}

func (s *Service) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Service) Backend() Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// Load replaces the in-memory list with the one stored by the current backend.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Service) loadLocked(ctx context.Context) error {
	items, err := s.adapter.Load(ctx, s.backend)
	if err != nil {
		return persistErr("load", err)
	}
	s.items.Replace(items)
	s.reindexLocked()
	return nil
}

// SetIdentity switches the backend to match id. Moving from anonymous to
// authenticated first uploads the local list. A failed upload keeps the local
// list for the next sign-in and is returned after the remote list is loaded.
func (s *Service) SetIdentity(ctx context.Context, id Identity) error {
	if id == nil {
		id = Anonymous{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if SameIdentity(s.identity, id) {
		s.identity = id
		return nil
	}
	next := BackendFor(id)

	var migrateErr error
	if remote, ok := next.(RemoteBackend); ok {
		if _, err := s.adapter.Migrate(ctx, remote.OwnerID); err != nil {
			s.logger.Warn("local list not migrated", zap.String("owner_id", remote.OwnerID), zap.Error(err))
			migrateErr = persistErr("migrate", err)
		}
	}

	s.identity = id
	s.backend = next
	if err := s.loadLocked(ctx); err != nil {
		// The previous backend's items must not be shown as this one's.
		s.items.Replace(nil)
		s.reindexLocked()
		return err
	}
	return migrateErr
}

// Follow applies every identity received on changes until ctx is done or the
// channel closes. notify, when set, is called after each switch.
func (s *Service) Follow(ctx context.Context, changes <-chan Identity, notify func(Identity, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-changes:
			if !ok {
				return
			}
			err := s.SetIdentity(ctx, id)
			if err != nil {
				s.logger.Warn("identity switch", zap.Error(err))
			}
			if notify != nil {
				notify(id, err)
			}
		}
	}
}

func (s *Service) List() []store.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.List()
}

func (s *Service) ByType(itemType store.ItemType) []store.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.ByType(itemType)
}

func validateTitle(title string) (string, error) {
	title = store.NormalizeTitle(title)
	if title == "" {
		return "", &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if store.TitleTooLong(title) {
		return "", &ValidationError{Field: "title", Message: fmt.Sprintf("must be at most %d characters", store.MaxTitleLength)}
	}
	return title, nil
}

// Add validates and appends a new item. Locally the id is generated here;
// remotely the server assigns it along with the order, and the item is only
// appended once the insert succeeded.
func (s *Service) Add(ctx context.Context, title, description string, itemType store.ItemType) (store.Item, error) {
	title, err := validateTitle(title)
	if err != nil {
		return store.Item{}, err
	}
	if !itemType.Valid() {
		return store.Item{}, &ValidationError{Field: "type", Message: "must be one of movies, games, books"}
	}
	description = strings.TrimSpace(description)
	if store.DescriptionTooLong(description) {
		return store.Item{}, &ValidationError{Field: "description", Message: fmt.Sprintf("must be at most %d characters", store.MaxDescriptionLength)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := store.Item{
		Title:       title,
		Description: description,
		Type:        itemType,
	}

	if _, remote := s.backend.(RemoteBackend); remote {
		next := 0
		for _, existing := range s.items.ByType(itemType) {
			if rank := existing.Rank(); rank >= next {
				next = rank + 1
			}
		}
		item = item.WithOrder(next)
		created, err := s.adapter.Insert(ctx, s.backend, nil, item)
		if err != nil {
			return store.Item{}, persistErr("add", err)
		}
		s.items.Append(created)
		s.reindexLocked()
		return created, nil
	}

	item.ID = s.newID()
	for {
		if _, taken := s.items.Get(item.ID); !taken {
			break
		}
		item.ID = s.newID()
	}
	s.items.Append(item)
	s.reindexLocked()
	if _, err := s.adapter.Insert(ctx, s.backend, s.items.List(), item); err != nil {
		return item, persistErr("add", err)
	}
	return item, nil
}

// Remove is a no-op for an unknown id.
func (s *Service) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.items.Remove(id) {
		return nil
	}
	s.reindexLocked()
	return persistErr("remove", s.adapter.Remove(ctx, s.backend, s.items.List(), id))
}

// UpdateTitle keeps the prior title when newTitle is blank and ignores unknown
// ids. A title over the length limit is rejected.
func (s *Service) UpdateTitle(ctx context.Context, id, newTitle string) error {
	title := store.NormalizeTitle(newTitle)
	if title == "" {
		return nil
	}
	if store.TitleTooLong(title) {
		return &ValidationError{Field: "title", Message: "must be at most 90 characters"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items.Get(id)
	if !ok || current.Title == title {
		return nil
	}
	updated, _ := s.items.SetTitle(id, title)
	s.reindexLocked()

	saved, err := s.adapter.UpdateTitle(ctx, s.backend, s.items.List(), updated)
	if err != nil {
		return persistErr("update title", err)
	}
	s.items.Set(saved)
	return nil
}

// Reorder moves the item at position from to position to, both counted within
// the itemType partition. Out-of-range indices are ignored.
func (s *Service) Reorder(ctx context.Context, itemType store.ItemType, from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from == to || !s.items.Move(itemType, from, to) {
		return nil
	}

	partition := s.items.ByType(itemType)
	if _, remote := s.backend.(RemoteBackend); remote {
		for i, item := range partition {
			s.items.Set(item.WithOrder(i))
		}
	}
	return persistErr("reorder", s.adapter.Reorder(ctx, s.backend, s.items.List(), partition))
}

func (s *Service) reindexLocked() {
	if s.index == nil {
		return
	}
	if err := s.index.Replace(s.items.List()); err != nil {
		s.logger.Warn("rebuild search index", zap.Error(err))
	}
}

// Search runs a full-text query over the titles and descriptions of the
// current list. An empty itemType searches every partition.
func (s *Service) Search(ctx context.Context, text string, itemType store.ItemType, limit int) ([]search.Result, error) {
	if s.index == nil || strings.TrimSpace(text) == "" {
		return []search.Result{}, nil
	}
	return s.index.Search(ctx, text, itemType, limit)
}

// SearchURL is the web search link for an item: its title followed by the
// singular noun of its type.
func SearchURL(item store.Item) string {
	q := item.Title
	if noun := item.Type.Noun(); noun != "" {
		q += " " + noun
	}
	return "https://www.google.com/search?q=" + url.QueryEscape(q)
}

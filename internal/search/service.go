package search

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"finished/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to SQL.
type Service struct {
	meili    *Meili
	fallback *SQLSearch
	logger   *zap.Logger
	pending  sync.WaitGroup
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, fallback *SQLSearch, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{meili: meili, fallback: fallback, logger: logger.Named("search")}
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to SQL.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meiliReady() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to sql", zap.Error(err))
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("sql search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexItems pushes items to Meilisearch in the background.
func (s *Service) IndexItems(items ...store.Item) {
	if !s.meiliReady() || len(items) == 0 {
		return
	}
	records := make([]ItemRecord, 0, len(items))
	for _, item := range items {
		records = append(records, RecordFromItem(item))
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.meili.IndexItems(records); err != nil {
			s.logger.Warn("index items", zap.Int("count", len(records)), zap.Error(err))
		}
	}()
}

// DeleteItem removes an item from the index in the background.
func (s *Service) DeleteItem(id string) {
	if !s.meiliReady() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.meili.DeleteItem(id); err != nil {
			s.logger.Warn("delete item from index", zap.String("item_id", id), zap.Error(err))
		}
	}()
}

// ReindexAll reads every item from SQL and pushes it to Meilisearch.
func (s *Service) ReindexAll(ctx context.Context) {
	if !s.meiliReady() || s.fallback == nil {
		return
	}
	records, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Warn("reindex load failed", zap.Error(err))
		return
	}
	if err := s.meili.IndexItems(records); err != nil {
		s.logger.Warn("reindex items", zap.Error(err))
	}
}

// Close waits for background index writes and stops the health monitor.
func (s *Service) Close() {
	s.pending.Wait()
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

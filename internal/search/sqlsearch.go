package search

import (
	"context"
	"fmt"

	"finished/api/internal/store"
)

// ItemSearcher is the slice of the SQL store the fallback needs.
type ItemSearcher interface {
	SearchItems(ctx context.Context, ownerID, text string, itemType store.ItemType, limit int) ([]store.Item, error)
	ListAllItems(ctx context.Context) ([]store.Item, error)
}

// SQLSearch implements Searcher with a substring match in the items table.
type SQLSearch struct {
	store ItemSearcher
}

func NewSQLSearch(store ItemSearcher) *SQLSearch {
	return &SQLSearch{store: store}
}

// Healthy always returns true: without the database there is no API.
func (s *SQLSearch) Healthy() bool {
	return true
}

func (s *SQLSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	items, err := s.store.SearchItems(ctx, q.OwnerID, q.Text, q.Type, q.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("sql search: %w", err)
	}
	results := make([]Result, 0, len(items))
	for _, item := range items {
		results = append(results, resultFromItem(item))
	}
	return results, len(results), nil
}

// LoadAllRecords returns every item for full reindexing.
func (s *SQLSearch) LoadAllRecords(ctx context.Context) ([]ItemRecord, error) {
	items, err := s.store.ListAllItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	records := make([]ItemRecord, 0, len(items))
	for _, item := range items {
		records = append(records, RecordFromItem(item))
	}
	return records, nil
}

// Package search finds items by title and description. The API server uses
// Meilisearch with a SQL fallback; the client uses an in-memory bleve index.
package search

import (
	"context"

	"finished/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Snippet string         `json:"snippet"`
	Type    store.ItemType `json:"type"`
	Order   *int           `json:"order,omitempty"`
}

// Query describes a search request. Hits are always scoped to OwnerID.
type Query struct {
	OwnerID string
	Text    string
	Type    store.ItemType // empty = all partitions
	Limit   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// ItemRecord is the data we index for an item.
type ItemRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
	UserID      string `json:"userId"`
	Order       *int   `json:"order,omitempty"`
}

func RecordFromItem(item store.Item) ItemRecord {
	return ItemRecord{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		Type:        string(item.Type),
		UserID:      item.UserID,
		Order:       item.Order,
	}
}

func resultFromItem(item store.Item) Result {
	return Result{
		ID:      item.ID,
		Title:   item.Title,
		Snippet: item.Description,
		Type:    item.Type,
		Order:   item.Order,
	}
}

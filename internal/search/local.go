package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"finished/api/internal/store"
)

// LocalIndex is an in-memory bleve index over the items a client holds.
// Titles are matched exactly, by prefix and with one typo of tolerance.
type LocalIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	items map[string]store.Item
}

func buildLocalMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = standard.Name

	doc := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	title.Store = true
	title.IncludeTermVectors = true
	doc.AddFieldMappingsAt("title", title)

	description := bleve.NewTextFieldMapping()
	description.Analyzer = standard.Name
	doc.AddFieldMappingsAt("description", description)

	itemType := bleve.NewTextFieldMapping()
	itemType.Analyzer = keyword.Name
	itemType.Store = true
	doc.AddFieldMappingsAt("type", itemType)

	indexMapping.AddDocumentMapping("_default", doc)
	return indexMapping
}

func NewLocalIndex() (*LocalIndex, error) {
	index, err := bleve.NewMemOnly(buildLocalMapping())
	if err != nil {
		return nil, fmt.Errorf("create local index: %w", err)
	}
	return &LocalIndex{index: index, items: map[string]store.Item{}}, nil
}

// Replace rebuilds the index from items.
func (l *LocalIndex) Replace(items []store.Item) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	batch := l.index.NewBatch()
	for id := range l.items {
		batch.Delete(id)
	}
	next := make(map[string]store.Item, len(items))
	for _, item := range items {
		doc := map[string]any{
			"title":       item.Title,
			"description": item.Description,
			"type":        string(item.Type),
		}
		if err := batch.Index(item.ID, doc); err != nil {
			return fmt.Errorf("index item %s: %w", item.ID, err)
		}
		next[item.ID] = item
	}
	if err := l.index.Batch(batch); err != nil {
		return fmt.Errorf("commit local index: %w", err)
	}
	l.items = next
	return nil
}

// Search returns hits ordered by relevance. An empty itemType searches every
// partition.
func (l *LocalIndex) Search(ctx context.Context, text string, itemType store.ItemType, limit int) ([]Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []Result{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildLocalQuery(text, itemType), limit, 0, false)
	res, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("local search: %w", err)
	}

	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		item, ok := l.items[hit.ID]
		if !ok {
			continue
		}
		results = append(results, resultFromItem(item))
	}
	return results, nil
}

func buildLocalQuery(text string, itemType store.ItemType) query.Query {
	lower := strings.ToLower(text)

	titleMatch := bleve.NewMatchQuery(text)
	titleMatch.SetField("title")
	titleMatch.SetBoost(3.0)

	descMatch := bleve.NewMatchQuery(text)
	descMatch.SetField("description")

	fuzzy := bleve.NewFuzzyQuery(lower)
	fuzzy.SetFuzziness(1)
	fuzzy.SetField("title")
	fuzzy.SetBoost(0.8)

	textQueries := []query.Query{titleMatch, descMatch, fuzzy}
	if len(lower) >= 2 && !strings.ContainsAny(lower, " \t") {
		prefix := bleve.NewPrefixQuery(lower)
		prefix.SetField("title")
		prefix.SetBoost(0.5)
		textQueries = append(textQueries, prefix)
	}

	var q query.Query = bleve.NewDisjunctionQuery(textQueries...)
	if itemType != "" {
		typeQuery := bleve.NewTermQuery(string(itemType))
		typeQuery.SetField("type")
		q = bleve.NewConjunctionQuery(q, typeQuery)
	}
	return q
}

func (l *LocalIndex) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.Close()
}

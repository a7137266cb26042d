package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConflict is returned when an insert collides with an existing id.
var ErrConflict = errors.New("item already exists")

type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// itemColumns must match the scan order in scanItem.
const itemColumns = `id, title, description, type, "order", user_id, created_at, updated_at`

func scanItem(scanner interface{ Scan(dest ...any) error }) (Item, error) {
	var (
		item      Item
		itemType  string
		order     sql.NullInt64
		createdAt dbTime
		updatedAt dbTime
	)
	if err := scanner.Scan(&item.ID, &item.Title, &item.Description, &itemType, &order, &item.UserID, &createdAt, &updatedAt); err != nil {
		return Item{}, err
	}
	item.Type = ItemType(itemType)
	if order.Valid {
		value := int(order.Int64)
		item.Order = &value
	}
	item.CreatedAt = createdAt.ptr()
	item.UpdatedAt = updatedAt.ptr()
	return item, nil
}

func nullOrder(order *int) sql.NullInt64 {
	if order == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*order), Valid: true}
}

// ListItems returns every row owned by ownerID, ranked by order and then by
// creation time. Rows without an order sort last.
func (s *SQLStore) ListItems(ctx context.Context, ownerID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT `+itemColumns+`
		FROM items
		WHERE user_id = ?
		ORDER BY "order" IS NULL, "order", created_at, id
	`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// ListAllItems returns the rows of every owner. It feeds search reindexing.
func (s *SQLStore) ListAllItems(ctx context.Context) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY user_id, created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list all items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLStore) GetItem(ctx context.Context, ownerID, id string) (Item, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+itemColumns+` FROM items WHERE id = ? AND user_id = ?`), id, ownerID)
	return scanItem(row)
}

// InsertItem stores a new row. A missing id is generated and a missing order
// is set to one past the highest order in the item's partition.
func (s *SQLStore) InsertItem(ctx context.Context, item Item) (Item, error) {
	if item.UserID == "" {
		return Item{}, fmt.Errorf("insert item: owner is required")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := s.now().UTC()
	item.CreatedAt = &now
	item.UpdatedAt = &now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Item{}, fmt.Errorf("begin insert item: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if item.Order == nil {
		var maxOrder int
		err := tx.QueryRowContext(ctx, s.dialect.rebind(`
			SELECT COALESCE(MAX("order"), -1) FROM items WHERE user_id = ? AND type = ?
		`), item.UserID, string(item.Type)).Scan(&maxOrder)
		if err != nil {
			return Item{}, fmt.Errorf("read max order: %w", err)
		}
		next := maxOrder + 1
		item.Order = &next
	}

	_, err = tx.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO items (id, title, description, type, "order", user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), item.ID, item.Title, item.Description, string(item.Type), nullOrder(item.Order), item.UserID,
		s.dialect.timeArg(now), s.dialect.timeArg(now))
	if err != nil {
		if isUniqueViolation(err) {
			return Item{}, ErrConflict
		}
		return Item{}, fmt.Errorf("insert item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Item{}, fmt.Errorf("commit insert item: %w", err)
	}
	return item, nil
}

// UpsertItems writes every item in one transaction, keyed by id. An existing
// row keeps its type and creation time. An id owned by someone else fails the
// whole batch with ErrConflict.
func (s *SQLStore) UpsertItems(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert items: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := s.dialect.rebind(`
		INSERT INTO items (id, title, description, type, "order", user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			"order" = excluded."order",
			updated_at = excluded.updated_at
		WHERE items.user_id = excluded.user_id
	`)
	now := s.now().UTC()
	for _, item := range items {
		if item.ID == "" || item.UserID == "" {
			return fmt.Errorf("upsert item: id and owner are required")
		}
		createdAt := now
		if item.CreatedAt != nil {
			createdAt = *item.CreatedAt
		}
		result, err := tx.ExecContext(ctx, query,
			item.ID, item.Title, item.Description, string(item.Type), nullOrder(item.Order), item.UserID,
			s.dialect.timeArg(createdAt), s.dialect.timeArg(now),
		)
		if err != nil {
			return fmt.Errorf("upsert item %s: %w", item.ID, err)
		}
		// No row changed: the id belongs to another owner.
		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			return fmt.Errorf("upsert item %s: %w", item.ID, ErrConflict)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert items: %w", err)
	}
	return nil
}

// UpdateItemTitle returns sql.ErrNoRows when the owner has no such item.
func (s *SQLStore) UpdateItemTitle(ctx context.Context, ownerID, id, title string) (Item, error) {
	result, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		UPDATE items SET title = ?, updated_at = ? WHERE id = ? AND user_id = ?
	`), title, s.dialect.timeArg(s.now()), id, ownerID)
	if err != nil {
		return Item{}, fmt.Errorf("update item title: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return Item{}, sql.ErrNoRows
	}
	return s.GetItem(ctx, ownerID, id)
}

// UpdateItemOrders rewrites the rank of each listed item in one transaction.
// Ids the owner no longer has are skipped.
func (s *SQLStore) UpdateItemOrders(ctx context.Context, ownerID string, orders []ItemOrder) error {
	if len(orders) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update orders: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := s.dialect.rebind(`UPDATE items SET "order" = ?, updated_at = ? WHERE id = ? AND user_id = ?`)
	now := s.dialect.timeArg(s.now())
	for _, order := range orders {
		if _, err := tx.ExecContext(ctx, query, order.Order, now, order.ID, ownerID); err != nil {
			return fmt.Errorf("update order of %s: %w", order.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update orders: %w", err)
	}
	return nil
}

// DeleteItem is idempotent: deleting an absent row is not an error.
func (s *SQLStore) DeleteItem(ctx context.Context, ownerID, id string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM items WHERE id = ? AND user_id = ?`), id, ownerID); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// SearchItems is a case-insensitive substring match over titles and
// descriptions. An empty itemType searches every partition.
func (s *SQLStore) SearchItems(ctx context.Context, ownerID, text string, itemType ItemType, limit int) ([]Item, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return []Item{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.NewReplacer("%", "", "_", "").Replace(text) + "%"

	query := `SELECT ` + itemColumns + ` FROM items WHERE user_id = ? AND (LOWER(title) LIKE ? OR LOWER(description) LIKE ?)`
	args := []any{ownerID, pattern, pattern}
	if itemType != "" {
		query += ` AND type = ?`
		args = append(args, string(itemType))
	}
	query += ` ORDER BY "order" IS NULL, "order", created_at LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

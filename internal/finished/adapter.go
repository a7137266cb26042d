package finished

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"finished/api/internal/local"
	"finished/api/internal/store"
)

// RemoteTable is the signed-in user's view of the hosted items table. Every
// call is scoped to the owner of the current session.
type RemoteTable interface {
	ListItems(ctx context.Context) ([]store.Item, error)
	InsertItem(ctx context.Context, item store.Item) (store.Item, error)
	UpsertItems(ctx context.Context, items []store.Item) error
	UpdateTitle(ctx context.Context, id, title string) (store.Item, error)
	UpdateOrders(ctx context.Context, orders []store.ItemOrder) error
	DeleteItem(ctx context.Context, id string) error
}

// localItem is the shape of one element of the local blob.
type localItem struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Type        store.ItemType `json:"type"`
}

// Adapter routes list persistence to the local slot or the remote table.
type Adapter struct {
	slot   local.Slot
	remote RemoteTable
	logger *zap.Logger
}

// NewAdapter wires both backends. remote may be nil when no server is
// configured, in which case remote calls fail.
func NewAdapter(slot local.Slot, remote RemoteTable, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{slot: slot, remote: remote, logger: logger.Named("adapter")}
}

func (a *Adapter) table() (RemoteTable, error) {
	if a.remote == nil {
		return nil, fmt.Errorf("no remote table configured")
	}
	return a.remote, nil
}

// Load reads the whole list. A local blob that does not parse is logged and
// treated as empty.
func (a *Adapter) Load(ctx context.Context, b Backend) ([]store.Item, error) {
	if _, ok := b.(RemoteBackend); ok {
		table, err := a.table()
		if err != nil {
			return nil, err
		}
		return table.ListItems(ctx)
	}
	return a.readLocal(ctx)
}

func (a *Adapter) readLocal(ctx context.Context) ([]store.Item, error) {
	data, err := a.slot.Read(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []store.Item{}, nil
	}
	var decoded []localItem
	if err := json.Unmarshal(data, &decoded); err != nil {
		a.logger.Warn("local list is corrupt, starting empty", zap.Error(err))
		return []store.Item{}, nil
	}
	items := make([]store.Item, 0, len(decoded))
	for _, d := range decoded {
		if d.ID == "" || !d.Type.Valid() {
			a.logger.Warn("skipping malformed local item", zap.String("item_id", d.ID), zap.String("type", string(d.Type)))
			continue
		}
		items = append(items, store.Item{ID: d.ID, Title: d.Title, Description: d.Description, Type: d.Type})
	}
	return items, nil
}

func (a *Adapter) writeLocal(ctx context.Context, items []store.Item) error {
	encoded := make([]localItem, 0, len(items))
	for _, item := range items {
		encoded = append(encoded, localItem{ID: item.ID, Title: item.Title, Description: item.Description, Type: item.Type})
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("encode local list: %w", err)
	}
	return a.slot.Write(ctx, data)
}

// Insert persists a newly added item. all is the local list with item already
// appended; the remote table ignores it and returns the server's copy.
func (a *Adapter) Insert(ctx context.Context, b Backend, all []store.Item, item store.Item) (store.Item, error) {
	if remote, ok := b.(RemoteBackend); ok {
		table, err := a.table()
		if err != nil {
			return store.Item{}, err
		}
		item.UserID = remote.OwnerID
		return table.InsertItem(ctx, item)
	}
	if err := a.writeLocal(ctx, all); err != nil {
		return store.Item{}, err
	}
	return item, nil
}

func (a *Adapter) Remove(ctx context.Context, b Backend, all []store.Item, id string) error {
	if _, ok := b.(RemoteBackend); ok {
		table, err := a.table()
		if err != nil {
			return err
		}
		return table.DeleteItem(ctx, id)
	}
	return a.writeLocal(ctx, all)
}

func (a *Adapter) UpdateTitle(ctx context.Context, b Backend, all []store.Item, item store.Item) (store.Item, error) {
	if _, ok := b.(RemoteBackend); ok {
		table, err := a.table()
		if err != nil {
			return store.Item{}, err
		}
		return table.UpdateTitle(ctx, item.ID, item.Title)
	}
	if err := a.writeLocal(ctx, all); err != nil {
		return store.Item{}, err
	}
	return item, nil
}

// Reorder persists a partition's new sequence. Remotely every item of the
// partition gets order = its index, in one batch.
func (a *Adapter) Reorder(ctx context.Context, b Backend, all, partition []store.Item) error {
	if _, ok := b.(RemoteBackend); ok {
		table, err := a.table()
		if err != nil {
			return err
		}
		orders := make([]store.ItemOrder, 0, len(partition))
		for i, item := range partition {
			orders = append(orders, store.ItemOrder{ID: item.ID, Order: i})
		}
		return table.UpdateOrders(ctx, orders)
	}
	return a.writeLocal(ctx, all)
}

// Migrate copies the local list into the remote table of ownerID, keyed by id
// with order = position among the uploaded items. Titles and descriptions are
// cut to the remote limits. Items the remote table cannot hold at all, such as
// a blank title, stay in the slot; the slot is cleared or rewritten only after
// the upload succeeded. It returns the number of items uploaded.
func (a *Adapter) Migrate(ctx context.Context, ownerID string) (int, error) {
	table, err := a.table()
	if err != nil {
		return 0, err
	}
	items, err := a.readLocal(ctx)
	if err != nil {
		return 0, fmt.Errorf("read local list: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	upload, kept := a.prepareUpload(items, ownerID)
	if len(upload) > 0 {
		if err := table.UpsertItems(ctx, upload); err != nil {
			return 0, fmt.Errorf("upload local list: %w", err)
		}
	}
	if len(kept) > 0 {
		if err := a.writeLocal(ctx, kept); err != nil {
			return len(upload), fmt.Errorf("keep unmigrated items: %w", err)
		}
	} else if err := a.slot.Clear(ctx); err != nil {
		return len(upload), fmt.Errorf("clear local list: %w", err)
	}
	a.logger.Info("migrated local list", zap.String("owner_id", ownerID), zap.Int("count", len(upload)), zap.Int("kept", len(kept)))
	return len(upload), nil
}

// prepareUpload splits items into rows the remote table accepts and items it
// would reject.
func (a *Adapter) prepareUpload(items []store.Item, ownerID string) (upload, kept []store.Item) {
	for _, item := range items {
		title := store.NormalizeTitle(item.Title)
		if title == "" || utf8.RuneCountInString(item.ID) > store.MaxIDLength {
			a.logger.Warn("local item cannot be uploaded, keeping it locally", zap.String("item_id", item.ID))
			kept = append(kept, item)
			continue
		}
		item.Title = store.Truncate(title, store.MaxTitleLength)
		item.Description = store.Truncate(strings.TrimSpace(item.Description), store.MaxDescriptionLength)
		item.UserID = ownerID
		upload = append(upload, item.WithOrder(len(upload)))
	}
	return upload, kept
}

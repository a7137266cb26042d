package local

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerSlot keeps the blob under one key of an embedded Badger database.
// An empty dir opens an in-memory database.
type BadgerSlot struct {
	db  *badger.DB
	key []byte
}

func NewBadgerSlot(dir, key string) (*BadgerSlot, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger slot: %w", err)
	}
	return &BadgerSlot{db: db, key: []byte(key)}, nil
}

func (s *BadgerSlot) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("badger read slot: %w", err)
	}
	return data, nil
}

func (s *BadgerSlot) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, data)
	})
	if err != nil {
		return fmt.Errorf("badger write slot: %w", err)
	}
	return nil
}

func (s *BadgerSlot) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key)
	})
	if err != nil {
		return fmt.Errorf("badger clear slot: %w", err)
	}
	return nil
}

func (s *BadgerSlot) Close() error {
	return s.db.Close()
}

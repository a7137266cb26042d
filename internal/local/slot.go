// Package local keeps the anonymous user's list in a single string-keyed
// slot. The slot is read and written wholesale.
package local

import (
	"context"
	"fmt"

	"finished/api/internal/config"
)

// Slot stores one JSON blob. Read returns nil data and no error when the slot
// has never been written or was cleared.
type Slot interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Clear(ctx context.Context) error
	Close() error
}

// Open builds the slot selected by cfg.Backend.
func Open(ctx context.Context, cfg config.LocalConfig) (Slot, error) {
	key := cfg.Key
	if key == "" {
		key = config.DefaultSlotKey
	}
	switch cfg.Backend {
	case "", config.BackendFile:
		return NewFileSlot(cfg.Path), nil
	case config.BackendRedis:
		return NewRedisSlot(ctx, cfg.RedisURL, key)
	case config.BackendBadger:
		return NewBadgerSlot(cfg.BadgerDir, key)
	case config.BackendS3:
		return NewObjectSlot(ctx, cfg.S3, key)
	}
	return nil, fmt.Errorf("unknown local backend %q", cfg.Backend)
}

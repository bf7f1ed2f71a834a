package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/config"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

var (
	_ Store       = (*BadgerStore)(nil)
	_ Store       = (*PostgresStore)(nil)
	_ StatusStore = (*RedisStatusStore)(nil)
)

// Backends bundles the stores selected by configuration
type Backends struct {
	Store  Store
	Status StatusStore // Store itself unless a Redis status store is configured
	redis  *RedisStatusStore
}

// Open creates the configured storage backend and status store.
// cfg must have been validated.
func Open(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) (*Backends, error) {
	var store Store
	switch cfg.Storage.Backend {
	case config.StorageBackendPostgres:
		pg, err := NewPostgresStore(ctx, cfg.Storage.PostgresURL, cfg.Storage.Schema, cfg.SaveBatchSize, log)
		if err != nil {
			return nil, err
		}
		store = pg
	case config.StorageBackendBadger, "":
		bs, err := NewBadgerStore(cfg.StateDir, log)
		if err != nil {
			return nil, err
		}
		store = bs
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", utils.ErrConfigValidation, cfg.Storage.Backend)
	}

	b := &Backends{Store: store, Status: store}
	if cfg.Status.RedisAddr != "" {
		rs, err := NewRedisStatusStore(ctx, cfg.Status, log)
		if err != nil {
			store.Close()
			return nil, err
		}
		b.Status = rs
		b.redis = rs
	}
	return b, nil
}

// Close closes every opened backend and returns the first error
func (b *Backends) Close() error {
	var first error
	if b.redis != nil {
		first = b.redis.Close()
	}
	if err := b.Store.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

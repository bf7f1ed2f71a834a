package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/config"
	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// RedisStatusStore implements StatusStore on Redis so several processes can
// answer status queries for each other's syncs. Records expire after ttl.
type RedisStatusStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	log    *logrus.Entry
}

// NewRedisStatusStore connects to the configured Redis and verifies the connection
func NewRedisStatusStore(ctx context.Context, cfg config.StatusConfig, logger *logrus.Entry) (*RedisStatusStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: connect redis for sync status: %w", utils.ErrDatabase, err)
	}
	return &RedisStatusStore{
		rdb:    rdb,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		log:    logger.WithFields(logrus.Fields{"component": "storage", "backend": "redis"}),
	}, nil
}

func (s *RedisStatusStore) key(requestID string) string {
	return s.prefix + "sync:" + requestID
}

// PutSyncRecord implements StatusStore
func (s *RedisStatusStore) PutSyncRecord(ctx context.Context, rec models.SyncRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal sync record: %w", utils.ErrParsing, err)
	}
	if err := s.rdb.Set(ctx, s.key(rec.RequestID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set %s: %w", utils.ErrDatabase, rec.RequestID, err)
	}
	return nil
}

// GetSyncRecord implements StatusStore
func (s *RedisStatusStore) GetSyncRecord(ctx context.Context, requestID string) (*models.SyncRecord, error) {
	data, err := s.rdb.Get(ctx, s.key(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", utils.ErrSyncNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get %s: %w", utils.ErrDatabase, requestID, err)
	}
	var rec models.SyncRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: sync record %s: %w", utils.ErrParsing, requestID, err)
	}
	return &rec, nil
}

// Close closes the Redis client
func (s *RedisStatusStore) Close() error {
	if err := s.rdb.Close(); err != nil {
		s.log.Warnf("close redis failed: %v", err)
		return err
	}
	return nil
}

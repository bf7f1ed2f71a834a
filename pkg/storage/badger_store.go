package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/log"
	"github.com/Sriram-PR/supplier-sync/pkg/metrics"
	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

const (
	responseKeyPrefix = "resp:"            // Raw documents, resp:<request>:<seq>
	productKeyPrefix  = "prod:"            // Parsed batches, prod:<request>:<seq>
	syncKeyPrefix     = "sync:"            // Sync records, sync:<request>
	sequenceKey       = "meta:seq"         // Badger sequence backing document order
	syncDBDir         = "supplier_sync_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements Store on a local BadgerDB
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
	log *logrus.Entry
}

// NewBadgerStore opens (or creates) the store under stateDir
func NewBadgerStore(stateDir string, logger *logrus.Entry) (*BadgerStore, error) {
	logger = logger.WithField("component", "storage")
	dbPath := filepath.Join(stateDir, syncDBDir)

	logger.Infof("Initializing sync database at: %s", dbPath)
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger)).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", dbPath, err)
	}

	seq, err := db.GetSequence([]byte(sequenceKey), 1000)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: acquiring document sequence: %w", utils.ErrDatabase, err)
	}

	logger.Info("Sync database initialized successfully.")
	return &BadgerStore{db: db, seq: seq, log: logger}, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

func documentKey(prefix, requestID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefix, utils.SanitizeKeyPart(requestID), seq))
}

func requestPrefix(prefix, requestID string) []byte {
	return []byte(prefix + utils.SanitizeKeyPart(requestID) + ":")
}

func (s *BadgerStore) nextSeq() (uint64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("%w: next sequence: %w", utils.ErrDatabase, err)
	}
	// Badger sequences start at 0; keep 0 as "unassigned".
	return n + 1, nil
}

func (s *BadgerStore) put(key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal value for key '%s': %w", utils.ErrParsing, string(key), err)
	}
	err = s.dbUpdate(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, data))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error: %v", err)
		return fmt.Errorf("%w: setting key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	return nil
}

// SaveRaw implements Sink
func (s *BadgerStore) SaveRaw(ctx context.Context, doc models.RawDocument) error {
	return s.saveRaw(ctx, doc, "raw")
}

// SaveBlank implements Sink
func (s *BadgerStore) SaveBlank(ctx context.Context, requestID string, header models.ResponseHeader) error {
	header.ResponseType = models.ResponseTypeBlank
	return s.saveRaw(ctx, models.RawDocument{RequestID: requestID, Header: header}, "blank")
}

func (s *BadgerStore) saveRaw(ctx context.Context, doc models.RawDocument, mode string) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveSave(mode, start, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.Seq == 0 {
		if doc.Seq, err = s.nextSeq(); err != nil {
			return err
		}
	}
	if doc.SavedAt.IsZero() {
		doc.SavedAt = time.Now().UTC()
	}
	return s.put(documentKey(responseKeyPrefix, doc.RequestID, doc.Seq), doc)
}

// SaveParsed implements Sink
func (s *BadgerStore) SaveParsed(ctx context.Context, batch models.ProductBatch) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveSave("parsed", start, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	seq, err := s.nextSeq()
	if err != nil {
		return err
	}
	return s.put(documentKey(productKeyPrefix, batch.RequestID, seq), batch)
}

// scan calls fn with the value of every key under prefix, in key order
func (s *BadgerStore) scan(ctx context.Context, prefix []byte, fn func(key, val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			if err := item.Value(func(val []byte) error { return fn(key, val) }); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListResponses implements ResponseStore
func (s *BadgerStore) ListResponses(ctx context.Context, requestID string) ([]models.RawDocument, error) {
	var docs []models.RawDocument
	err := s.scan(ctx, requestPrefix(responseKeyPrefix, requestID), func(key, val []byte) error {
		var doc models.RawDocument
		if err := json.Unmarshal(val, &doc); err != nil {
			s.log.Warnf("Failed to unmarshal RawDocument for key '%s': %v. Skipping.", string(key), err)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing responses of %s: %w", utils.ErrDatabase, requestID, err)
	}
	return docs, nil
}

// DeleteResponses implements ResponseStore
func (s *BadgerStore) DeleteResponses(ctx context.Context, requestID string) (int, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := requestPrefix(responseKeyPrefix, requestID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: scanning responses of %s: %w", utils.ErrDatabase, requestID, err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("%w: deleting response key '%s': %w", utils.ErrDatabase, string(k), err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("%w: flushing response deletes: %w", utils.ErrDatabase, err)
	}
	s.log.WithField("request_id", requestID).Debugf("Deleted %d stored responses", len(keys))
	return len(keys), nil
}

// ListProducts implements ProductStore
func (s *BadgerStore) ListProducts(ctx context.Context, requestID string) ([]models.ParsedProduct, error) {
	var products []models.ParsedProduct
	err := s.scan(ctx, requestPrefix(productKeyPrefix, requestID), func(key, val []byte) error {
		var batch models.ProductBatch
		if err := json.Unmarshal(val, &batch); err != nil {
			s.log.Warnf("Failed to unmarshal ProductBatch for key '%s': %v. Skipping.", string(key), err)
			return nil
		}
		products = append(products, batch.Products...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing products of %s: %w", utils.ErrDatabase, requestID, err)
	}
	return products, nil
}

// PutSyncRecord implements StatusStore
func (s *BadgerStore) PutSyncRecord(ctx context.Context, rec models.SyncRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.put([]byte(syncKeyPrefix+rec.RequestID), rec)
}

// GetSyncRecord implements StatusStore
func (s *BadgerStore) GetSyncRecord(ctx context.Context, requestID string) (*models.SyncRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := []byte(syncKeyPrefix + requestID)
	var rec *models.SyncRecord

	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		return item.Value(func(val []byte) error {
			var decoded models.SyncRecord
			if err := json.Unmarshal(val, &decoded); err != nil {
				return fmt.Errorf("%w: sync record '%s': %w", utils.ErrParsing, requestID, err)
			}
			rec = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading sync record '%s': %w", utils.ErrDatabase, requestID, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", utils.ErrSyncNotFound, requestID)
	}
	return rec, nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute // Default interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Info("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				// Run GC if log is at least 50% reclaimable space
				if err = s.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}

			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Debug("BadgerDB GC finished (no rewrite needed).")
			} else {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Infof("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// Close implements StoreAdmin
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		s.log.Info("Sync DB already closed or was not initialized.")
		return nil
	}
	if s.seq != nil {
		if err := s.seq.Release(); err != nil {
			s.log.Warnf("Releasing document sequence: %v", err)
		}
	}
	s.log.Info("Closing sync DB...")
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing sync DB: %v", err)
		return err
	}
	s.log.Info("Sync DB closed.")
	return nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testHeader(category string) models.ResponseHeader {
	return models.ResponseHeader{
		CustomerID:   "cust-1",
		SupplierKey:  "sysco",
		FullSyncOnly: true,
		ResponseType: models.ResponseTypeJSON,
		Category:     category,
	}
}

func TestBadgerStore_SaveAndListResponses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveRaw(ctx, models.RawDocument{
			RequestID: "req-1",
			Header:    testHeader(fmt.Sprintf("SyscoCategory1, page %d", i)),
			Data:      fmt.Sprintf(`{"page":%d}`, i),
		}))
	}
	require.NoError(t, store.SaveBlank(ctx, "req-1", testHeader("Favorites")))
	require.NoError(t, store.SaveRaw(ctx, models.RawDocument{RequestID: "req-2", Header: testHeader("other"), Data: "{}"}))

	docs, err := store.ListResponses(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, docs, 4)

	for i := 0; i < 3; i++ {
		assert.Equal(t, fmt.Sprintf(`{"page":%d}`, i), docs[i].Data, "documents come back in save order")
		assert.False(t, docs[i].IsBlank())
		assert.NotZero(t, docs[i].Seq)
		assert.False(t, docs[i].SavedAt.IsZero())
	}
	assert.True(t, docs[3].IsBlank())
	assert.Equal(t, "Favorites", docs[3].Header.Category)
	assert.Less(t, docs[0].Seq, docs[1].Seq)

	other, err := store.ListResponses(ctx, "req-2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestBadgerStore_RequestPrefixesDoNotOverlap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRaw(ctx, models.RawDocument{RequestID: "abc", Data: "1"}))
	require.NoError(t, store.SaveRaw(ctx, models.RawDocument{RequestID: "abcd", Data: "2"}))

	docs, err := store.ListResponses(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "1", docs[0].Data)
}

func TestBadgerStore_DeleteResponses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveRaw(ctx, models.RawDocument{RequestID: "req-del", Data: "{}"}))
	}
	require.NoError(t, store.SaveRaw(ctx, models.RawDocument{RequestID: "req-keep", Data: "{}"}))

	n, err := store.DeleteResponses(ctx, "req-del")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	docs, err := store.ListResponses(ctx, "req-del")
	require.NoError(t, err)
	assert.Empty(t, docs)

	kept, err := store.ListResponses(ctx, "req-keep")
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	n, err = store.DeleteResponses(ctx, "req-del")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBadgerStore_SaveParsedAndListProducts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveParsed(ctx, models.ProductBatch{
		RequestID: "req-p",
		Products:  []models.ParsedProduct{{ItemNumber: "1"}, {ItemNumber: "2"}},
	}))
	require.NoError(t, store.SaveParsed(ctx, models.ProductBatch{
		RequestID: "req-p",
		Products:  []models.ParsedProduct{{ItemNumber: "3"}},
	}))

	products, err := store.ListProducts(ctx, "req-p")
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "1", products[0].ItemNumber)
	assert.Equal(t, "3", products[2].ItemNumber)

	none, err := store.ListProducts(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBadgerStore_SyncRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		_, err := store.GetSyncRecord(ctx, "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, utils.ErrSyncNotFound))
	})

	t.Run("put then get overwrites", func(t *testing.T) {
		rec := models.SyncRecord{RequestID: "req-s", SupplierKey: "sysco", Status: models.SyncStatusRunning, StartedAt: time.Now().UTC()}
		require.NoError(t, store.PutSyncRecord(ctx, rec))

		done := time.Now().UTC()
		rec.Status = models.SyncStatusCompleted
		rec.CompletedAt = &done
		rec.PagesSaved = 7
		require.NoError(t, store.PutSyncRecord(ctx, rec))

		got, err := store.GetSyncRecord(ctx, "req-s")
		require.NoError(t, err)
		assert.Equal(t, models.SyncStatusCompleted, got.Status)
		assert.Equal(t, 7, got.PagesSaved)
		require.NotNil(t, got.CompletedAt)
	})
}

func TestBadgerStore_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.SaveRaw(ctx, models.RawDocument{RequestID: "r", Data: "{}"})
	assert.ErrorIs(t, err, context.Canceled)

	docs, err := store.ListResponses(context.Background(), "r")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestBadgerStore_ConcurrentSaves(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.SaveRaw(ctx, models.RawDocument{RequestID: "req-c", Data: "{}"}))
		}()
	}
	wg.Wait()

	docs, err := store.ListResponses(ctx, "req-c")
	require.NoError(t, err)
	assert.Len(t, docs, 20)

	seen := make(map[uint64]bool)
	for _, d := range docs {
		assert.False(t, seen[d.Seq], "sequence numbers are unique")
		seen[d.Seq] = true
	}
}

func TestBadgerStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store1, err := NewBadgerStore(dir, testLogger())
	require.NoError(t, err)
	require.NoError(t, store1.SaveRaw(ctx, models.RawDocument{RequestID: "r", Data: "first"}))
	require.NoError(t, store1.Close())

	store2, err := NewBadgerStore(dir, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store2.Close() })
	require.NoError(t, store2.SaveRaw(ctx, models.RawDocument{RequestID: "r", Data: "second"}))

	docs, err := store2.ListResponses(ctx, "r")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "first", docs[0].Data, "sequence continues after reopen")
	assert.Equal(t, "second", docs[1].Data)
}

func TestRunGC(t *testing.T) {
	t.Run("respects context cancellation", func(t *testing.T) {
		store := newTestStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel() // cancel immediately

		done := make(chan struct{})
		go func() {
			store.RunGC(ctx, 50*time.Millisecond)
			close(done)
		}()

		select {
		case <-done:
			// success
		case <-time.After(2 * time.Second):
			t.Fatal("RunGC did not respect context cancellation")
		}
	})
}

func TestClose(t *testing.T) {
	t.Run("normal close", func(t *testing.T) {
		store, err := NewBadgerStore(t.TempDir(), testLogger())
		require.NoError(t, err)
		assert.NoError(t, store.Close())
	})

	t.Run("double close does not panic", func(t *testing.T) {
		store, err := NewBadgerStore(t.TempDir(), testLogger())
		require.NoError(t, err)
		assert.NoError(t, store.Close())
		assert.NoError(t, store.Close()) // second close should be safe
	})
}

func TestDBUpdateConflictRetry(t *testing.T) {
	t.Run("succeeds after transient conflicts", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			if attempts <= 3 {
				return badger.ErrConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 4, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return badger.ErrConflict
		})
		require.Error(t, err)
		require.ErrorIs(t, err, utils.ErrDatabase)
		assert.Contains(t, err.Error(), "transaction conflict not resolved")
		assert.Equal(t, maxConflictRetries, attempts)
	})

	t.Run("non-conflict error returned immediately", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		sentinel := errors.New("some other error")
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return sentinel
		})
		require.Error(t, err)
		require.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, attempts)
	})
}

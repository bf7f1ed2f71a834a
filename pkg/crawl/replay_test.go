package crawl

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/packsize"
	"github.com/Sriram-PR/supplier-sync/pkg/storage"
)

func newTestStore(t *testing.T) *storage.BadgerStore {
	t.Helper()
	store, err := storage.NewBadgerStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func saveDocs(t *testing.T, store storage.Sink, requestID string, datas ...string) {
	t.Helper()
	req := models.CrawlRequest{RequestID: requestID, CustomerID: "cust-1", SupplierKey: "sysco"}
	for i, data := range datas {
		if data == "" {
			require.NoError(t, store.SaveBlank(context.Background(), requestID,
				models.NewResponseHeader(req, models.ResponseTypeBlank, "Favorites")))
			continue
		}
		require.NoError(t, store.SaveRaw(context.Background(), models.RawDocument{
			RequestID: requestID,
			Header:    models.NewResponseHeader(req, models.ResponseTypeJSON, "SyscoCategory1, page "+itoa(i)),
			Data:      data,
		}))
	}
}

func pricedDoc(ids ...string) string {
	prices := ""
	for i, id := range ids {
		if i > 0 {
			prices += ","
		}
		prices += `{"supc":"` + id + `","price":"1.00"}`
	}
	return combine(catalogPage(ids...), prices)
}

func TestReplayer_Process(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	saveDocs(t, store, "req-1", pricedDoc("1", "2", "3"), "", pricedDoc("4"))

	var keys []string
	r := NewReplayer(store, store, 2, func(key string) packsize.Rules {
		keys = append(keys, key)
		return packsize.RulesDefault
	}, testLogger())

	res, err := r.Process(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, ReplayResult{Documents: 3, Blanks: 1, Products: 4, Batches: 3, Deleted: 3}, res)
	assert.Equal(t, []string{"sysco", "sysco"}, keys)

	products, err := store.ListProducts(ctx, "req-1")
	require.NoError(t, err)
	var ids []string
	for _, p := range products {
		ids = append(ids, p.ItemNumber)
	}
	if diff := cmp.Diff([]string{"1", "2", "3", "4"}, ids); diff != "" {
		t.Errorf("replayed products mismatch (-want +got):\n%s", diff)
	}

	left, err := store.ListResponses(ctx, "req-1")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestReplayer_KeepsResponsesOnFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	saveDocs(t, store, "req-2", pricedDoc("1"), "not json")

	res, err := NewReplayer(store, store, 50, nil, testLogger()).Process(ctx, "req-2")
	require.Error(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Products)

	left, err := store.ListResponses(ctx, "req-2")
	require.NoError(t, err)
	assert.Len(t, left, 2, "responses stay for another attempt")
}

// flakySink fails the save of one batch, counted from 1
type flakySink struct {
	memSink
	failAt int
	calls  int
}

func (s *flakySink) SaveParsed(ctx context.Context, batch models.ProductBatch) error {
	s.calls++
	if s.calls == s.failAt {
		return errors.New("connection reset")
	}
	return s.memSink.SaveParsed(ctx, batch)
}

func TestReplayer_RetryAfterPartialSaveRepeatsBatches(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	saveDocs(t, store, "req-4", pricedDoc("1", "2", "3"))

	sink := &flakySink{failAt: 2}
	r := NewReplayer(store, sink, 1, nil, testLogger())

	res, err := r.Process(ctx, "req-4")
	require.Error(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Batches)

	left, err := store.ListResponses(ctx, "req-4")
	require.NoError(t, err)
	assert.Len(t, left, 1, "partially saved document is kept")

	res, err = r.Process(ctx, "req-4")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 1, res.Deleted)

	var ids []string
	for _, b := range sink.batches {
		for _, p := range b.Products {
			ids = append(ids, p.ItemNumber)
		}
	}
	if diff := cmp.Diff([]string{"1", "1", "2", "3"}, ids); diff != "" {
		t.Errorf("saved products mismatch (-want +got):\n%s", diff)
	}
}

// cancellingSink cancels the replay after its first batch
type cancellingSink struct {
	memSink
	cancel context.CancelFunc
}

func (s *cancellingSink) SaveParsed(ctx context.Context, batch models.ProductBatch) error {
	defer s.cancel()
	return s.memSink.SaveParsed(ctx, batch)
}

func TestReplayer_StopsWhenCancelled(t *testing.T) {
	store := newTestStore(t)
	saveDocs(t, store, "req-3", pricedDoc("1", "2", "3"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &cancellingSink{cancel: cancel}

	res, err := NewReplayer(store, sink, 1, nil, testLogger()).Process(ctx, "req-3")
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, res.Batches)
	assert.Len(t, sink.batches, 1)

	left, err := store.ListResponses(context.Background(), "req-3")
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestReplayer_NothingStored(t *testing.T) {
	store := newTestStore(t)
	res, err := NewReplayer(store, store, 0, nil, testLogger()).Process(context.Background(), "none")
	require.NoError(t, err)
	assert.Equal(t, ReplayResult{}, res)
}

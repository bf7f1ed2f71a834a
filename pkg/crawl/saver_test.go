package crawl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/packsize"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

func TestSaver(t *testing.T) {
	ctx := context.Background()
	req := models.CrawlRequest{RequestID: "req-1", CustomerID: "cust-1", SupplierKey: "sysco"}
	doc := `{"productList": ` + catalogPage("1001") + `, "prices":[{"supc":"1001","price":"2.00"}]}`

	t.Run("deferred saves raw documents and blanks", func(t *testing.T) {
		sink := &memSink{}
		s := NewSaver(sink, req, true, packsize.RulesDefault, nil, testLogger())

		n, err := s.Save(ctx, "SyscoCategory1, page 0", doc)
		require.NoError(t, err)
		assert.Zero(t, n)
		require.Len(t, sink.raws, 1)
		assert.Equal(t, doc, sink.raws[0].Data)
		assert.Equal(t, models.ResponseTypeJSON, sink.raws[0].Header.ResponseType)

		require.NoError(t, s.Blank(ctx, "Favorites"))
		require.Len(t, sink.blanks, 1)
		assert.Equal(t, models.ResponseTypeBlank, sink.blanks[0].ResponseType)
	})

	t.Run("immediate parses and skips blanks", func(t *testing.T) {
		sink := &memSink{}
		s := NewSaver(sink, req, false, packsize.RulesDefault, nil, testLogger())

		n, err := s.Save(ctx, "SyscoCategory1, page 0", doc)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.Len(t, sink.batches, 1)
		assert.Equal(t, "2.00", sink.batches[0].Products[0].Price)
		assert.Equal(t, "SyscoCategory1, page 0", sink.batches[0].Products[0].Category)

		require.NoError(t, s.Blank(ctx, "Favorites"))
		assert.Empty(t, sink.blanks)
	})

	t.Run("immediate parse error", func(t *testing.T) {
		s := NewSaver(&memSink{}, req, false, packsize.RulesDefault, nil, testLogger())
		_, err := s.Save(ctx, "x", "not json")
		assert.True(t, errors.Is(err, utils.ErrParsing))
	})

	t.Run("sink error is a save failure", func(t *testing.T) {
		s := NewSaver(&memSink{failRaw: errors.New("closed")}, req, true, packsize.RulesDefault, nil, testLogger())
		_, err := s.Save(ctx, "x", doc)
		require.Error(t, err)
		assert.Equal(t, "Save_Failed", utils.CategorizeError(err))
	})
}

package crawl

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/extract"
	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/packsize"
	"github.com/Sriram-PR/supplier-sync/pkg/storage"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// Progress receives per-request progress updates. jobs.Manager implements it.
type Progress interface {
	SetPhase(requestID string, querying, parsing bool)
	AddProgress(requestID string, pages, products int)
}

type nopProgress struct{}

func (nopProgress) SetPhase(string, bool, bool)  {}
func (nopProgress) AddProgress(string, int, int) {}

// Saver hands crawl output to the save boundary. The mode is fixed for the
// session: deferred saves raw documents, immediate parses them first.
type Saver struct {
	sink     storage.Sink
	req      models.CrawlRequest
	deferred bool
	rules    packsize.Rules
	progress Progress
	log      *logrus.Entry
}

// NewSaver creates a Saver for req. progress may be nil.
func NewSaver(sink storage.Sink, req models.CrawlRequest, deferred bool, rules packsize.Rules, progress Progress, log *logrus.Entry) *Saver {
	if progress == nil {
		progress = nopProgress{}
	}
	return &Saver{
		sink:     sink,
		req:      req,
		deferred: deferred,
		rules:    rules,
		progress: progress,
		log:      log,
	}
}

// Deferred reports whether raw documents are saved for later parsing
func (s *Saver) Deferred() bool {
	return s.deferred
}

// Save persists one combined product+price document labeled category and
// returns the number of products saved (0 in deferred mode).
func (s *Saver) Save(ctx context.Context, category, data string) (int, error) {
	if s.deferred {
		doc := models.RawDocument{
			RequestID: s.req.RequestID,
			Header:    models.NewResponseHeader(s.req, models.ResponseTypeJSON, category),
			Data:      data,
		}
		if err := s.sink.SaveRaw(ctx, doc); err != nil {
			return 0, fmt.Errorf("%w: %w", utils.ErrSaveFailed, err)
		}
		s.progress.AddProgress(s.req.RequestID, 1, 0)
		return 0, nil
	}

	products, err := extract.Parse(data, extract.Meta{
		CustomerID:    s.req.CustomerID,
		SupplierKey:   s.req.SupplierKey,
		RequestID:     s.req.RequestID,
		Category:      category,
		FavoritesOnly: s.req.FavoritesOnly,
		Rules:         s.rules,
	})
	if err != nil {
		return 0, err
	}

	batch := models.ProductBatch{
		RequestID:   s.req.RequestID,
		CustomerID:  s.req.CustomerID,
		SupplierKey: s.req.SupplierKey,
		Category:    category,
		Products:    products,
	}
	if err := s.sink.SaveParsed(ctx, batch); err != nil {
		return 0, fmt.Errorf("%w: %w", utils.ErrSaveFailed, err)
	}
	s.progress.AddProgress(s.req.RequestID, 1, len(products))
	return len(products), nil
}

// Blank records that category was attempted without data. Only deferred
// mode stores blank markers; in immediate mode there is nothing to replay.
func (s *Saver) Blank(ctx context.Context, category string) error {
	if !s.deferred {
		s.log.WithField("category", category).Info("Skipping blank marker in immediate-parse mode")
		return nil
	}
	header := models.NewResponseHeader(s.req, models.ResponseTypeBlank, category)
	if err := s.sink.SaveBlank(ctx, s.req.RequestID, header); err != nil {
		return fmt.Errorf("%w: %w", utils.ErrSaveFailed, err)
	}
	return nil
}

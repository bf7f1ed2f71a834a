package crawl

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/extract"
	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/packsize"
	"github.com/Sriram-PR/supplier-sync/pkg/storage"
)

// RulesFunc returns the pack size rules of a supplier
type RulesFunc func(supplierKey string) packsize.Rules

// ReplayResult counts what one Replayer.Process did
type ReplayResult struct {
	Documents int  `json:"documents"`
	Blanks    int  `json:"blanks"`
	Failed    int  `json:"failed"`
	Products  int  `json:"products"`
	Batches   int  `json:"batches"`
	Deleted   int  `json:"deleted"`
	Cancelled bool `json:"cancelled"`
}

// Replayer parses documents saved in deferred mode and stores the products
type Replayer struct {
	responses storage.ResponseStore
	sink      storage.Sink
	batchSize int
	rules     RulesFunc
	log       *logrus.Entry
}

// NewReplayer creates a Replayer. rules may be nil for the default tables.
func NewReplayer(responses storage.ResponseStore, sink storage.Sink, batchSize int, rules RulesFunc, log *logrus.Entry) *Replayer {
	if batchSize <= 0 {
		batchSize = 50
	}
	if rules == nil {
		rules = func(string) packsize.Rules { return packsize.RulesDefault }
	}
	return &Replayer{
		responses: responses,
		sink:      sink,
		batchSize: batchSize,
		rules:     rules,
		log:       log.WithField("component", "replay"),
	}
}

// Process parses every stored document of requestID in save order and saves
// the products in batches of the configured size. Blank markers are skipped.
// The stored documents are deleted once every batch is saved; when a document
// fails to parse or save they are kept for another attempt. Delivery is
// at-least-once: batches saved before a failure are saved again by the next
// attempt, so sinks should tolerate repeated products of a request. Cancelling
// ctx stops between batches.
func (r *Replayer) Process(ctx context.Context, requestID string) (ReplayResult, error) {
	var res ReplayResult
	log := r.log.WithField("request_id", requestID)

	docs, err := r.responses.ListResponses(ctx, requestID)
	if err != nil {
		return res, fmt.Errorf("load responses of %s: %w", requestID, err)
	}
	log.WithField("documents", len(docs)).Info("Replaying stored responses")

	var firstErr error
	for _, doc := range docs {
		res.Documents++
		if doc.IsBlank() {
			res.Blanks++
			continue
		}

		products, err := extract.Parse(doc.Data, extract.Meta{
			CustomerID:    doc.Header.CustomerID,
			SupplierKey:   doc.Header.SupplierKey,
			RequestID:     doc.RequestID,
			Category:      doc.Header.Category,
			FavoritesOnly: doc.Header.FavoritesOnly,
			Rules:         r.rules(doc.Header.SupplierKey),
		})
		if err != nil {
			log.WithField("category", doc.Header.Category).Warnf("Skipping unparseable document: %v", err)
			res.Failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		for start := 0; start < len(products); start += r.batchSize {
			if err := ctx.Err(); err != nil {
				res.Cancelled = true
				log.Info("Replay cancelled, keeping stored responses")
				return res, err
			}
			end := min(start+r.batchSize, len(products))
			batch := models.ProductBatch{
				RequestID:   doc.RequestID,
				CustomerID:  doc.Header.CustomerID,
				SupplierKey: doc.Header.SupplierKey,
				Category:    doc.Header.Category,
				Products:    products[start:end],
			}
			if err := r.sink.SaveParsed(ctx, batch); err != nil {
				log.WithField("category", doc.Header.Category).Errorf("Saving product batch failed: %v", err)
				res.Failed++
				if firstErr == nil {
					firstErr = err
				}
				break
			}
			res.Batches++
			res.Products += end - start
		}
	}

	if firstErr != nil {
		return res, fmt.Errorf("replay of %s left %d failed documents: %w", requestID, res.Failed, firstErr)
	}

	deleted, err := r.responses.DeleteResponses(ctx, requestID)
	if err != nil {
		return res, fmt.Errorf("delete responses of %s: %w", requestID, err)
	}
	res.Deleted = deleted
	log.WithFields(logrus.Fields{"products": res.Products, "batches": res.Batches}).Info("Replay finished")
	return res, nil
}

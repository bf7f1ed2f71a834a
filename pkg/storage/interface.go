package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/supplier-sync/pkg/models"
)

// Sink is the save boundary the crawl engine writes to
type Sink interface {
	// SaveRaw stores one raw combined product+price document for later parsing.
	// A zero Seq is assigned by the store.
	SaveRaw(ctx context.Context, doc models.RawDocument) error

	// SaveParsed stores a batch of parsed products
	SaveParsed(ctx context.Context, batch models.ProductBatch) error

	// SaveBlank stores a "no data, try again later" marker for requestID
	SaveBlank(ctx context.Context, requestID string, header models.ResponseHeader) error
}

// ResponseStore gives access to the raw documents saved in deferred-parse mode
type ResponseStore interface {
	// ListResponses returns the raw documents of requestID in save order
	ListResponses(ctx context.Context, requestID string) ([]models.RawDocument, error)

	// DeleteResponses removes every raw document of requestID and returns how many were removed
	DeleteResponses(ctx context.Context, requestID string) (int, error)
}

// ProductStore reads back parsed products
type ProductStore interface {
	// ListProducts returns the products saved for requestID, batch by batch
	ListProducts(ctx context.Context, requestID string) ([]models.ParsedProduct, error)
}

// StatusStore persists sync records so status survives the process that ran the sync
type StatusStore interface {
	PutSyncRecord(ctx context.Context, rec models.SyncRecord) error

	// GetSyncRecord returns utils.ErrSyncNotFound for an unknown request
	GetSyncRecord(ctx context.Context, requestID string) (*models.SyncRecord, error)
}

// StoreAdmin handles lifecycle operations
type StoreAdmin interface {
	// RunGC runs periodic garbage collection until ctx is done. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the underlying connection or database
	Close() error
}

// Store combines the interfaces a storage backend provides
type Store interface {
	Sink
	ResponseStore
	ProductStore
	StatusStore
	StoreAdmin
}

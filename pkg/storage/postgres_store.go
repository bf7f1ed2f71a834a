package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/metrics"
	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// schemaDDL is expanded with the quoted schema name for every {schema}
const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS {schema};

CREATE TABLE IF NOT EXISTS {schema}.raw_responses (
	seq           BIGSERIAL PRIMARY KEY,
	request_id    TEXT        NOT NULL,
	response_type TEXT        NOT NULL,
	category      TEXT        NOT NULL DEFAULT '',
	header        JSONB       NOT NULL,
	data          TEXT        NOT NULL DEFAULT '',
	saved_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS raw_responses_request_idx ON {schema}.raw_responses (request_id, seq);

CREATE TABLE IF NOT EXISTS {schema}.products (
	id          BIGSERIAL PRIMARY KEY,
	request_id  TEXT  NOT NULL,
	customer_id TEXT  NOT NULL DEFAULT '',
	supplier    TEXT  NOT NULL DEFAULT '',
	category    TEXT  NOT NULL DEFAULT '',
	item_number TEXT  NOT NULL DEFAULT '',
	product     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS products_request_idx ON {schema}.products (request_id, id);

CREATE TABLE IF NOT EXISTS {schema}.sync_records (
	request_id TEXT PRIMARY KEY,
	status     TEXT        NOT NULL,
	record     JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore implements Store on PostgreSQL. Document order is the
// database-assigned seq; a caller-provided RawDocument.Seq is not stored.
type PostgresStore struct {
	db        *pgxpool.Pool
	schema    string // quoted identifier
	batchSize int
	log       *logrus.Entry
}

// NewPostgresStore connects to databaseURL and creates the tables under schema
// when missing. Products are inserted batchSize rows per round trip.
func NewPostgresStore(ctx context.Context, databaseURL, schema string, batchSize int, logger *logrus.Entry) (*PostgresStore, error) {
	if schema == "" {
		schema = "public"
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	db, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to create connection pool: %w", utils.ErrDatabase, err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %w", utils.ErrDatabase, err)
	}

	s := &PostgresStore{
		db:        db,
		schema:    pq.QuoteIdentifier(schema),
		batchSize: batchSize,
		log:       logger.WithFields(logrus.Fields{"component": "storage", "backend": "postgres"}),
	}
	if _, err := db.Exec(ctx, s.sql(schemaDDL)); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema %s: %w", utils.ErrDatabase, s.schema, err)
	}
	s.log.Infof("PostgreSQL store ready (schema %s)", s.schema)
	return s, nil
}

func (s *PostgresStore) sql(query string) string {
	return strings.ReplaceAll(query, "{schema}", s.schema)
}

// WithTransaction runs fn in a transaction, committing when fn returns nil
func (s *PostgresStore) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	return fn(tx)
}

// SaveRaw implements Sink
func (s *PostgresStore) SaveRaw(ctx context.Context, doc models.RawDocument) error {
	return s.saveRaw(ctx, doc, "raw")
}

// SaveBlank implements Sink
func (s *PostgresStore) SaveBlank(ctx context.Context, requestID string, header models.ResponseHeader) error {
	header.ResponseType = models.ResponseTypeBlank
	return s.saveRaw(ctx, models.RawDocument{RequestID: requestID, Header: header}, "blank")
}

func (s *PostgresStore) saveRaw(ctx context.Context, doc models.RawDocument, mode string) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveSave(mode, start, err) }()

	header, err := json.Marshal(doc.Header)
	if err != nil {
		return fmt.Errorf("%w: marshal header: %w", utils.ErrParsing, err)
	}
	savedAt := doc.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}
	_, err = s.db.Exec(ctx, s.sql(`
		INSERT INTO {schema}.raw_responses (request_id, response_type, category, header, data, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6)`),
		doc.RequestID, string(doc.Header.ResponseType), doc.Header.Category, header, doc.Data, savedAt)
	if err != nil {
		return fmt.Errorf("%w: insert raw response: %w", utils.ErrDatabase, err)
	}
	return nil
}

// SaveParsed implements Sink. The batch is written in one transaction,
// batchSize rows per round trip.
func (s *PostgresStore) SaveParsed(ctx context.Context, batch models.ProductBatch) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveSave("parsed", start, err) }()

	insert := s.sql(`
		INSERT INTO {schema}.products (request_id, customer_id, supplier, category, item_number, product)
		VALUES ($1, $2, $3, $4, $5, $6)`)

	return s.WithTransaction(ctx, func(tx pgx.Tx) error {
		for lo := 0; lo < len(batch.Products); lo += s.batchSize {
			hi := min(lo+s.batchSize, len(batch.Products))

			b := &pgx.Batch{}
			for _, p := range batch.Products[lo:hi] {
				data, err := json.Marshal(p)
				if err != nil {
					return fmt.Errorf("%w: marshal product %s: %w", utils.ErrParsing, p.ItemNumber, err)
				}
				b.Queue(insert, batch.RequestID, batch.CustomerID, batch.SupplierKey, batch.Category, p.ItemNumber, data)
			}
			if err := tx.SendBatch(ctx, b).Close(); err != nil {
				return fmt.Errorf("%w: insert products: %w", utils.ErrDatabase, err)
			}
		}
		return nil
	})
}

// ListResponses implements ResponseStore
func (s *PostgresStore) ListResponses(ctx context.Context, requestID string) ([]models.RawDocument, error) {
	rows, err := s.db.Query(ctx, s.sql(`
		SELECT seq, header, data, saved_at FROM {schema}.raw_responses
		WHERE request_id = $1 ORDER BY seq`), requestID)
	if err != nil {
		return nil, fmt.Errorf("%w: query raw responses: %w", utils.ErrDatabase, err)
	}

	var docs []models.RawDocument
	var (
		seq     int64
		header  []byte
		data    string
		savedAt time.Time
	)
	_, err = pgx.ForEachRow(rows, []any{&seq, &header, &data, &savedAt}, func() error {
		doc := models.RawDocument{RequestID: requestID, Data: data, Seq: uint64(seq), SavedAt: savedAt}
		if err := json.Unmarshal(header, &doc.Header); err != nil {
			s.log.Warnf("Failed to unmarshal header of response %d: %v. Skipping.", seq, err)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: iterate raw responses: %w", utils.ErrDatabase, err)
	}
	return docs, nil
}

// DeleteResponses implements ResponseStore
func (s *PostgresStore) DeleteResponses(ctx context.Context, requestID string) (int, error) {
	tag, err := s.db.Exec(ctx, s.sql(`DELETE FROM {schema}.raw_responses WHERE request_id = $1`), requestID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete raw responses: %w", utils.ErrDatabase, err)
	}
	return int(tag.RowsAffected()), nil
}

// ListProducts implements ProductStore
func (s *PostgresStore) ListProducts(ctx context.Context, requestID string) ([]models.ParsedProduct, error) {
	rows, err := s.db.Query(ctx, s.sql(`SELECT product FROM {schema}.products WHERE request_id = $1 ORDER BY id`), requestID)
	if err != nil {
		return nil, fmt.Errorf("%w: query products: %w", utils.ErrDatabase, err)
	}

	var products []models.ParsedProduct
	var data []byte
	_, err = pgx.ForEachRow(rows, []any{&data}, func() error {
		var p models.ParsedProduct
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("%w: product row: %w", utils.ErrParsing, err)
		}
		products = append(products, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: iterate products: %w", utils.ErrDatabase, err)
	}
	return products, nil
}

// PutSyncRecord implements StatusStore
func (s *PostgresStore) PutSyncRecord(ctx context.Context, rec models.SyncRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal sync record: %w", utils.ErrParsing, err)
	}
	_, err = s.db.Exec(ctx, s.sql(`
		INSERT INTO {schema}.sync_records (request_id, status, record, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (request_id) DO UPDATE
		SET status = EXCLUDED.status, record = EXCLUDED.record, updated_at = now()`),
		rec.RequestID, string(rec.Status), data)
	if err != nil {
		return fmt.Errorf("%w: upsert sync record: %w", utils.ErrDatabase, err)
	}
	return nil
}

// GetSyncRecord implements StatusStore
func (s *PostgresStore) GetSyncRecord(ctx context.Context, requestID string) (*models.SyncRecord, error) {
	var data []byte
	err := s.db.QueryRow(ctx, s.sql(`SELECT record FROM {schema}.sync_records WHERE request_id = $1`), requestID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", utils.ErrSyncNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: query sync record: %w", utils.ErrDatabase, err)
	}
	var rec models.SyncRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: sync record %s: %w", utils.ErrParsing, requestID, err)
	}
	return &rec, nil
}

// RunGC blocks until ctx is done. PostgreSQL reclaims space through autovacuum.
func (s *PostgresStore) RunGC(ctx context.Context, _ time.Duration) {
	<-ctx.Done()
}

// Close implements StoreAdmin
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

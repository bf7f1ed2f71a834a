package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/storage"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

const persistTimeout = 5 * time.Second

// job is the in-process state of one sync request
type job struct {
	record models.SyncRecord
	key    string

	ctx    context.Context
	cancel context.CancelFunc
}

func (j *job) active() bool {
	return !j.record.Status.IsTerminal()
}

// Manager tracks sync requests started by this process and mirrors their
// records to a StatusStore so other processes can query them.
type Manager struct {
	jobs  map[string]*job
	byKey map[string]string // supplier/customer/mode -> request id of the active sync
	mu    sync.RWMutex

	status storage.StatusStore // optional
	log    *logrus.Entry
}

// NewManager creates a new sync manager. status may be nil.
func NewManager(status storage.StatusStore, log *logrus.Entry) *Manager {
	return &Manager{
		jobs:   make(map[string]*job),
		byKey:  make(map[string]string),
		status: status,
		log:    log.WithField("component", "jobs"),
	}
}

func requestKey(req models.CrawlRequest) string {
	return fmt.Sprintf("%s/%s/%t", req.SupplierKey, req.CustomerID, req.FavoritesOnly)
}

// Create registers req as pending and assigns a request id when it has none.
// When a sync for the same supplier, customer and mode is still active, that
// sync's record is returned with created=false.
func (m *Manager) Create(req models.CrawlRequest) (rec models.SyncRecord, created bool) {
	m.mu.Lock()

	key := requestKey(req)
	if id, ok := m.byKey[key]; ok {
		if existing := m.jobs[id]; existing != nil && existing.active() {
			rec = existing.record
			m.mu.Unlock()
			return rec, false
		}
	}
	if req.RequestID != "" {
		if existing := m.jobs[req.RequestID]; existing != nil {
			rec = existing.record
			m.mu.Unlock()
			return rec, false
		}
	} else {
		req.RequestID = uuid.New().String()
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		record: models.SyncRecord{
			RequestID:     req.RequestID,
			CustomerID:    req.CustomerID,
			SupplierKey:   req.SupplierKey,
			FavoritesOnly: req.FavoritesOnly,
			Status:        models.SyncStatusPending,
			StartedAt:     time.Now().UTC(),
		},
		key:    key,
		ctx:    ctx,
		cancel: cancel,
	}
	m.jobs[req.RequestID] = j
	m.byKey[key] = req.RequestID
	rec = j.record
	m.mu.Unlock()

	m.persist(rec)
	return rec, true
}

// Context returns the context a sync runs under; it is cancelled by Cancel.
func (m *Manager) Context(requestID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if j, ok := m.jobs[requestID]; ok {
		return j.ctx
	}
	return context.Background()
}

// Get returns the record of requestID, from this process or else from the
// status store. Unknown requests return utils.ErrSyncNotFound.
func (m *Manager) Get(ctx context.Context, requestID string) (*models.SyncRecord, error) {
	m.mu.RLock()
	j, ok := m.jobs[requestID]
	var rec models.SyncRecord
	if ok {
		rec = j.record
	}
	m.mu.RUnlock()

	if ok {
		return &rec, nil
	}
	if m.status == nil {
		return nil, fmt.Errorf("%w: %s", utils.ErrSyncNotFound, requestID)
	}
	return m.status.GetSyncRecord(ctx, requestID)
}

// IsRunning reports whether requestID is pending or running
func (m *Manager) IsRunning(ctx context.Context, requestID string) (bool, error) {
	rec, err := m.Get(ctx, requestID)
	if errors.Is(err, utils.ErrSyncNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !rec.Status.IsTerminal(), nil
}

// UpdateStatus moves requestID to status. A terminal status stamps CompletedAt
// and frees the supplier/customer slot. Terminal records are not changed again.
func (m *Manager) UpdateStatus(requestID string, status models.SyncStatus, errorMsg string) {
	m.update(requestID, func(j *job) bool {
		if !j.active() {
			return false
		}
		j.record.Status = status
		if status.IsTerminal() {
			now := time.Now().UTC()
			j.record.CompletedAt = &now
			j.record.Querying = false
			j.record.Parsing = false
			delete(m.byKey, j.key)
		}
		if errorMsg != "" {
			j.record.ErrorMessage = errorMsg
		}
		return true
	})
}

// SetPhase records whether the supplier is being queried and products parsed
func (m *Manager) SetPhase(requestID string, querying, parsing bool) {
	m.update(requestID, func(j *job) bool {
		j.record.Querying = querying
		j.record.Parsing = parsing
		return true
	})
}

// AddProgress adds saved pages and products to the counters of requestID.
// Counters are persisted with the next status change.
func (m *Manager) AddProgress(requestID string, pages, products int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j, ok := m.jobs[requestID]; ok {
		j.record.PagesSaved += pages
		j.record.ProductsSaved += products
	}
}

// Cancel cancels a pending or running sync
func (m *Manager) Cancel(requestID string) bool {
	cancelled := false
	m.update(requestID, func(j *job) bool {
		if !j.active() {
			return false
		}
		j.cancel()
		now := time.Now().UTC()
		j.record.Status = models.SyncStatusCancelled
		j.record.CompletedAt = &now
		delete(m.byKey, j.key)
		cancelled = true
		return true
	})
	return cancelled
}

// CancelAll cancels all active syncs
func (m *Manager) CancelAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.jobs))
	for id, j := range m.jobs {
		if j.active() {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.Cancel(id)
	}
}

// List returns the records of this process, oldest first
func (m *Manager) List() []models.SyncRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.SyncRecord, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.record)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.Before(out[k].StartedAt) })
	return out
}

// update applies fn under the lock and persists the record when fn reports a change
func (m *Manager) update(requestID string, fn func(j *job) bool) {
	m.mu.Lock()
	j, ok := m.jobs[requestID]
	if !ok || !fn(j) {
		m.mu.Unlock()
		return
	}
	rec := j.record
	m.mu.Unlock()

	m.persist(rec)
}

func (m *Manager) persist(rec models.SyncRecord) {
	if m.status == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.status.PutSyncRecord(ctx, rec); err != nil {
		m.log.WithField("request_id", rec.RequestID).Warnf("Failed to persist sync record: %v", err)
	}
}

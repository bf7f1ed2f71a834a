package orchestrate

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/supplier-sync/pkg/config"
	"github.com/Sriram-PR/supplier-sync/pkg/crawl"
	"github.com/Sriram-PR/supplier-sync/pkg/fetch"
	"github.com/Sriram-PR/supplier-sync/pkg/jobs"
	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/storage"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// SyncResult contains the result of one sync request
type SyncResult struct {
	RequestID   string            `json:"request_id"`
	SupplierKey string            `json:"supplier"`
	CustomerID  string            `json:"customer_id"`
	Status      models.SyncStatus `json:"status"`
	Error       error             `json:"-"`
	Report      *crawl.Report     `json:"report,omitempty"`
	Duration    time.Duration     `json:"duration"`
}

// Success reports whether the sync got past login and finished
func (r SyncResult) Success() bool {
	return r.Status == models.SyncStatusCompleted
}

// Orchestrator runs sync requests, each on its own session and engine, with at
// most max_parallel_syncs running at once.
type Orchestrator struct {
	appCfg *config.AppConfig
	log    *logrus.Entry
	sink   storage.Sink
	jobs   *jobs.Manager

	// Shared resources
	httpClient *http.Client
	fetcher    *fetch.Fetcher
	slots      *semaphore.Weighted // Gates background syncs started with Start

	// Coordination
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewOrchestrator creates an orchestrator. appCfg must be validated.
func NewOrchestrator(appCfg *config.AppConfig, sink storage.Sink, manager *jobs.Manager, log *logrus.Entry) (*Orchestrator, error) {
	httpClient, err := fetch.NewClient(appCfg.HTTPClientSettings, log)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		appCfg:     appCfg,
		log:        log.WithField("component", "orchestrate"),
		sink:       sink,
		jobs:       manager,
		httpClient: httpClient,
		fetcher:    fetch.NewFetcher(fetch.PolicyFromConfig(appCfg), log),
		slots:      semaphore.NewWeighted(int64(max(appCfg.MaxParallelSyncs, 1))),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Jobs returns the manager tracking this orchestrator's syncs
func (o *Orchestrator) Jobs() *jobs.Manager {
	return o.jobs
}

// Start registers req and runs it in the background once a slot is free.
// When an equivalent sync is already active its record is returned with
// created=false and nothing new is started.
func (o *Orchestrator) Start(req models.CrawlRequest) (rec models.SyncRecord, created bool, err error) {
	if _, err := o.appCfg.Supplier(req.SupplierKey); err != nil {
		return models.SyncRecord{}, false, err
	}
	rec, created = o.jobs.Create(req)
	if !created {
		return rec, false, nil
	}
	req.RequestID = rec.RequestID

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.slots.Acquire(o.ctx, 1); err != nil {
			o.jobs.UpdateStatus(req.RequestID, models.SyncStatusCancelled, "shutting down")
			return
		}
		defer o.slots.Release(1)
		o.execute(o.ctx, req)
	}()
	return rec, true, nil
}

// RunAll runs every request to completion, max_parallel_syncs at a time, and
// returns the results in request order.
func (o *Orchestrator) RunAll(ctx context.Context, reqs []models.CrawlRequest) []SyncResult {
	startTime := time.Now()
	o.log.Infof("Starting %d sync requests", len(reqs))

	results := make([]SyncResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(max(o.appCfg.MaxParallelSyncs, 1))

	for i, req := range reqs {
		if _, err := o.appCfg.Supplier(req.SupplierKey); err != nil {
			results[i] = SyncResult{SupplierKey: req.SupplierKey, CustomerID: req.CustomerID, Status: models.SyncStatusFailed, Error: err}
			continue
		}
		rec, created := o.jobs.Create(req)
		if !created {
			results[i] = SyncResult{
				RequestID:   rec.RequestID,
				SupplierKey: req.SupplierKey,
				CustomerID:  req.CustomerID,
				Status:      rec.Status,
				Error:       fmt.Errorf("sync %s is already active for this customer", rec.RequestID),
			}
			continue
		}
		req.RequestID = rec.RequestID
		g.Go(func() error {
			results[i] = o.execute(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	o.logSummary(results, time.Since(startTime))
	return results
}

// execute runs one registered request and records its outcome
func (o *Orchestrator) execute(ctx context.Context, req models.CrawlRequest) SyncResult {
	startTime := time.Now()
	log := o.log.WithFields(logrus.Fields{"supplier": req.SupplierKey, "request_id": req.RequestID})
	result := SyncResult{RequestID: req.RequestID, SupplierKey: req.SupplierKey, CustomerID: req.CustomerID}

	fail := func(err error) SyncResult {
		log.Errorf("Sync could not start: %v", err)
		o.jobs.UpdateStatus(req.RequestID, models.SyncStatusFailed, err.Error())
		result.Status = models.SyncStatusFailed
		result.Error = err
		result.Duration = time.Since(startTime)
		return result
	}

	sup, err := o.appCfg.Supplier(req.SupplierKey)
	if err != nil {
		return fail(err)
	}
	if req.AuthToken == nil && req.Credentials.Username == "" {
		req.Credentials = config.CredentialsFromEnv(sup)
	}

	// The request runs until its own cancellation, the caller's, or the timeout.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(o.jobs.Context(req.RequestID), cancel)
	defer stop()
	if o.appCfg.GlobalSyncTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, o.appCfg.GlobalSyncTimeout)
		defer cancelTimeout()
	}

	sess, err := fetch.NewSession(o.httpClient, fetch.SessionOptions{
		BaseURL:           sup.BaseURL,
		LoginBaseURL:      sup.LoginBaseURL,
		UserAgent:         config.GetEffectiveUserAgent(sup, *o.appCfg),
		Timeout:           o.appCfg.HTTPClientSettings.Timeout,
		RequestsPerSecond: o.appCfg.RequestsPerSecond,
		Burst:             o.appCfg.RequestBurst,
	}, log)
	if err != nil {
		return fail(err)
	}
	engine, err := crawl.NewEngine(crawl.Options{
		SupplierKey: req.SupplierKey,
		Supplier:    sup,
		Session:     sess,
		Fetcher:     o.fetcher,
		Sink:        o.sink,
		SaveWorkers: o.appCfg.SaveWorkers,
		Progress:    o.jobs,
	}, log)
	if err != nil {
		return fail(err)
	}

	o.jobs.UpdateStatus(req.RequestID, models.SyncStatusRunning, "")
	log.Info("Sync started")

	ok, report := engine.Run(runCtx, req)
	result.Report = report
	result.Duration = time.Since(startTime)

	switch {
	case o.jobs.Context(req.RequestID).Err() != nil:
		result.Status = models.SyncStatusCancelled
	case !ok:
		result.Status = models.SyncStatusLoginFailed
		result.Error = utils.ErrLoginFailed
		o.jobs.UpdateStatus(req.RequestID, models.SyncStatusLoginFailed, report.ErrorMessage())
	default:
		result.Status = models.SyncStatusCompleted
		o.jobs.UpdateStatus(req.RequestID, models.SyncStatusCompleted, report.ErrorMessage())
	}
	log.WithField("status", result.Status).Infof("Sync finished in %v", result.Duration)
	return result
}

// Shutdown cancels every active sync and waits for background syncs to stop
func (o *Orchestrator) Shutdown() {
	o.log.Info("Cancelling all syncs...")
	o.jobs.CancelAll()
	o.cancel()
	o.wg.Wait()
}

// Wait blocks until every background sync started with Start has finished
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// logSummary logs a summary of all sync results
func (o *Orchestrator) logSummary(results []SyncResult, totalDuration time.Duration) {
	o.log.Info("============================================")
	o.log.Infof("Sync run completed in %v", totalDuration)
	o.log.Info("Results:")

	var totalPages, totalProducts int
	successCount := 0
	failCount := 0

	for _, r := range results {
		if r.Success() {
			successCount++
		} else {
			failCount++
		}
		pages, products := 0, 0
		if r.Report != nil {
			pages, products = r.Report.PagesSaved, r.Report.ProductsSaved
		}
		totalPages += pages
		totalProducts += products

		o.log.Infof("  %s/%s: %s - %d pages, %d products in %v", r.SupplierKey, r.CustomerID, r.Status, pages, products, r.Duration)
		if r.Error != nil {
			o.log.Infof("    Error: %v", r.Error)
		}
	}

	o.log.Info("--------------------------------------------")
	o.log.Infof("Total: %d syncs (%d completed, %d not), %d pages, %d products saved",
		len(results), successCount, failCount, totalPages, totalProducts)
	o.log.Info("============================================")
}

// ValidateSupplierKeys checks that all provided supplier keys exist in the config
func ValidateSupplierKeys(appCfg *config.AppConfig, keys []string) error {
	for _, key := range keys {
		if _, exists := appCfg.Suppliers[key]; !exists {
			return fmt.Errorf("%w: '%s'. Available suppliers: %v", utils.ErrSupplierNotFound, key, appCfg.SupplierKeys())
		}
	}
	return nil
}

// Package crawl drives one supplier sync session: login, the catalog or
// favorites crawl, and the hand-off of every fetched page to the save boundary.
package crawl

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/config"
	"github.com/Sriram-PR/supplier-sync/pkg/extract"
	"github.com/Sriram-PR/supplier-sync/pkg/fetch"
	"github.com/Sriram-PR/supplier-sync/pkg/metrics"
	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/sanitize"
	"github.com/Sriram-PR/supplier-sync/pkg/session"
	"github.com/Sriram-PR/supplier-sync/pkg/storage"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// Options wires an Engine to its session and save boundary
type Options struct {
	SupplierKey string
	Supplier    config.SupplierConfig // Must be validated
	Session     *fetch.Session
	Fetcher     *fetch.Fetcher
	Sink        storage.Sink
	SaveWorkers int
	Progress    Progress // Optional
}

// Engine runs sync requests for one supplier session. Its cookie jar and
// token belong to that session, so an Engine runs one request at a time.
type Engine struct {
	supplierKey string
	cfg         config.SupplierConfig
	sess        *fetch.Session
	fetcher     *fetch.Fetcher
	acquirer    *session.Acquirer
	sink        storage.Sink
	saveWorkers int
	progress    Progress
	baseLog     *logrus.Entry

	errorMarker     *regexp.Regexp
	noResults       *regexp.Regexp
	subNoResults    *regexp.Regexp
	totalResults    *regexp.Regexp
	majCategory     *regexp.Regexp
	subcategoryID   *regexp.Regexp
	totalItems      *regexp.Regexp
	favoritesMap    *regexp.Regexp
	favoriteProduct *regexp.Regexp

	runMu sync.Mutex

	// Per-run state, set by prepare
	req    models.CrawlRequest
	saver  *Saver
	pool   *SavePool
	report *Report
	log    *logrus.Entry
}

const (
	totalResultsPattern    = `totalResults...*?([0-9]+)`
	majCategoryPattern     = `majCategory.:.*?({[^\[]*\[([^\]]*)])`
	subcategoryIDPattern   = `id.:.*?([0-9]+)`
	totalItemsPattern      = `totalItems.*?([0-9]+)`
	favoritesMapPattern    = `map.*?{(.*)}.*?minData`
	favoriteProductPattern = `[0-9]+.:({.*?isFavorite.*?})`
)

// NewEngine compiles the supplier's stop markers and builds the login chain
// on the given session.
func NewEngine(opts Options, log *logrus.Entry) (*Engine, error) {
	if opts.Session == nil || opts.Fetcher == nil || opts.Sink == nil {
		return nil, fmt.Errorf("%w: engine needs a session, fetcher and sink", utils.ErrConfigValidation)
	}
	markers := opts.Supplier.StopMarkers
	compiled, err := utils.CompileRegexPatterns([]string{
		markers.Error, markers.NoResults, markers.SubcategoryNoResults,
		totalResultsPattern, majCategoryPattern, subcategoryIDPattern,
		totalItemsPattern, favoritesMapPattern, favoriteProductPattern,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: supplier %q stop markers: %v", utils.ErrConfigValidation, opts.SupplierKey, err)
	}
	if len(compiled) != 9 {
		return nil, fmt.Errorf("%w: supplier %q has empty stop markers", utils.ErrConfigValidation, opts.SupplierKey)
	}

	progress := opts.Progress
	if progress == nil {
		progress = nopProgress{}
	}
	logger := log.WithFields(logrus.Fields{"component": "crawl", "supplier": opts.SupplierKey})

	return &Engine{
		supplierKey:     opts.SupplierKey,
		cfg:             opts.Supplier,
		sess:            opts.Session,
		fetcher:         opts.Fetcher,
		acquirer:        session.NewAcquirer(opts.Session, opts.SupplierKey, opts.Supplier, log),
		sink:            opts.Sink,
		saveWorkers:     opts.SaveWorkers,
		progress:        progress,
		baseLog:         logger,
		errorMarker:     compiled[0],
		noResults:       compiled[1],
		subNoResults:    compiled[2],
		totalResults:    compiled[3],
		majCategory:     compiled[4],
		subcategoryID:   compiled[5],
		totalItems:      compiled[6],
		favoritesMap:    compiled[7],
		favoriteProduct: compiled[8],
		log:             logger,
	}, nil
}

// Run executes one sync request. It logs in unless req carries a token,
// selects the customer, then runs the favorites or the catalog crawl and
// joins every save before returning. Errors after login are recorded in the
// Report and never change the result: Run returns false only when login failed.
func (e *Engine) Run(ctx context.Context, req models.CrawlRequest) (bool, *Report) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	metrics.SyncsInProgress.Inc()
	defer metrics.SyncsInProgress.Dec()

	e.prepare(ctx, req)
	report := e.report
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	token := req.AuthToken
	if token == nil {
		e.log.Info("Logging in")
		tok, diag, err := e.acquirer.Acquire(ctx, req.Credentials, req.CustomerOverride)
		report.Diagnostics = diag
		if err != nil {
			report.LoginFailed = true
			report.addError(err)
			return false, report
		}
		token = tok
	}

	if !e.saver.Deferred() {
		e.progress.SetPhase(req.RequestID, true, true)
	}

	if err := e.acquirer.SelectCustomer(ctx, token); err != nil {
		e.log.WithError(err).Warn("Selecting customer failed, crawling with the login default")
		report.addError(err)
	}

	var err error
	if req.FavoritesOnly {
		err = e.CrawlFavorites(ctx, token)
	} else {
		err = e.crawlCatalog(ctx, token)
	}
	if err != nil {
		e.log.WithField("error_type", utils.CategorizeError(err)).Errorf("Crawl stopped: %v", err)
		report.addError(err)
	}

	e.log.Debug("Waiting for pending saves")
	for _, saveErr := range e.pool.Wait() {
		report.addSaveError(saveErr)
	}
	if !e.saver.Deferred() {
		e.progress.SetPhase(req.RequestID, false, false)
	}

	e.log.WithFields(logrus.Fields{
		"pages":    report.PagesSaved,
		"products": report.ProductsSaved,
		"blanks":   report.BlankMarkers,
		"errors":   len(report.Errors) + len(report.SaveErrors),
	}).Info("Sync finished")
	return true, report
}

// prepare resets the per-run state for req
func (e *Engine) prepare(ctx context.Context, req models.CrawlRequest) {
	e.req = req
	e.log = e.baseLog.WithField("request_id", req.RequestID)
	deferred := config.GetEffectiveDeferredParse(e.cfg)
	e.saver = NewSaver(e.sink, req, deferred, config.GetEffectiveRules(e.cfg), e.progress, e.log)
	e.pool = NewSavePool(ctx, e.saveWorkers, e.log)
	e.report = &Report{
		RequestID:     req.RequestID,
		SupplierKey:   req.SupplierKey,
		FavoritesOnly: req.FavoritesOnly,
		Deferred:      deferred,
		StartedAt:     time.Now(),
	}
}

// crawlCatalog walks every configured category. The first error stops the
// remaining categories.
func (e *Engine) crawlCatalog(ctx context.Context, token *models.AuthToken) error {
	for category := 1; category <= e.cfg.Categories; category++ {
		if err := e.CrawlCategory(ctx, token, category); err != nil {
			return err
		}
	}
	return nil
}

// submit hands a combined document to the save pool
func (e *Engine) submit(ctx context.Context, label, doc string) error {
	return e.pool.Submit(ctx, label, func(saveCtx context.Context) error {
		n, err := e.saver.Save(saveCtx, label, doc)
		if err != nil {
			return err
		}
		e.report.addSaved(n)
		return nil
	})
}

// submitBlank hands a blank marker to the save pool
func (e *Engine) submitBlank(ctx context.Context, label string) error {
	return e.pool.Submit(ctx, label+" (blank)", func(saveCtx context.Context) error {
		if err := e.saver.Blank(saveCtx, label); err != nil {
			return err
		}
		if e.saver.Deferred() {
			e.report.addBlank()
		}
		return nil
	})
}

// get fetches path with the session token under the retry policy and
// returns the sanitized body.
func (e *Engine) get(ctx context.Context, label, path string, token *models.AuthToken) (string, error) {
	resp, err := e.fetcher.FetchWithRetry(ctx, label, func(ctx context.Context) (*resty.Response, error) {
		return session.Authorize(e.sess.R(), token).SetContext(ctx).Get(path)
	})
	if err != nil {
		return "", err
	}
	return sanitize.CleanJSON(resp.String()), nil
}

// prices fetches the pricing of the items in productList and returns the
// sanitized run of price objects.
func (e *Engine) prices(ctx context.Context, label string, shape extract.Shape, productList string, token *models.AuthToken) (string, error) {
	ids, err := extract.ItemIDs(shape, productList)
	if err != nil {
		e.log.WithField("label", label).Debugf("No item ids for pricing: %v", err)
		ids = []string{}
	}
	body := map[string]any{
		"opCo":          token.OpCo,
		"customerId":    token.CustomerID,
		"favoritesOnly": e.req.FavoritesOnly,
		"products":      ids,
	}
	resp, err := e.fetcher.FetchWithRetry(ctx, label+" prices", func(ctx context.Context) (*resty.Response, error) {
		return session.Authorize(e.sess.R(), token).SetContext(ctx).SetBody(body).Post(e.cfg.Endpoints.Pricing)
	})
	if err != nil {
		return "", err
	}
	return sanitize.CleanJSON(resp.String()), nil
}

// combine builds the {"productList": ..., "prices": [...]} document
func combine(productList, prices string) string {
	return `{"productList": ` + productList + `, "prices":[` + prices + `]}`
}

// expand fills the {name} placeholders of an endpoint template
func expand(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", url.PathEscape(value))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

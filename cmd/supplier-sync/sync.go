package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/crawl"
	"github.com/Sriram-PR/supplier-sync/pkg/jobs"
	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/orchestrate"
	"github.com/Sriram-PR/supplier-sync/pkg/packsize"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// syncOptions are the flags of the sync subcommand
type syncOptions struct {
	ConfigPath    string
	SupplierKeys  []string
	AllSuppliers  bool
	CustomerID    string
	FavoritesOnly bool
	Override      string
	LogLevel      string
	MetricsAddr   string
	PprofAddr     string
}

// runSync handles the sync subcommand
func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	supplierKey := fs.String("supplier", "", "Supplier key from config (single supplier)")
	suppliers := fs.String("suppliers", "", "Comma-separated supplier keys synced in parallel")
	allSuppliers := fs.Bool("all-suppliers", false, "Sync all configured suppliers in parallel")
	customerID := fs.String("customer", "", "Customer the products are synced for (required)")
	favoritesOnly := fs.Bool("favorites", false, "Sync only the customer's favorite lists")
	override := fs.String("override", "", "Optional 'opco-customerid' pair replacing the values found at login")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	metricsAddr := fs.String("metrics", "", "Address for /metrics (defaults to metrics_addr from config)")
	pprofAddr := fs.String("pprof", "", "pprof address, e.g. localhost:6060 (disabled by default)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: supplier-sync sync [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCredentials are read from the username_env/password_env variables of each supplier.\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  supplier-sync sync -supplier sysco -customer 1234\n")
		fmt.Fprintf(os.Stderr, "  supplier-sync sync -suppliers sysco,keany -customer 1234 -favorites\n")
		fmt.Fprintf(os.Stderr, "  supplier-sync sync --all-suppliers -customer 1234\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	opts := syncOptions{
		ConfigPath:    *configFile,
		AllSuppliers:  *allSuppliers,
		CustomerID:    *customerID,
		FavoritesOnly: *favoritesOnly,
		Override:      *override,
		LogLevel:      *logLevel,
		MetricsAddr:   *metricsAddr,
		PprofAddr:     *pprofAddr,
	}
	switch {
	case *allSuppliers:
	case *suppliers != "":
		opts.SupplierKeys = splitKeys(*suppliers)
	case *supplierKey != "":
		opts.SupplierKeys = []string{*supplierKey}
	default:
		fmt.Fprintln(os.Stderr, "Error: one of -supplier, -suppliers, or --all-suppliers is required")
		fs.Usage()
		os.Exit(1)
	}

	os.Exit(doSync(opts, os.Stdout, os.Stderr))
}

// doSync runs one sync per supplier and prints a line per result.
// Returns exit code (0 = every sync completed, 1 = otherwise).
func doSync(opts syncOptions, stdout, stderr io.Writer) int {
	if opts.CustomerID == "" {
		fmt.Fprintln(stderr, "Error: -customer is required")
		return 1
	}

	log := setupLogger(opts.LogLevel, stderr)
	appCfg, err := loadAndValidateConfig(opts.ConfigPath, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer attachLogFile(log, appCfg).Close()
	logAppConfig(appCfg, log)

	keys := opts.SupplierKeys
	if opts.AllSuppliers {
		keys = appCfg.SupplierKeys()
		log.Infof("All suppliers mode: found %d suppliers", len(keys))
	}
	if len(keys) == 0 {
		fmt.Fprintln(stderr, "Error: no suppliers to sync")
		return 1
	}
	if err := orchestrate.ValidateSupplierKeys(appCfg, keys); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signalContext(log)
	defer stop()

	backends, err := openBackends(ctx, appCfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open storage: %v\n", err)
		return 1
	}
	defer backends.Close()

	metricsAddr := opts.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = appCfg.MetricsAddr
	}
	startMetrics(ctx, metricsAddr, log)
	startPprof(opts.PprofAddr, log)

	entry := log.WithField("component", "sync")
	orch, err := orchestrate.NewOrchestrator(appCfg, backends.Store, jobs.NewManager(backends.Status, entry), entry)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	reqs := make([]models.CrawlRequest, 0, len(keys))
	for _, key := range keys {
		reqs = append(reqs, models.CrawlRequest{
			CustomerID:       opts.CustomerID,
			SupplierKey:      key,
			FavoritesOnly:    opts.FavoritesOnly,
			CustomerOverride: opts.Override,
		})
	}

	exitCode := 0
	for _, r := range orch.RunAll(ctx, reqs) {
		fmt.Fprintf(stdout, "%s\t%s\t%s\n", r.RequestID, r.SupplierKey, r.Status)
		if !r.Success() {
			exitCode = 1
		}
	}
	return exitCode
}

// runReplay handles the replay subcommand
func runReplay(args []string) {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	requestID := fs.String("request", "", "Request ID of a deferred-parse sync (required)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: supplier-sync replay [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doReplay(*configFile, *requestID, *logLevel, os.Stdout, os.Stderr))
}

// doReplay parses and saves the stored raw documents of requestID.
// Returns exit code (0 = success, 1 = error).
func doReplay(configPath, requestID, logLevel string, stdout, stderr io.Writer) int {
	if requestID == "" {
		fmt.Fprintln(stderr, "Error: -request is required")
		return 1
	}

	log := setupLogger(logLevel, stderr)
	appCfg, err := loadAndValidateConfig(configPath, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer attachLogFile(log, appCfg).Close()

	ctx, stop := signalContext(log)
	defer stop()

	backends, err := openBackends(ctx, appCfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open storage: %v\n", err)
		return 1
	}
	defer backends.Close()

	rules := func(supplierKey string) packsize.Rules {
		r, err := appCfg.RulesFor("", supplierKey)
		if err != nil {
			log.Warnf("Supplier '%s' not in config, using default pack size rules", supplierKey)
			return packsize.RulesDefault
		}
		return r
	}
	replayer := crawl.NewReplayer(backends.Store, backends.Store, appCfg.SaveBatchSize, rules, log.WithField("component", "replay"))

	res, err := replayer.Process(ctx, requestID)
	writeJSON(stdout, res)
	if err != nil {
		fmt.Fprintf(stderr, "Error: replay %s: %v\n", requestID, err)
		return 1
	}
	return 0
}

// runStatus handles the status subcommand
func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	requestID := fs.String("request", "", "Request ID (required)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: supplier-sync status [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doStatus(*configFile, *requestID, os.Stdout, os.Stderr))
}

// doStatus prints the stored sync record of requestID.
// Returns exit code (0 = found, 1 = error or unknown request).
func doStatus(configPath, requestID string, stdout, stderr io.Writer) int {
	if requestID == "" {
		fmt.Fprintln(stderr, "Error: -request is required")
		return 1
	}

	log := setupLogger("warn", stderr)
	appCfg, err := loadAndValidateConfig(configPath, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	backends, err := openBackends(ctx, appCfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open storage: %v\n", err)
		return 1
	}
	defer backends.Close()

	rec, err := backends.Status.GetSyncRecord(ctx, requestID)
	if errors.Is(err, utils.ErrSyncNotFound) {
		fmt.Fprintf(stderr, "Error: sync '%s' not found\n", requestID)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	writeJSON(stdout, rec)
	return 0
}

// writeJSON prints v as indented JSON
func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logrus.Errorf("encode output: %v", err)
	}
}

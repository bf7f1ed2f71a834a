package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/config"
	applog "github.com/Sriram-PR/supplier-sync/pkg/log"
	"github.com/Sriram-PR/supplier-sync/pkg/metrics"
	"github.com/Sriram-PR/supplier-sync/pkg/storage"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "sync":
		runSync(os.Args[2:])
	case "replay":
		runReplay(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "parse":
		runParse(os.Args[2:])
	case "pack-size":
		runPackSize(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "list-suppliers":
		runListSuppliers(os.Args[2:])
	case "version":
		fmt.Printf("supplier-sync %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `supplier-sync - Supplier catalog and price synchronization

Usage:
  supplier-sync <command> [options]

Commands:
  sync            Log in to suppliers and sync products for a customer
  replay          Parse the raw documents a deferred sync stored
  status          Show the stored status of a sync request
  parse           Parse one combined supplier document into products
  pack-size       Resolve a pack-size string into pack and size
  serve           Start the HTTP API
  mcp-server      Start MCP server for AI tool integration
  validate        Validate configuration file
  list-suppliers  List configured suppliers
  version         Show version info

Run 'supplier-sync <command> -h' for command-specific help.`)
}

// splitKeys parses a comma-separated key list
func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	supplierKey := fs.String("supplier", "", "Supplier key to validate (optional, validates all if empty)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: supplier-sync validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, *supplierKey, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath, supplierKey string, stdout, stderr io.Writer) int {
	appCfg, warnings, err := config.Load(configPath)
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	if supplierKey != "" {
		sup, err := appCfg.Supplier(supplierKey)
		if err != nil {
			fmt.Fprintf(stderr, "Error: supplier '%s' not found in config\n", supplierKey)
			return 1
		}
		fmt.Fprintf(stdout, "OK: Supplier '%s' configuration is valid (%s)\n", supplierKey, sup.BaseURL)
	} else {
		for _, key := range appCfg.SupplierKeys() {
			fmt.Fprintf(stdout, "OK: [%s]\n", key)
		}
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// runListSuppliers handles the list-suppliers subcommand
func runListSuppliers(args []string) {
	fs := flag.NewFlagSet("list-suppliers", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: supplier-sync list-suppliers [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doListSuppliers(*configFile, os.Stdout, os.Stderr))
}

// doListSuppliers lists suppliers and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doListSuppliers(configPath string, stdout, stderr io.Writer) int {
	appCfg, _, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Suppliers in %s:\n\n", configPath)
	for _, key := range appCfg.SupplierKeys() {
		sup := appCfg.Suppliers[key]
		fmt.Fprintf(stdout, "  %s\n", key)
		if sup.Name != "" {
			fmt.Fprintf(stdout, "    Name: %s\n", sup.Name)
		}
		fmt.Fprintf(stdout, "    Base URL: %s\n", sup.BaseURL)
		fmt.Fprintf(stdout, "    Categories: %d (%s)\n", sup.Categories, sup.CrawlMode)
		fmt.Fprintf(stdout, "    Deferred Parse: %t\n", config.GetEffectiveDeferredParse(sup))
		fmt.Fprintf(stdout, "    Pack Size Rules: %s\n", config.GetEffectiveRules(sup))
		fmt.Fprintln(stdout)
	}
	return 0
}

// setupLogger creates a logger writing to out, with the optional rotated
// log file from appCfg attached by attachLogFile.
func setupLogger(logLevelStr string, out io.Writer) *logrus.Logger {
	log := applog.NewLogger(logLevelStr)
	log.SetOutput(out)
	return log
}

// attachLogFile tees the logger into the configured log file
func attachLogFile(log *logrus.Logger, appCfg *config.AppConfig) io.Closer {
	if appCfg.LogFile != "" {
		log.Infof("Writing logs to %s", appCfg.LogFile)
	}
	return applog.AttachFile(log, applog.FileOptions{
		Path:       appCfg.LogFile,
		MaxSizeMB:  appCfg.LogMaxSizeMB,
		MaxBackups: appCfg.LogMaxBackups,
		MaxAgeDays: appCfg.LogMaxAgeDays,
	})
}

// loadAndValidateConfig loads the config file and logs its warnings.
func loadAndValidateConfig(configFile string, log *logrus.Logger) (*config.AppConfig, error) {
	log.Infof("Loading configuration from %s", configFile)
	appCfg, warnings, err := config.Load(configFile)
	for _, w := range warnings {
		log.Warn(w)
	}
	return appCfg, err
}

// signalContext is cancelled on SIGINT/SIGTERM. A second signal, or a
// shutdown taking longer than 30s, exits the process.
func signalContext(log *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal %v, initiating graceful shutdown...", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// openBackends opens the configured stores and starts BadgerDB GC when the
// store supports it.
func openBackends(ctx context.Context, appCfg *config.AppConfig, log *logrus.Logger) (*storage.Backends, error) {
	backends, err := storage.Open(ctx, appCfg, log.WithField("component", "storage"))
	if err != nil {
		return nil, err
	}
	if admin, ok := backends.Store.(storage.StoreAdmin); ok {
		go admin.RunGC(ctx, 10*time.Minute)
	}
	return backends, nil
}

// startMetrics serves /metrics on addr in the background if addr is non-empty.
func startMetrics(ctx context.Context, addr string, log *logrus.Logger) {
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Expose(ctx, addr, log.WithField("component", "metrics")); err != nil {
			log.Errorf("Metrics server error: %v", err)
		}
	}()
}

// startPprof starts the pprof HTTP server if addr is non-empty.
func startPprof(addr string, log *logrus.Logger) {
	if addr != "" {
		go func() {
			log.Infof("Starting pprof server at http://%s/debug/pprof/", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Errorf("pprof server error: %v", err)
			}
		}()
	}
}

// logAppConfig logs the effective global configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Global Config: SaveWorkers:%d, SaveBatchSize:%d, MaxParallelSyncs:%d, StateDir:%s",
		appCfg.SaveWorkers, appCfg.SaveBatchSize, appCfg.MaxParallelSyncs, appCfg.StateDir)
	log.Infof("Global Config Retries: Max:%d, InitialDelay:%v, MaxDelay:%v",
		appCfg.MaxRetries, appCfg.InitialRetryDelay, appCfg.MaxRetryDelay)
	log.Infof("Global Config Rate: RequestsPerSecond:%v, Burst:%d, GlobalSyncTimeout:%v",
		appCfg.RequestsPerSecond, appCfg.RequestBurst, appCfg.GlobalSyncTimeout)
	log.Infof("Global Config Storage: Backend:%s, StatusRedis:%t",
		appCfg.Storage.Backend, appCfg.Status.RedisAddr != "")
	log.Infof("Global Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v",
		appCfg.HTTPClientSettings.Timeout, appCfg.HTTPClientSettings.MaxIdleConns, appCfg.HTTPClientSettings.MaxIdleConnsPerHost,
		appCfg.HTTPClientSettings.IdleConnTimeout, appCfg.HTTPClientSettings.TLSHandshakeTimeout, appCfg.HTTPClientSettings.DialerTimeout)
}

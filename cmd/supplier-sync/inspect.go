package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Sriram-PR/supplier-sync/pkg/config"
	"github.com/Sriram-PR/supplier-sync/pkg/extract"
	"github.com/Sriram-PR/supplier-sync/pkg/packsize"
)

// parseOptions are the flags of the parse subcommand
type parseOptions struct {
	ConfigPath    string // Only read when Supplier is set
	File          string // "-" reads stdin
	Supplier      string
	Rules         string
	Category      string
	CustomerID    string
	FavoritesOnly bool
}

// runParse handles the parse subcommand
func runParse(args []string) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file (used with -supplier)")
	file := fs.String("file", "-", "Combined document to parse ('-' for stdin)")
	supplier := fs.String("supplier", "", "Supplier key; selects the configured pack size rules")
	rules := fs.String("rules", "", "Pack size rules (default, keany, pfg, new_sysco, coastal_sunbelt)")
	category := fs.String("category", "", "Category label stored with each product")
	customerID := fs.String("customer", "", "Customer stored with each product")
	favoritesOnly := fs.Bool("favorites", false, "The document came from a favorites crawl")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: supplier-sync parse [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  supplier-sync parse -file page.json -rules new_sysco\n")
		fmt.Fprintf(os.Stderr, "  cat page.json | supplier-sync parse -supplier sysco -config config.yaml\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	opts := parseOptions{
		ConfigPath:    *configFile,
		File:          *file,
		Supplier:      *supplier,
		Rules:         *rules,
		Category:      *category,
		CustomerID:    *customerID,
		FavoritesOnly: *favoritesOnly,
	}
	os.Exit(doParse(opts, os.Stdin, os.Stdout, os.Stderr))
}

// doParse parses one combined document and prints the products as JSON.
// Returns exit code (0 = success, 1 = error).
func doParse(opts parseOptions, stdin io.Reader, stdout, stderr io.Writer) int {
	rules, err := parseRules(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var data []byte
	if opts.File == "" || opts.File == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(opts.File)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: read document: %v\n", err)
		return 1
	}

	products, err := extract.Parse(string(data), extract.Meta{
		CustomerID:    opts.CustomerID,
		SupplierKey:   opts.Supplier,
		Category:      opts.Category,
		FavoritesOnly: opts.FavoritesOnly,
		Rules:         rules,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	writeJSON(stdout, products)
	return 0
}

// parseRules resolves the rules of a parse: explicit rules need no config,
// a supplier's rules come from the config file.
func parseRules(opts parseOptions) (packsize.Rules, error) {
	if opts.Supplier == "" || opts.Rules != "" {
		return packsize.ParseRules(opts.Rules)
	}
	appCfg, _, err := config.Load(opts.ConfigPath)
	if err != nil {
		return "", err
	}
	return appCfg.RulesFor("", opts.Supplier)
}

// runPackSize handles the pack-size subcommand
func runPackSize(args []string) {
	fs := flag.NewFlagSet("pack-size", flag.ExitOnError)
	uom := fs.String("uom", "", "Unit of measure (e.g., LB, CS)")
	rules := fs.String("rules", "", "Pack size rules (default if empty)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: supplier-sync pack-size [options] <pack size>\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  supplier-sync pack-size '12 X 1'\n")
		fmt.Fprintf(os.Stderr, "  supplier-sync pack-size -rules new_sysco -uom LB '6@5'\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	os.Exit(doPackSize(fs.Arg(0), *uom, *rules, os.Stdout, os.Stderr))
}

// doPackSize resolves one pack-size string and prints the result as JSON.
// Returns exit code (0 = success, 1 = error).
func doPackSize(packSize, uom, rulesName string, stdout, stderr io.Writer) int {
	rules, err := packsize.ParseRules(rulesName)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	writeJSON(stdout, packsize.Resolve(packSize, uom, rules))
	return 0
}

package config

import (
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/Sriram-PR/supplier-sync/pkg/packsize"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// Default supplier protocol values
const (
	DefaultCategories          = 12
	DefaultCategoryLabelPrefix = "SyscoCategory"
	DefaultSessionCookiePrefix = "MSS_STATEFUL"

	DefaultErrorMarker                = `message.:.*Internal Server Error`
	DefaultNoResultsMarker            = `results.:\[\]`
	DefaultSubcategoryNoResultsMarker = `status.:.*no results`
)

// DefaultEndpoints returns the endpoint paths used when a supplier leaves them unset
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Guest:          "/api/v1/auth/guest",
		SSO:            "/api/v1/auth/sso",
		Introspect:     "/api/v1/authn/introspect",
		Authn:          "/api/v1/authn",
		StepUpRedirect: "/login/step-up/redirect",
		SSOAssert:      "/api/v1/auth/sso/assert",
		Discover:       "/app/discover?_auth_type=external",
		Validate:       "/api/v1/auth/validate?authType=AD",
		SelectCustomer: "/api/v1/auth/customer",
		Category:       "/api/v1/catalog/categories/{category}/products?page={page}",
		Subcategory:    "/api/v1/catalog/categories/{category}/subcategories/{subcategory}/products?page={page}",
		Pricing:        "/api/v1/pricing",
		FavoriteLists:  "/api/v1/favorites/lists",
		FavoriteList:   "/api/v1/favorites/lists/{list}?type={type}",
	}
}

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// StateDir
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './sync_state'")
		c.StateDir = "./sync_state"
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 5
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 500 * time.Millisecond
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}

	// InitialRetryDelay > MaxRetryDelay check
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// Rate limit
	if c.RequestsPerSecond < 0 {
		warnings = append(warnings, "requests_per_second cannot be negative, disabling rate limit")
		c.RequestsPerSecond = 0
	}
	if c.RequestsPerSecond > 0 && c.RequestBurst <= 0 {
		c.RequestBurst = 1
	}

	// SaveWorkers
	if c.SaveWorkers <= 0 {
		warnings = append(warnings, "save_workers should be > 0, defaulting to 8")
		c.SaveWorkers = 8
	}

	// SaveBatchSize
	if c.SaveBatchSize <= 0 {
		c.SaveBatchSize = 50
	}

	// MaxParallelSyncs
	if c.MaxParallelSyncs <= 0 {
		warnings = append(warnings, "max_parallel_syncs should be > 0, defaulting to 2")
		c.MaxParallelSyncs = 2
	}

	// GlobalSyncTimeout
	if c.GlobalSyncTimeout < 0 {
		warnings = append(warnings, "global_sync_timeout cannot be negative, disabling timeout")
		c.GlobalSyncTimeout = 0
	}

	// Log rotation
	if c.LogFile != "" {
		if c.LogMaxSizeMB <= 0 {
			c.LogMaxSizeMB = 5
		}
		if c.LogMaxBackups <= 0 {
			c.LogMaxBackups = 3
		}
		if c.LogMaxAgeDays <= 0 {
			c.LogMaxAgeDays = 30
		}
	}

	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}

	c.validateStorage(&warnings)
	c.validateStatus()

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	if len(c.Suppliers) == 0 {
		warnings = append(warnings, "no suppliers configured")
	}

	return warnings, nil // AppConfig validation never fails fatally
}

func (c *AppConfig) validateStorage(warnings *[]string) {
	s := &c.Storage
	switch s.Backend {
	case "":
		s.Backend = StorageBackendBadger
	case StorageBackendBadger, StorageBackendPostgres:
	default:
		*warnings = append(*warnings, fmt.Sprintf("unknown storage backend %q, defaulting to badger", s.Backend))
		s.Backend = StorageBackendBadger
	}
	if s.Backend == StorageBackendPostgres && s.PostgresURL == "" {
		*warnings = append(*warnings, "storage backend is postgres but postgres_url is empty, defaulting to badger")
		s.Backend = StorageBackendBadger
	}
	if s.Schema == "" {
		s.Schema = "supplier_sync"
	}
}

func (c *AppConfig) validateStatus() {
	s := &c.Status
	if s.KeyPrefix == "" {
		s.KeyPrefix = "supplier-sync:"
	}
	if s.TTL <= 0 {
		s.TTL = 24 * time.Hour
	}
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 60 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 4
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// Validate checks SupplierConfig fields and applies defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place.
func (c *SupplierConfig) Validate() (warnings []string, err error) {
	// Required: BaseURL
	if c.BaseURL == "" {
		return nil, fmt.Errorf("%w: supplier needs base_url", utils.ErrConfigValidation)
	}
	if err := checkAbsoluteURL(c.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: base_url: %v", utils.ErrConfigValidation, err)
	}
	if c.LoginBaseURL != "" {
		if err := checkAbsoluteURL(c.LoginBaseURL); err != nil {
			return nil, fmt.Errorf("%w: login_base_url: %v", utils.ErrConfigValidation, err)
		}
	}

	if _, err := packsize.ParseRules(c.PackSizeRules); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrConfigValidation, err)
	}

	switch c.CrawlMode {
	case "":
		c.CrawlMode = CrawlModeCategories
	case CrawlModeCategories, CrawlModeSubcategories:
	default:
		return nil, fmt.Errorf("%w: unknown crawl_mode %q", utils.ErrConfigValidation, c.CrawlMode)
	}

	if c.Categories <= 0 {
		c.Categories = DefaultCategories
	}
	if c.CategoryLabelPrefix == "" {
		c.CategoryLabelPrefix = DefaultCategoryLabelPrefix
	}
	if c.SessionCookiePrefix == "" {
		c.SessionCookiePrefix = DefaultSessionCookiePrefix
	}

	// MaxPagesPerCategory
	if c.MaxPagesPerCategory < 0 {
		warnings = append(warnings, "max_pages_per_category cannot be negative, setting to 0 (unlimited)")
		c.MaxPagesPerCategory = 0
	}

	c.applyEndpointDefaults()

	if c.StopMarkers.Error == "" {
		c.StopMarkers.Error = DefaultErrorMarker
	}
	if c.StopMarkers.NoResults == "" {
		c.StopMarkers.NoResults = DefaultNoResultsMarker
	}
	if c.StopMarkers.SubcategoryNoResults == "" {
		c.StopMarkers.SubcategoryNoResults = DefaultSubcategoryNoResultsMarker
	}
	if _, err := utils.CompileRegexPatterns([]string{
		c.StopMarkers.Error, c.StopMarkers.NoResults, c.StopMarkers.SubcategoryNoResults,
	}); err != nil {
		return nil, err
	}

	if c.UsernameEnv == "" || c.PasswordEnv == "" {
		warnings = append(warnings, "username_env/password_env not set, credentials must be passed per request")
	}

	return warnings, nil
}

func (c *SupplierConfig) applyEndpointDefaults() {
	d := DefaultEndpoints()
	e := &c.Endpoints
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&e.Guest, d.Guest)
	fill(&e.SSO, d.SSO)
	fill(&e.Introspect, d.Introspect)
	fill(&e.Authn, d.Authn)
	fill(&e.StepUpRedirect, d.StepUpRedirect)
	fill(&e.SSOAssert, d.SSOAssert)
	fill(&e.Discover, d.Discover)
	fill(&e.Validate, d.Validate)
	fill(&e.SelectCustomer, d.SelectCustomer)
	fill(&e.Category, d.Category)
	fill(&e.Subcategory, d.Subcategory)
	fill(&e.Pricing, d.Pricing)
	fill(&e.FavoriteLists, d.FavoriteLists)
	fill(&e.FavoriteList, d.FavoriteList)
}

func checkAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", raw)
	}
	return nil
}

// Supplier returns the validated configuration of one supplier
func (c *AppConfig) Supplier(key string) (SupplierConfig, error) {
	sup, ok := c.Suppliers[key]
	if !ok {
		return SupplierConfig{}, fmt.Errorf("%w: %q", utils.ErrSupplierNotFound, key)
	}
	return sup, nil
}

// SupplierKeys returns the configured supplier keys in sorted order
func (c *AppConfig) SupplierKeys() []string {
	keys := make([]string, 0, len(c.Suppliers))
	for k := range c.Suppliers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RulesFor picks the pack size rules for an ad-hoc parse: explicit rules
// first, then the rules configured for supplier, then default.
func (c *AppConfig) RulesFor(explicit, supplier string) (packsize.Rules, error) {
	if explicit != "" {
		rules, err := packsize.ParseRules(explicit)
		if err != nil {
			return "", fmt.Errorf("%w: %v", utils.ErrConfigValidation, err)
		}
		return rules, nil
	}
	if supplier == "" {
		return packsize.RulesDefault, nil
	}
	sup, err := c.Supplier(supplier)
	if err != nil {
		return "", err
	}
	return GetEffectiveRules(sup), nil
}

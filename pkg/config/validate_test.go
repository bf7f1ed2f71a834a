package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Sriram-PR/supplier-sync/pkg/packsize"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := AppConfig{} // Zero value
	warnings, err := cfg.Validate()

	require.NoError(t, err)

	// Check defaults applied
	assert.Equal(t, "./sync_state", cfg.StateDir)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialRetryDelay)
	assert.Equal(t, 30*time.Second, cfg.MaxRetryDelay)
	assert.Equal(t, 8, cfg.SaveWorkers)
	assert.Equal(t, 50, cfg.SaveBatchSize)
	assert.Equal(t, 2, cfg.MaxParallelSyncs)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, StorageBackendBadger, cfg.Storage.Backend)
	assert.Equal(t, "supplier_sync", cfg.Storage.Schema)
	assert.Equal(t, "supplier-sync:", cfg.Status.KeyPrefix)
	assert.Equal(t, 24*time.Hour, cfg.Status.TTL)

	// Check HTTP client defaults
	assert.Equal(t, 60*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 100, cfg.HTTPClientSettings.MaxIdleConns)
	assert.Equal(t, 4, cfg.HTTPClientSettings.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, cfg.HTTPClientSettings.IdleConnTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTPClientSettings.TLSHandshakeTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTPClientSettings.DialerTimeout)

	// Check warnings generated
	assert.True(t, containsWarning(warnings, "state_dir is empty"))
	assert.True(t, containsWarning(warnings, "save_workers should be > 0"))
	assert.True(t, containsWarning(warnings, "max_parallel_syncs should be > 0"))
	assert.True(t, containsWarning(warnings, "no suppliers configured"))
}

func TestAppConfig_Validate_ValidConfig(t *testing.T) {
	cfg := AppConfig{
		StateDir:          "/state",
		MaxRetries:        3,
		InitialRetryDelay: 2 * time.Second,
		MaxRetryDelay:     60 * time.Second,
		RequestsPerSecond: 5,
		SaveWorkers:       4,
		SaveBatchSize:     25,
		MaxParallelSyncs:  1,
		Suppliers:         map[string]SupplierConfig{"sysco": {BaseURL: "https://shop.example.com"}},
	}

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "/state", cfg.StateDir)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.InitialRetryDelay)
	assert.Equal(t, 1, cfg.RequestBurst, "burst defaults to 1 when rate limited")
	assert.Equal(t, 4, cfg.SaveWorkers)
	assert.Equal(t, 25, cfg.SaveBatchSize)
}

func TestAppConfig_Validate_Corrections(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AppConfig
		warning string
		check   func(t *testing.T, c AppConfig)
	}{
		{
			name:    "negative retries",
			cfg:     AppConfig{MaxRetries: -1, InitialRetryDelay: time.Second},
			warning: "max_retries cannot be negative",
			check:   func(t *testing.T, c AppConfig) { assert.Equal(t, 0, c.MaxRetries) },
		},
		{
			name:    "initial delay above max",
			cfg:     AppConfig{MaxRetries: 2, InitialRetryDelay: time.Minute, MaxRetryDelay: time.Second},
			warning: "initial_retry_delay",
			check:   func(t *testing.T, c AppConfig) { assert.Equal(t, time.Second, c.InitialRetryDelay) },
		},
		{
			name:    "negative rate",
			cfg:     AppConfig{RequestsPerSecond: -3},
			warning: "requests_per_second cannot be negative",
			check:   func(t *testing.T, c AppConfig) { assert.Zero(t, c.RequestsPerSecond) },
		},
		{
			name:    "negative global timeout",
			cfg:     AppConfig{GlobalSyncTimeout: -time.Second},
			warning: "global_sync_timeout cannot be negative",
			check:   func(t *testing.T, c AppConfig) { assert.Zero(t, c.GlobalSyncTimeout) },
		},
		{
			name:    "unknown storage backend",
			cfg:     AppConfig{Storage: StorageConfig{Backend: "mongo"}},
			warning: "unknown storage backend",
			check:   func(t *testing.T, c AppConfig) { assert.Equal(t, StorageBackendBadger, c.Storage.Backend) },
		},
		{
			name:    "postgres without url",
			cfg:     AppConfig{Storage: StorageConfig{Backend: StorageBackendPostgres}},
			warning: "postgres_url is empty",
			check:   func(t *testing.T, c AppConfig) { assert.Equal(t, StorageBackendBadger, c.Storage.Backend) },
		},
		{
			name:    "log rotation defaults",
			cfg:     AppConfig{LogFile: "sync.log"},
			warning: "state_dir is empty",
			check: func(t *testing.T, c AppConfig) {
				assert.Equal(t, 5, c.LogMaxSizeMB)
				assert.Equal(t, 3, c.LogMaxBackups)
				assert.Equal(t, 30, c.LogMaxAgeDays)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			warnings, err := cfg.Validate()
			require.NoError(t, err)
			assert.True(t, containsWarning(warnings, tt.warning), "warnings: %v", warnings)
			tt.check(t, cfg)
		})
	}
}

func TestSupplierConfig_Validate_Defaults(t *testing.T) {
	cfg := SupplierConfig{BaseURL: "https://shop.example.com"}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Equal(t, CrawlModeCategories, cfg.CrawlMode)
	assert.Equal(t, 12, cfg.Categories)
	assert.Equal(t, "SyscoCategory", cfg.CategoryLabelPrefix)
	assert.Equal(t, "MSS_STATEFUL", cfg.SessionCookiePrefix)
	assert.Equal(t, DefaultEndpoints(), cfg.Endpoints)
	assert.Equal(t, DefaultErrorMarker, cfg.StopMarkers.Error)
	assert.Equal(t, DefaultNoResultsMarker, cfg.StopMarkers.NoResults)
	assert.Equal(t, DefaultSubcategoryNoResultsMarker, cfg.StopMarkers.SubcategoryNoResults)
	assert.True(t, containsWarning(warnings, "username_env/password_env not set"))
}

func TestSupplierConfig_Validate_KeepsOverrides(t *testing.T) {
	cfg := SupplierConfig{
		BaseURL:     "https://shop.example.com",
		Categories:  3,
		CrawlMode:   CrawlModeSubcategories,
		UsernameEnv: "U",
		PasswordEnv: "P",
		Endpoints:   Endpoints{Pricing: "/v2/prices"},
	}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 3, cfg.Categories)
	assert.Equal(t, CrawlModeSubcategories, cfg.CrawlMode)
	assert.Equal(t, "/v2/prices", cfg.Endpoints.Pricing)
	assert.Equal(t, DefaultEndpoints().Guest, cfg.Endpoints.Guest)
}

func TestSupplierConfig_Validate_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  SupplierConfig
	}{
		{"missing base url", SupplierConfig{}},
		{"relative base url", SupplierConfig{BaseURL: "/shop"}},
		{"relative login url", SupplierConfig{BaseURL: "https://a.example", LoginBaseURL: "login"}},
		{"unknown rules", SupplierConfig{BaseURL: "https://a.example", PackSizeRules: "acme"}},
		{"unknown crawl mode", SupplierConfig{BaseURL: "https://a.example", CrawlMode: "everything"}},
		{"bad marker", SupplierConfig{BaseURL: "https://a.example", StopMarkers: StopMarkers{Error: "(["}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			_, err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, utils.ErrConfigValidation), "got %v", err)
		})
	}
}

func TestSupplier_Lookup(t *testing.T) {
	cfg := AppConfig{Suppliers: map[string]SupplierConfig{
		"sysco": {BaseURL: "https://a.example"},
		"pfg":   {BaseURL: "https://b.example"},
	}}

	sup, err := cfg.Supplier("sysco")
	require.NoError(t, err)
	assert.Equal(t, "https://a.example", sup.BaseURL)

	_, err = cfg.Supplier("nope")
	assert.True(t, errors.Is(err, utils.ErrSupplierNotFound))

	assert.Equal(t, []string{"pfg", "sysco"}, cfg.SupplierKeys())
}

func TestRulesFor(t *testing.T) {
	cfg := AppConfig{Suppliers: map[string]SupplierConfig{
		"keany": {BaseURL: "https://a.example", PackSizeRules: "keany"},
		"plain": {BaseURL: "https://b.example"},
	}}

	tests := []struct {
		name     string
		explicit string
		supplier string
		want     packsize.Rules
		wantErr  error
	}{
		{name: "explicit wins", explicit: "pfg", supplier: "keany", want: packsize.RulesPFG},
		{name: "supplier rules", supplier: "keany", want: packsize.RulesKeany},
		{name: "supplier without rules", supplier: "plain", want: packsize.RulesDefault},
		{name: "nothing given", want: packsize.RulesDefault},
		{name: "unknown explicit", explicit: "acme", wantErr: utils.ErrConfigValidation},
		{name: "unknown supplier", supplier: "acme", wantErr: utils.ErrSupplierNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cfg.RulesFor(tt.explicit, tt.supplier)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

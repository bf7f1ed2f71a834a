package config

import (
	"os"
	"time"

	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/packsize"
)

const (
	CrawlModeCategories    = "categories"
	CrawlModeSubcategories = "subcategories"

	StorageBackendBadger   = "badger"
	StorageBackendPostgres = "postgres"
)

// SupplierConfig holds configuration specific to a single supplier portal
type SupplierConfig struct {
	SupplierID          string      `yaml:"supplier_id,omitempty"`
	Name                string      `yaml:"name,omitempty"`
	BaseURL             string      `yaml:"base_url"`
	LoginBaseURL        string      `yaml:"login_base_url,omitempty"` // Fallback origin for the authn steps
	DeferredParse       *bool       `yaml:"deferred_parse,omitempty"` // Save raw documents for later parsing
	PackSizeRules       string      `yaml:"pack_size_rules,omitempty"`
	Categories          int         `yaml:"categories,omitempty"`
	CategoryLabelPrefix string      `yaml:"category_label_prefix,omitempty"`
	CrawlMode           string      `yaml:"crawl_mode,omitempty"`
	MaxPagesPerCategory int         `yaml:"max_pages_per_category,omitempty"` // 0 = no cap
	SessionCookiePrefix string      `yaml:"session_cookie_prefix,omitempty"`
	UsernameEnv         string      `yaml:"username_env,omitempty"`
	PasswordEnv         string      `yaml:"password_env,omitempty"`
	UserAgent           string      `yaml:"user_agent,omitempty"`
	Endpoints           Endpoints   `yaml:"endpoints,omitempty"`
	StopMarkers         StopMarkers `yaml:"stop_markers,omitempty"`
}

// Endpoints are paths relative to the supplier base URL, except the authn
// group which is resolved against the login origin.
// Placeholders: {category}, {subcategory}, {page}, {list}, {type}.
type Endpoints struct {
	Guest          string `yaml:"guest,omitempty"`
	SSO            string `yaml:"sso,omitempty"`
	Introspect     string `yaml:"introspect,omitempty"`
	Authn          string `yaml:"authn,omitempty"`
	StepUpRedirect string `yaml:"step_up_redirect,omitempty"`
	SSOAssert      string `yaml:"sso_assert,omitempty"`
	Discover       string `yaml:"discover,omitempty"`
	Validate       string `yaml:"validate,omitempty"`
	SelectCustomer string `yaml:"select_customer,omitempty"`
	Category       string `yaml:"category,omitempty"`
	Subcategory    string `yaml:"subcategory,omitempty"`
	Pricing        string `yaml:"pricing,omitempty"`
	FavoriteLists  string `yaml:"favorite_lists,omitempty"`
	FavoriteList   string `yaml:"favorite_list,omitempty"`
}

// StopMarkers are the patterns that end pagination without saving the page
type StopMarkers struct {
	Error                string `yaml:"error,omitempty"`
	NoResults            string `yaml:"no_results,omitempty"`
	SubcategoryNoResults string `yaml:"subcategory_no_results,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	DefaultUserAgent   string                    `yaml:"default_user_agent"`
	StateDir           string                    `yaml:"state_dir"`
	MaxRetries         int                       `yaml:"max_retries,omitempty"`
	InitialRetryDelay  time.Duration             `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay      time.Duration             `yaml:"max_retry_delay,omitempty"`
	RequestsPerSecond  float64                   `yaml:"requests_per_second,omitempty"`
	RequestBurst       int                       `yaml:"request_burst,omitempty"`
	SaveWorkers        int                       `yaml:"save_workers,omitempty"`
	SaveBatchSize      int                       `yaml:"save_batch_size,omitempty"`
	MaxParallelSyncs   int                       `yaml:"max_parallel_syncs,omitempty"`
	GlobalSyncTimeout  time.Duration             `yaml:"global_sync_timeout,omitempty"`
	LogFile            string                    `yaml:"log_file,omitempty"`
	LogMaxSizeMB       int                       `yaml:"log_max_size_mb,omitempty"`
	LogMaxBackups      int                       `yaml:"log_max_backups,omitempty"`
	LogMaxAgeDays      int                       `yaml:"log_max_age_days,omitempty"`
	ListenAddr         string                    `yaml:"listen_addr,omitempty"`
	MetricsAddr        string                    `yaml:"metrics_addr,omitempty"`
	Storage            StorageConfig             `yaml:"storage,omitempty"`
	Status             StatusConfig              `yaml:"status,omitempty"`
	HTTPClientSettings HTTPClientConfig          `yaml:"http_client_settings,omitempty"`
	SupplierDefaults   SupplierConfig            `yaml:"supplier_defaults,omitempty"`
	Suppliers          map[string]SupplierConfig `yaml:"suppliers"`
}

// StorageConfig selects the save boundary implementation
type StorageConfig struct {
	Backend     string `yaml:"backend,omitempty"` // badger | postgres
	PostgresURL string `yaml:"postgres_url,omitempty"`
	Schema      string `yaml:"schema,omitempty"`
}

// StatusConfig configures the shared sync status store. Without a Redis
// address, status is kept in the local BadgerDB.
type StatusConfig struct {
	RedisAddr     string        `yaml:"redis_addr,omitempty"`
	RedisPassword string        `yaml:"redis_password,omitempty"`
	RedisDB       int           `yaml:"redis_db,omitempty"`
	KeyPrefix     string        `yaml:"key_prefix,omitempty"`
	TTL           time.Duration `yaml:"ttl,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
	ProxyURL              string        `yaml:"proxy_url,omitempty"`               // Optional outbound proxy
}

// GetEffectiveDeferredParse reports whether documents are saved raw for later parsing
func GetEffectiveDeferredParse(supCfg SupplierConfig) bool {
	if supCfg.DeferredParse != nil {
		return *supCfg.DeferredParse
	}
	return false
}

// GetEffectiveUserAgent returns the supplier user agent, falling back to the global one
func GetEffectiveUserAgent(supCfg SupplierConfig, appCfg AppConfig) string {
	if supCfg.UserAgent != "" {
		return supCfg.UserAgent
	}
	return appCfg.DefaultUserAgent
}

// GetEffectiveRules maps the configured pack size rules, falling back to default
func GetEffectiveRules(supCfg SupplierConfig) packsize.Rules {
	rules, err := packsize.ParseRules(supCfg.PackSizeRules)
	if err != nil {
		return packsize.RulesDefault
	}
	return rules
}

// CredentialsFromEnv reads the supplier login from the configured environment variables
func CredentialsFromEnv(supCfg SupplierConfig) models.Credentials {
	var creds models.Credentials
	if supCfg.UsernameEnv != "" {
		creds.Username = os.Getenv(supCfg.UsernameEnv)
	}
	if supCfg.PasswordEnv != "" {
		creds.Password = os.Getenv(supCfg.PasswordEnv)
	}
	return creds
}

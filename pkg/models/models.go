package models

import "time"

// AuthToken holds the session values every supplier request after login needs.
// It is created once per session and shared read-only afterwards.
type AuthToken struct {
	CSRFToken           string `json:"csrf_token"`
	CustomerID          string `json:"customer_id"`
	OpCo                string `json:"opco"`
	StatefulCookieName  string `json:"stateful_cookie_name,omitempty"`
	StatefulCookieValue string `json:"stateful_cookie_value,omitempty"`
}

// Credentials are the supplier portal login
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"-"`
}

// CrawlRequest is the immutable input to one sync session
type CrawlRequest struct {
	RequestID     string `json:"request_id"`
	CustomerID    string `json:"customer_id"`
	SupplierKey   string `json:"supplier"`
	FavoritesOnly bool   `json:"favorites_only"`
	// CustomerOverride is an optional "opco-customerid" pair that replaces the
	// values resolved during login.
	CustomerOverride string      `json:"customer_override,omitempty"`
	Credentials      Credentials `json:"-"`
	AuthToken        *AuthToken  `json:"-"` // Pre-made token; skips login when set
}

// RawPage is one fetched supplier response before sanitization
type RawPage struct {
	Body        string
	HasHeaders  bool
	Category    int
	Subcategory string
	Page        int
}

// ResponseHeader tags every document saved in deferred-parse mode
type ResponseHeader struct {
	CustomerID          string       `json:"customer_id"`
	SupplierKey         string       `json:"supplier"`
	FavoritesOnly       bool         `json:"favorites_only"`
	FullSyncOnly        bool         `json:"full_sync_only"`
	SubstituteItemsOnly bool         `json:"substitute_items_only"`
	ResponseType        ResponseType `json:"response_type"`
	Category            string       `json:"category"`
}

// NewResponseHeader builds the header for a document saved on behalf of req
func NewResponseHeader(req CrawlRequest, responseType ResponseType, category string) ResponseHeader {
	return ResponseHeader{
		CustomerID:    req.CustomerID,
		SupplierKey:   req.SupplierKey,
		FavoritesOnly: req.FavoritesOnly,
		FullSyncOnly:  !req.FavoritesOnly,
		ResponseType:  responseType,
		Category:      category,
	}
}

// RawDocument is a combined product+price document (or a blank marker) stored
// for later parsing.
type RawDocument struct {
	RequestID string         `json:"request_id"`
	Header    ResponseHeader `json:"header"`
	Data      string         `json:"data"`
	Seq       uint64         `json:"seq"`
	SavedAt   time.Time      `json:"saved_at"`
}

// IsBlank reports whether the document is a "no data, try again later" marker
func (d RawDocument) IsBlank() bool {
	return d.Header.ResponseType == ResponseTypeBlank
}

// ParsedProduct is the canonical product record produced by the extractor
type ParsedProduct struct {
	SupplierKey      string  `json:"supplier"`
	ItemNumber       string  `json:"item_number"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	Brand            string  `json:"brand"`
	MinRequiredUnits string  `json:"min_required_units"`
	MaxAllowedUnits  string  `json:"max_allowed_units"`
	UnitsRemaining   string  `json:"units_remaining"`
	Price            string  `json:"price"` // "0" for remote-stock and phased-out items
	PriceInPounds    bool    `json:"price_in_pounds"`
	PackSize         string  `json:"pack_size"` // "pack@size"
	ProductWeight    string  `json:"product_weight"`
	SizeUOM          string  `json:"size_uom"`
	UnitOfMeasure    string  `json:"unit_of_measure"`
	Category         string  `json:"category"`
	Favorite         bool    `json:"favorite"`
	PackQuantity     float64 `json:"pack_quantity"`
	SizeQuantity     float64 `json:"size_quantity"`
}

// ProductBatch is the unit handed to the save boundary in immediate-parse mode
type ProductBatch struct {
	RequestID   string          `json:"request_id"`
	CustomerID  string          `json:"customer_id"`
	SupplierKey string          `json:"supplier"`
	Category    string          `json:"category"`
	Products    []ParsedProduct `json:"products"`
}

// SyncRecord is the persisted state of one sync request, read by status queries
type SyncRecord struct {
	RequestID     string     `json:"request_id"`
	CustomerID    string     `json:"customer_id"`
	SupplierKey   string     `json:"supplier"`
	FavoritesOnly bool       `json:"favorites_only"`
	Status        SyncStatus `json:"status"`
	Querying      bool       `json:"querying"` // Set while the supplier is queried in immediate mode
	Parsing       bool       `json:"parsing"`  // Set while products are parsed in immediate mode
	PagesSaved    int        `json:"pages_saved"`
	ProductsSaved int        `json:"products_saved"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

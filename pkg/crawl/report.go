package crawl

import (
	"strings"
	"sync"
	"time"

	"github.com/Sriram-PR/supplier-sync/pkg/session"
)

// Report summarizes one Engine.Run
type Report struct {
	RequestID      string              `json:"request_id"`
	SupplierKey    string              `json:"supplier"`
	FavoritesOnly  bool                `json:"favorites_only"`
	Deferred       bool                `json:"deferred_parse"`
	LoginFailed    bool                `json:"login_failed"`
	Diagnostics    session.Diagnostics `json:"diagnostics"`
	CategoryTotals map[int]int         `json:"category_totals,omitempty"` // Probe totals per category
	PagesSaved     int                 `json:"pages_saved"`
	ProductsSaved  int                 `json:"products_saved"`
	BlankMarkers   int                 `json:"blank_markers"`
	Errors         []string            `json:"errors,omitempty"`
	SaveErrors     []string            `json:"save_errors,omitempty"`
	StartedAt      time.Time           `json:"started_at"`
	Duration       time.Duration       `json:"duration"`

	mu sync.Mutex
}

func (r *Report) setCategoryTotal(category, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CategoryTotals == nil {
		r.CategoryTotals = make(map[int]int)
	}
	r.CategoryTotals[category] = total
}

func (r *Report) addSaved(products int) {
	r.mu.Lock()
	r.PagesSaved++
	r.ProductsSaved += products
	r.mu.Unlock()
}

func (r *Report) addBlank() {
	r.mu.Lock()
	r.BlankMarkers++
	r.mu.Unlock()
}

func (r *Report) addError(err error) {
	r.mu.Lock()
	r.Errors = append(r.Errors, err.Error())
	r.mu.Unlock()
}

func (r *Report) addSaveError(err error) {
	r.mu.Lock()
	r.SaveErrors = append(r.SaveErrors, err.Error())
	r.mu.Unlock()
}

// ErrorMessage joins crawl and save errors for the sync record; "" when clean
func (r *Report) ErrorMessage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := append(append([]string{}, r.Errors...), r.SaveErrors...)
	return strings.Join(all, "; ")
}

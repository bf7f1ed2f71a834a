package crawl

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/config"
	"github.com/Sriram-PR/supplier-sync/pkg/extract"
	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// pageScope is one paginated listing: a category, or a subcategory of it
type pageScope struct {
	category    int
	subcategory string
	noResults   *regexp.Regexp
}

func (s pageScope) path(e *Engine, page int) string {
	vars := map[string]string{"category": itoa(s.category), "page": itoa(page)}
	if s.subcategory == "" {
		return expand(e.cfg.Endpoints.Category, vars)
	}
	vars["subcategory"] = s.subcategory
	return expand(e.cfg.Endpoints.Subcategory, vars)
}

func (s pageScope) label(e *Engine, page int) string {
	label := fmt.Sprintf("%s%d, page %d", e.cfg.CategoryLabelPrefix, s.category, page)
	if s.subcategory != "" {
		label += ", subCategory " + s.subcategory
	}
	return label
}

// CrawlCategory probes page 0 of category for its total, then saves every
// page until a stop marker. In subcategory mode the probe document drives
// CrawlSubcategories instead.
func (e *Engine) CrawlCategory(ctx context.Context, token *models.AuthToken, category int) error {
	log := e.log.WithField("category", category)
	scope := pageScope{category: category, noResults: e.noResults}

	probe, err := e.get(ctx, scope.label(e, 0)+" probe", scope.path(e, 0), token)
	if err != nil {
		return fmt.Errorf("category %d probe: %w", category, err)
	}
	total := 0
	if raw, ok := utils.Submatch(e.totalResults, probe, 1); ok {
		total, _ = strconv.Atoi(raw)
	}
	e.report.setCategoryTotal(category, total)
	log.WithField("total_results", total).Info("Crawling category")

	if e.cfg.CrawlMode == config.CrawlModeSubcategories {
		return e.CrawlSubcategories(ctx, token, category, probe)
	}
	return e.paginate(ctx, token, scope)
}

// CrawlSubcategories crawls every subcategory listed in the majCategory block
// of a category's probe document.
func (e *Engine) CrawlSubcategories(ctx context.Context, token *models.AuthToken, category int, doc string) error {
	block, _ := utils.Submatch(e.majCategory, doc, 2)
	ids := utils.AllSubmatches(e.subcategoryID, block, 1)
	e.log.WithFields(logrus.Fields{"category": category, "subcategories": len(ids)}).Info("Crawling subcategories")

	for _, id := range ids {
		scope := pageScope{category: category, subcategory: id, noResults: e.subNoResults}
		if err := e.paginate(ctx, token, scope); err != nil {
			return err
		}
	}
	return nil
}

// paginate saves pages of scope from page 0 until the error or no-results
// marker matches, the page cap is hit or a page carries no JSON at all.
// The page with the marker is not saved.
func (e *Engine) paginate(ctx context.Context, token *models.AuthToken, scope pageScope) error {
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := e.log.WithFields(logrus.Fields{"category": scope.category, "page": page})
		if scope.subcategory != "" {
			log = log.WithField("subcategory", scope.subcategory)
		}
		if limit := e.cfg.MaxPagesPerCategory; limit > 0 && page >= limit {
			log.Infof("Reached max_pages_per_category (%d)", limit)
			return nil
		}

		label := scope.label(e, page)
		body, err := e.get(ctx, label, scope.path(e, page), token)
		if err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		if utils.MatchesAny([]*regexp.Regexp{e.errorMarker, scope.noResults}, body) {
			log.Debug("Stop marker found, category done")
			return nil
		}
		if body == "" {
			log.Warn("Page carried no JSON, stopping category")
			return nil
		}

		prices, err := e.prices(ctx, label, extract.ShapeCatalog, body, token)
		if err != nil {
			return fmt.Errorf("%s prices: %w", label, err)
		}
		if err := e.submit(ctx, label, combine(body, prices)); err != nil {
			return err
		}
		log.Debug("Page submitted for saving")
	}
}

package crawl

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/extract"
	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// FavoritesLabel tags every document of a favorites crawl
const FavoritesLabel = "Favorites"

// favoriteList is one row of the favorite lists response
type favoriteList struct {
	ID       any   `json:"id"`
	Type     any   `json:"type"`
	IsShared *bool `json:"is_shared"`
}

// CrawlFavorites saves one document per non-empty, non-shared favorite list.
// Any failure stops the crawl and leaves a single blank marker in place of
// the remaining lists; it is never returned to the caller.
func (e *Engine) CrawlFavorites(ctx context.Context, token *models.AuthToken) error {
	if err := e.crawlFavorites(ctx, token); err != nil {
		e.log.WithField("error_type", utils.CategorizeError(err)).Errorf("Favorites crawl failed: %v", err)
		e.report.addError(err)
		if err := e.submitBlank(context.WithoutCancel(ctx), FavoritesLabel); err != nil {
			e.log.Errorf("Could not submit favorites blank marker: %v", err)
		}
	}
	return nil
}

func (e *Engine) crawlFavorites(ctx context.Context, token *models.AuthToken) error {
	body, err := e.get(ctx, "favorite lists", e.cfg.Endpoints.FavoriteLists, token)
	if err != nil {
		return fmt.Errorf("favorite lists: %w", err)
	}
	lists, err := decodeFavoriteLists(body)
	if err != nil {
		return err
	}
	e.log.WithField("lists", len(lists)).Info("Crawling favorites")

	for _, list := range lists {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, listType := scalar(list.ID), scalar(list.Type)
		log := e.log.WithFields(logrus.Fields{"list": id, "type": listType})
		if list.IsShared != nil && *list.IsShared {
			log.Debug("Skipping shared favorite list")
			continue
		}

		label := "favorite list " + id
		path := expand(e.cfg.Endpoints.FavoriteList, map[string]string{"list": id, "type": listType})
		listBody, err := e.get(ctx, label, path, token)
		if err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		if total, _ := utils.Submatch(e.totalItems, listBody, 1); total == "0" {
			log.Debug("Favorite list is empty")
			continue
		}

		mapData, _ := utils.Submatch(e.favoritesMap, listBody, 1)
		items := "[" + strings.Join(utils.AllSubmatches(e.favoriteProduct, mapData, 1), ",") + "]"

		prices, err := e.prices(ctx, label, extract.ShapeFavorites, items, token)
		if err != nil {
			return fmt.Errorf("%s prices: %w", label, err)
		}
		if err := e.submit(ctx, FavoritesLabel, combine(items, prices)); err != nil {
			return err
		}
		log.Debug("Favorite list submitted for saving")
	}
	return nil
}

// decodeFavoriteLists reads the run of list objects the supplier returns
func decodeFavoriteLists(body string) ([]favoriteList, error) {
	dec := json.NewDecoder(strings.NewReader(`{"results":[` + body + `]}`))
	dec.UseNumber()
	var wrapper struct {
		Results []favoriteList `json:"results"`
	}
	if err := dec.Decode(&wrapper); err != nil {
		return nil, utils.WrapErrorf(utils.ErrParsing, "decode favorite lists JSON: %v", err)
	}
	return wrapper.Results, nil
}

func scalar(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

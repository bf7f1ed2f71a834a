// Package api serves sync control, parsing and pack-size resolution over HTTP.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/config"
	"github.com/Sriram-PR/supplier-sync/pkg/extract"
	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/orchestrate"
	"github.com/Sriram-PR/supplier-sync/pkg/packsize"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	appCfg  *config.AppConfig
	orch    *orchestrate.Orchestrator
	version string
	log     *logrus.Entry
}

// NewHandler creates a new HTTP handler
func NewHandler(appCfg *config.AppConfig, orch *orchestrate.Orchestrator, version string, log *logrus.Entry) *Handler {
	return &Handler{
		appCfg:  appCfg,
		orch:    orch,
		version: version,
		log:     log.WithField("component", "api"),
	}
}

// syncRequest is the body of POST /api/v1/syncs
type syncRequest struct {
	Supplier         string            `json:"supplier" binding:"required"`
	CustomerID       string            `json:"customer_id" binding:"required"`
	FavoritesOnly    bool              `json:"favorites_only"`
	CustomerOverride string            `json:"customer_override"`
	Username         string            `json:"username"`
	Password         string            `json:"password"`
	Token            *models.AuthToken `json:"token"`
}

type parseRequest struct {
	Data          string `json:"data" binding:"required"`
	Supplier      string `json:"supplier"`
	CustomerID    string `json:"customer_id"`
	Category      string `json:"category"`
	FavoritesOnly bool   `json:"favorites_only"`
	Rules         string `json:"rules"`
}

type packSizeRequest struct {
	PackSize string `json:"pack_size" binding:"required"`
	UOM      string `json:"uom"`
	Rules    string `json:"rules"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	active := 0
	for _, rec := range h.orch.Jobs().List() {
		if !rec.Status.IsTerminal() {
			active++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"service":      "supplier-sync",
		"version":      h.version,
		"active_syncs": active,
	})
}

// StartSync registers a sync and runs it in the background. An equivalent
// sync that is still active is returned with 200 instead of 202.
func (h *Handler) StartSync(c *gin.Context) {
	var body syncRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := models.CrawlRequest{
		CustomerID:       body.CustomerID,
		SupplierKey:      body.Supplier,
		FavoritesOnly:    body.FavoritesOnly,
		CustomerOverride: body.CustomerOverride,
		Credentials:      models.Credentials{Username: body.Username, Password: body.Password},
		AuthToken:        body.Token,
	}
	rec, created, err := h.orch.Start(req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !created {
		c.JSON(http.StatusOK, gin.H{"created": false, "sync": rec})
		return
	}
	h.log.WithFields(logrus.Fields{"request_id": rec.RequestID, "supplier": rec.SupplierKey}).Info("Sync accepted")
	c.JSON(http.StatusAccepted, gin.H{"created": true, "sync": rec})
}

// GetSync returns the record of one sync
func (h *Handler) GetSync(c *gin.Context) {
	rec, err := h.orch.Jobs().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// CancelSync cancels a pending or running sync
func (h *Handler) CancelSync(c *gin.Context) {
	id := c.Param("id")
	if h.orch.Jobs().Cancel(id) {
		c.JSON(http.StatusOK, gin.H{"request_id": id, "cancelled": true})
		return
	}
	rec, err := h.orch.Jobs().Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusConflict, gin.H{"error": "sync already finished", "status": rec.Status})
}

// ParseResponse turns one stored combined document into products
func (h *Handler) ParseResponse(c *gin.Context) {
	var body parseRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rules, err := h.appCfg.RulesFor(body.Rules, body.Supplier)
	if err != nil {
		h.writeError(c, err)
		return
	}
	products, err := extract.Parse(body.Data, extract.Meta{
		CustomerID:    body.CustomerID,
		SupplierKey:   body.Supplier,
		Category:      body.Category,
		FavoritesOnly: body.FavoritesOnly,
		Rules:         rules,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(products), "products": products})
}

// ResolvePackSize splits a pack-size string into pack and size
func (h *Handler) ResolvePackSize(c *gin.Context) {
	var body packSizeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rules, err := packsize.ParseRules(body.Rules)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, packsize.Resolve(body.PackSize, body.UOM, rules))
}

// writeError maps sentinel errors onto status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, utils.ErrSupplierNotFound), errors.Is(err, utils.ErrSyncNotFound):
		status = http.StatusNotFound
	case errors.Is(err, utils.ErrConfigValidation):
		status = http.StatusBadRequest
	case errors.Is(err, utils.ErrParsing):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.log.WithField("category", utils.CategorizeError(err)).Errorf("Request failed: %v", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

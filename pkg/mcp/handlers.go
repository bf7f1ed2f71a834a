package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Sriram-PR/supplier-sync/pkg/config"
	"github.com/Sriram-PR/supplier-sync/pkg/extract"
	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/packsize"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// handleListSuppliers handles the list_suppliers tool
func (s *Server) handleListSuppliers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	running := make(map[string]int)
	for _, rec := range s.orch.Jobs().List() {
		if !rec.Status.IsTerminal() {
			running[rec.SupplierKey]++
		}
	}

	keys := s.cfg.AppConfig.SupplierKeys()
	suppliers := make([]map[string]interface{}, 0, len(keys))
	for _, key := range keys {
		sup := s.cfg.AppConfig.Suppliers[key]
		info := map[string]interface{}{
			"key":             key,
			"name":            sup.Name,
			"base_url":        sup.BaseURL,
			"categories":      sup.Categories,
			"crawl_mode":      sup.CrawlMode,
			"deferred_parse":  config.GetEffectiveDeferredParse(sup),
			"pack_size_rules": config.GetEffectiveRules(sup).String(),
		}
		if n := running[key]; n > 0 {
			info["active_syncs"] = n
		}
		suppliers = append(suppliers, info)
	}

	result := map[string]interface{}{
		"suppliers":       suppliers,
		"config_path":     s.cfg.ConfigPath,
		"total_suppliers": len(suppliers),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleStartSync handles the start_sync tool
func (s *Server) handleStartSync(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	supplier := request.GetString("supplier", "")
	if supplier == "" {
		return mcp.NewToolResultError("supplier parameter is required"), nil
	}
	customerID := request.GetString("customer_id", "")
	if customerID == "" {
		return mcp.NewToolResultError("customer_id parameter is required"), nil
	}

	rec, created, err := s.orch.Start(models.CrawlRequest{
		CustomerID:       customerID,
		SupplierKey:      supplier,
		FavoritesOnly:    request.GetBool("favorites_only", false),
		CustomerOverride: request.GetString("customer_override", ""),
	})
	if err != nil {
		if errors.Is(err, utils.ErrSupplierNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("supplier '%s' not found. Available suppliers: %v", supplier, s.cfg.AppConfig.SupplierKeys())), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to start sync: %v", err)), nil
	}

	result := map[string]interface{}{
		"status":     "started",
		"request_id": rec.RequestID,
		"supplier":   supplier,
		"message":    "Sync started in background. Use get_sync_status to check progress.",
	}
	if !created {
		result["status"] = "already_running"
		result["message"] = "A sync is already in progress for this supplier and customer"
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetSyncStatus handles the get_sync_status tool
func (s *Server) handleGetSyncStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requestID := request.GetString("request_id", "")
	if requestID == "" {
		return mcp.NewToolResultError("request_id parameter is required"), nil
	}

	rec, err := s.orch.Jobs().Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, utils.ErrSyncNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("sync not found: %s", requestID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to read sync status: %v", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(recordMap(rec))), nil
}

// handleCancelSync handles the cancel_sync tool
func (s *Server) handleCancelSync(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requestID := request.GetString("request_id", "")
	if requestID == "" {
		return mcp.NewToolResultError("request_id parameter is required"), nil
	}

	if !s.orch.Jobs().Cancel(requestID) {
		rec, err := s.orch.Jobs().Get(ctx, requestID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("sync not found: %s", requestID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("sync %s already finished with status %s", requestID, rec.Status)), nil
	}

	s.log.WithField("request_id", requestID).Info("Sync cancelled via MCP")
	result := map[string]interface{}{
		"request_id": requestID,
		"status":     models.SyncStatusCancelled,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleParseResponse handles the parse_response tool
func (s *Server) handleParseResponse(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data := request.GetString("data", "")
	if data == "" {
		return mcp.NewToolResultError("data parameter is required"), nil
	}
	supplier := request.GetString("supplier", "")

	rules, err := s.cfg.AppConfig.RulesFor(request.GetString("rules", ""), supplier)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	products, err := extract.Parse(data, extract.Meta{
		SupplierKey:   supplier,
		Category:      request.GetString("category", ""),
		FavoritesOnly: request.GetBool("favorites_only", false),
		Rules:         rules,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse document: %v", err)), nil
	}

	result := map[string]interface{}{
		"count":    len(products),
		"rules":    rules.String(),
		"products": products,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleResolvePackSize handles the resolve_pack_size tool
func (s *Server) handleResolvePackSize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	packSize := request.GetString("pack_size", "")
	if packSize == "" {
		return mcp.NewToolResultError("pack_size parameter is required"), nil
	}
	rules, err := packsize.ParseRules(request.GetString("rules", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := packsize.Resolve(packSize, request.GetString("uom", ""), rules)
	result := map[string]interface{}{
		"pack_size":     packSize,
		"pack":          res.Pack,
		"size":          res.Size,
		"pack_quantity": res.PackQuantity,
		"size_quantity": res.SizeQuantity,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// recordMap flattens a sync record for tool output
func recordMap(rec *models.SyncRecord) map[string]interface{} {
	out := map[string]interface{}{
		"request_id":     rec.RequestID,
		"supplier":       rec.SupplierKey,
		"customer_id":    rec.CustomerID,
		"favorites_only": rec.FavoritesOnly,
		"status":         rec.Status,
		"querying":       rec.Querying,
		"parsing":        rec.Parsing,
		"pages_saved":    rec.PagesSaved,
		"products_saved": rec.ProductsSaved,
		"started_at":     rec.StartedAt,
	}
	if rec.CompletedAt != nil {
		out["completed_at"] = *rec.CompletedAt
		out["duration"] = rec.CompletedAt.Sub(rec.StartedAt).String()
	}
	if rec.ErrorMessage != "" {
		out["error"] = rec.ErrorMessage
	}
	return out
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}

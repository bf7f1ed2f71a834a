package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/supplier-sync/pkg/config"
	"github.com/Sriram-PR/supplier-sync/pkg/jobs"
	"github.com/Sriram-PR/supplier-sync/pkg/models"
	"github.com/Sriram-PR/supplier-sync/pkg/orchestrate"
)

type nopSink struct{}

func (nopSink) SaveRaw(context.Context, models.RawDocument) error              { return nil }
func (nopSink) SaveParsed(context.Context, models.ProductBatch) error          { return nil }
func (nopSink) SaveBlank(context.Context, string, models.ResponseHeader) error { return nil }

func newTestServer(t *testing.T, supplierURL string) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg, _, err := config.Parse([]byte(fmt.Sprintf(`
state_dir: %s
max_retries: 0
suppliers:
  sysco:
    name: Sysco
    base_url: %s
    categories: 1
    deferred_parse: true
  keany:
    base_url: %s
    pack_size_rules: keany
`, t.TempDir(), supplierURL, supplierURL)))
	require.NoError(t, err)

	orch, err := orchestrate.NewOrchestrator(cfg, nopSink{}, jobs.NewManager(nil, logrus.NewEntry(logger)), logrus.NewEntry(logger))
	require.NoError(t, err)

	s, err := NewServer(&ServerConfig{AppConfig: cfg, Orchestrator: orch, ConfigPath: "test.yaml", Transport: "stdio", Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, res.IsError, resultText(t, res))
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	return out
}

func emptySupplier(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results":[]}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(&ServerConfig{})
	assert.Error(t, err)

	_, err = NewServer(&ServerConfig{AppConfig: &config.AppConfig{}})
	assert.Error(t, err)
}

func TestHandleListSuppliers(t *testing.T) {
	s := newTestServer(t, emptySupplier(t).URL)

	res, err := s.handleListSuppliers(context.Background(), callRequest(nil))
	require.NoError(t, err)
	out := resultJSON(t, res)

	assert.EqualValues(t, 2, out["total_suppliers"])
	assert.Equal(t, "test.yaml", out["config_path"])
	suppliers := out["suppliers"].([]any)
	first := suppliers[0].(map[string]any)
	second := suppliers[1].(map[string]any)
	assert.Equal(t, "keany", first["key"], "suppliers are sorted")
	assert.Equal(t, "keany", first["pack_size_rules"])
	assert.Equal(t, "sysco", second["key"])
	assert.Equal(t, "Sysco", second["name"])
	assert.Equal(t, true, second["deferred_parse"])
}

func TestSyncTools(t *testing.T) {
	s := newTestServer(t, emptySupplier(t).URL)
	ctx := context.Background()

	t.Run("missing arguments", func(t *testing.T) {
		res, err := s.handleStartSync(ctx, callRequest(map[string]any{"supplier": "sysco"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(t, res), "customer_id")
	})

	t.Run("unknown supplier", func(t *testing.T) {
		res, err := s.handleStartSync(ctx, callRequest(map[string]any{"supplier": "acme", "customer_id": "c1"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(t, res), "Available suppliers")
	})

	t.Run("unknown request", func(t *testing.T) {
		res, err := s.handleGetSyncStatus(ctx, callRequest(map[string]any{"request_id": "nope"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)

		res, err = s.handleCancelSync(ctx, callRequest(map[string]any{"request_id": "nope"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})
}

func TestCancelSync(t *testing.T) {
	release := make(chan struct{})
	supplier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(supplier.Close)
	t.Cleanup(func() { close(release) })

	s := newTestServer(t, supplier.URL)
	ctx := context.Background()

	// No credentials in the environment: the sync blocks in the login chain.
	res, err := s.handleStartSync(ctx, callRequest(map[string]any{"supplier": "sysco", "customer_id": "c1"}))
	require.NoError(t, err)
	started := resultJSON(t, res)
	assert.Equal(t, "started", started["status"])
	id := started["request_id"].(string)

	res, err = s.handleStartSync(ctx, callRequest(map[string]any{"supplier": "sysco", "customer_id": "c1"}))
	require.NoError(t, err)
	assert.Equal(t, "already_running", resultJSON(t, res)["status"])

	res, err = s.handleCancelSync(ctx, callRequest(map[string]any{"request_id": id}))
	require.NoError(t, err)
	assert.Equal(t, string(models.SyncStatusCancelled), resultJSON(t, res)["status"])

	s.orch.Wait()
	res, err = s.handleGetSyncStatus(ctx, callRequest(map[string]any{"request_id": id}))
	require.NoError(t, err)
	status := resultJSON(t, res)
	assert.Equal(t, string(models.SyncStatusCancelled), status["status"])
	assert.Contains(t, status, "completed_at")

	res, err = s.handleCancelSync(ctx, callRequest(map[string]any{"request_id": id}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "already finished")
}

func TestHandleParseResponse(t *testing.T) {
	s := newTestServer(t, emptySupplier(t).URL)
	doc := `{"productList":{"results":[{"materialId":"77","description":"Oil","brand":"B",` +
		`"packSize":{"pack":"6","size":"1 GAL","unitOfMeasure":"CS"},"stockType":"","isPhasedOut":false}]},` +
		`"prices":[{"supc":"77","price":"31.40"}]}`

	tests := []struct {
		name      string
		args      map[string]any
		wantRules string
		wantErr   bool
	}{
		{name: "default rules", args: map[string]any{"data": doc}, wantRules: "default"},
		{name: "supplier rules", args: map[string]any{"data": doc, "supplier": "keany"}, wantRules: "keany"},
		{name: "explicit rules win", args: map[string]any{"data": doc, "supplier": "keany", "rules": "pfg"}, wantRules: "pfg"},
		{name: "bad rules", args: map[string]any{"data": doc, "rules": "acme"}, wantErr: true},
		{name: "bad document", args: map[string]any{"data": "{"}, wantErr: true},
		{name: "missing data", args: map[string]any{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.handleParseResponse(context.Background(), callRequest(tt.args))
			require.NoError(t, err)
			if tt.wantErr {
				assert.True(t, res.IsError)
				return
			}
			out := resultJSON(t, res)
			assert.Equal(t, tt.wantRules, out["rules"])
			assert.EqualValues(t, 1, out["count"])
			product := out["products"].([]any)[0].(map[string]any)
			assert.Equal(t, "77", product["item_number"])
			assert.Equal(t, "31.40", product["price"])
		})
	}
}

func TestHandleResolvePackSize(t *testing.T) {
	s := newTestServer(t, emptySupplier(t).URL)

	res, err := s.handleResolvePackSize(context.Background(), callRequest(map[string]any{"pack_size": "6@5", "uom": "LB", "rules": "new_sysco"}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, "6", out["pack"])
	assert.Equal(t, "5", out["size"])
	assert.EqualValues(t, 6, out["pack_quantity"])
	assert.EqualValues(t, 5, out["size_quantity"])

	res, err = s.handleResolvePackSize(context.Background(), callRequest(map[string]any{"pack_size": "6@5", "rules": "acme"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleResolvePackSize(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

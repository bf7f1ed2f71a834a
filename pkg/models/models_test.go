package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResponseHeader(t *testing.T) {
	req := CrawlRequest{RequestID: "r1", CustomerID: "42", SupplierKey: "sysco", FavoritesOnly: true}

	h := NewResponseHeader(req, ResponseTypeBlank, "Favorites")
	assert.Equal(t, "42", h.CustomerID)
	assert.Equal(t, "sysco", h.SupplierKey)
	assert.True(t, h.FavoritesOnly)
	assert.False(t, h.FullSyncOnly)
	assert.False(t, h.SubstituteItemsOnly)
	assert.Equal(t, ResponseTypeBlank, h.ResponseType)
	assert.Equal(t, "Favorites", h.Category)

	req.FavoritesOnly = false
	assert.True(t, NewResponseHeader(req, ResponseTypeJSON, "x").FullSyncOnly)
}

func TestRawDocument_IsBlank(t *testing.T) {
	assert.True(t, RawDocument{Header: ResponseHeader{ResponseType: ResponseTypeBlank}}.IsBlank())
	assert.False(t, RawDocument{Header: ResponseHeader{ResponseType: ResponseTypeJSON}}.IsBlank())
}

func TestCredentials_PasswordNotSerialized(t *testing.T) {
	data, err := json.Marshal(Credentials{Username: "chef", Password: "hunter2"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
}

func TestSyncRecord_OmitEmpty(t *testing.T) {
	data, err := json.Marshal(SyncRecord{RequestID: "r1", Status: SyncStatusRunning})
	require.NoError(t, err)

	raw := string(data)
	assert.NotContains(t, raw, "completed_at")
	assert.NotContains(t, raw, "error_message")
	assert.Contains(t, raw, `"status":"running"`)
}

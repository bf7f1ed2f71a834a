package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncStatus_String(t *testing.T) {
	tests := []struct {
		status SyncStatus
		want   string
	}{
		{SyncStatusUnset, "unset"},
		{SyncStatusPending, "pending"},
		{SyncStatusRunning, "running"},
		{SyncStatusCompleted, "completed"},
		{SyncStatusFailed, "failed"},
		{SyncStatusCancelled, "cancelled"},
		{SyncStatusLoginFailed, "login_failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestSyncStatus_IsValid(t *testing.T) {
	tests := []struct {
		status SyncStatus
		want   bool
	}{
		{SyncStatusPending, true},
		{SyncStatusRunning, true},
		{SyncStatusCompleted, true},
		{SyncStatusLoginFailed, true},
		{SyncStatusUnset, false},
		{SyncStatus("arbitrary"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.IsValid(), "SyncStatus(%q).IsValid()", string(tt.status))
	}
}

func TestSyncStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status SyncStatus
		want   bool
	}{
		{SyncStatusPending, false},
		{SyncStatusRunning, false},
		{SyncStatusCompleted, true},
		{SyncStatusFailed, true},
		{SyncStatusCancelled, true},
		{SyncStatusLoginFailed, true},
		{SyncStatusUnset, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.IsTerminal(), "SyncStatus(%q).IsTerminal()", string(tt.status))
	}
}

func TestResponseType(t *testing.T) {
	assert.Equal(t, "JSON", ResponseTypeJSON.String())
	assert.Equal(t, "Blank", ResponseTypeBlank.String())
	assert.Equal(t, "unset", ResponseType("").String())
	assert.True(t, ResponseTypeJSON.IsValid())
	assert.False(t, ResponseType("XML").IsValid())
}

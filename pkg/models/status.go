package models

// SyncStatus represents the lifecycle state of a sync request
type SyncStatus string

const (
	SyncStatusUnset       SyncStatus = ""             // Zero value = unset/unknown
	SyncStatusPending     SyncStatus = "pending"      // Request accepted, session not started
	SyncStatusRunning     SyncStatus = "running"      // Login or crawl in progress
	SyncStatusCompleted   SyncStatus = "completed"    // Crawl finished and all saves joined
	SyncStatusFailed      SyncStatus = "failed"       // Setup failed before the crawl could start
	SyncStatusCancelled   SyncStatus = "cancelled"    // Cancelled by the caller
	SyncStatusLoginFailed SyncStatus = "login_failed" // Credential submission rejected
)

// String implements fmt.Stringer for logging
func (s SyncStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusPending, SyncStatusRunning, SyncStatusCompleted,
		SyncStatusFailed, SyncStatusCancelled, SyncStatusLoginFailed:
		return true
	}
	return false
}

// IsTerminal returns true once a request can no longer change state
func (s SyncStatus) IsTerminal() bool {
	switch s {
	case SyncStatusCompleted, SyncStatusFailed, SyncStatusCancelled, SyncStatusLoginFailed:
		return true
	}
	return false
}

// ResponseType tags a stored supplier response
type ResponseType string

const (
	ResponseTypeJSON  ResponseType = "JSON"  // Combined product+price document
	ResponseTypeBlank ResponseType = "Blank" // Attempted, no data
)

// String implements fmt.Stringer for logging
func (r ResponseType) String() string {
	if r == "" {
		return "unset"
	}
	return string(r)
}

// IsValid returns true if the response type is known
func (r ResponseType) IsValid() bool {
	return r == ResponseTypeJSON || r == ResponseTypeBlank
}

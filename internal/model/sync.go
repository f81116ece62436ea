package model

// SyncCode is a distinguished, non-error outcome of a sync attempt. The
// caller selects the remediation (retry vs reconnect vs nothing) from it.
type SyncCode string

// Sync outcome codes.
const (
	// SyncCodeAlreadySynced means the window produced data but every row was
	// already present. Informational, not an error.
	SyncCodeAlreadySynced SyncCode = "ALREADY_SYNCED"
	// SyncCodeSCAExceeded means the provider requires fresh strong customer
	// authentication. The connection stays active; the user must reconnect.
	SyncCodeSCAExceeded SyncCode = "SCA_EXCEEDED"
	// SyncCodeTokenExpired means token refresh failed permanently and the
	// connection was moved to expired.
	SyncCodeTokenExpired SyncCode = "TOKEN_EXPIRED"
)

// SyncResult summarizes one sync pass over a single connection.
type SyncResult struct {
	Code        SyncCode
	Synced      int
	Skipped     int
	Categorized int
}

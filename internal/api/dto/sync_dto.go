package dto

// SyncQuery captures the sync trigger parameters.
type SyncQuery struct {
	Limit  int
	DryRun bool
}

// Sync limits.
const (
	DefaultSyncLimit = 10
	MaxSyncLimit     = 100
)

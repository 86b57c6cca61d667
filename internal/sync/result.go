package sync

import "github.com/schaermu/sandboxsync/internal/changelog"

// Sync results as recorded in metrics
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultDryRun  = "dry_run"
)

// Result describes one checkout run
type Result struct {
	Dir    string
	DryRun bool
	// Reused and Pending are only filled in for dry runs.
	Reused  bool
	Pending bool
	Changes []changelog.Record
}

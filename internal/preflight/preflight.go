// Package preflight verifies the environment before the daemon starts
// accepting jobs: required binaries, directory permissions, free disk space,
// and service reachability.
package preflight

import (
	"context"

	"meetscribe/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	results = append(results, CheckDirectoryAccess("Upload directory", cfg.Paths.UploadDir))
	results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))
	results = append(results, CheckDiskSpace("Work disk space", cfg.Paths.WorkDir, minFreeBytes))

	if cfg.Azure.SpeechKey != "" {
		results = append(results, CheckAzureSpeech(ctx, cfg))
	}
	if cfg.Azure.TextAnalyticsKey != "" {
		results = append(results, CheckTextAnalytics(ctx, cfg))
	}

	return results
}

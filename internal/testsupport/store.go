package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"meetscribe/internal/config"
	"meetscribe/internal/jobs"
	"meetscribe/internal/logging"
)

// MustOpenStore opens a jobs.Store for tests.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.NewStore(cfg.JobStorePath(), logging.NewNop())
	if err != nil {
		t.Fatalf("jobs.NewStore: %v", err)
	}
	return store
}

// WriteAudioFile writes a throwaway audio file under the upload directory and
// returns its path.
func WriteAudioFile(t testing.TB, cfg *config.Config, name string) string {
	t.Helper()

	path := filepath.Join(cfg.Paths.UploadDir, name)
	if err := os.WriteFile(path, []byte("fake audio payload"), 0o644); err != nil {
		t.Fatalf("write audio file: %v", err)
	}
	return path
}

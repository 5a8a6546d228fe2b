package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"meetscribe/internal/config"
	"meetscribe/internal/deps"
)

// minFreeBytes is the least free space the work directory needs before the
// daemon accepts uploads.
const minFreeBytes = 1 << 30 // 1 GiB

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDiskSpace verifies the filesystem holding path has at least minBytes
// free.
func CheckDiskSpace(name, path string, minBytes uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%.1f GiB free, need %.1f GiB)",
			path, gib(free), gib(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%.1f GiB free)", path, gib(free))}
}

// CheckAzureSpeech verifies the Speech key against the token endpoint.
func CheckAzureSpeech(ctx context.Context, cfg *config.Config) Result {
	const name = "Azure Speech"

	base := strings.TrimRight(strings.TrimSpace(cfg.Azure.SpeechEndpoint), "/")
	if base == "" {
		region := strings.TrimSpace(cfg.Azure.SpeechRegion)
		if region == "" {
			return Result{Name: name, Detail: "missing region"}
		}
		base = fmt.Sprintf("https://%s.api.cognitive.microsoft.com", region)
	}
	return checkCognitiveAuth(ctx, name, base+"/sts/v1.0/issueToken", cfg.Azure.SpeechKey)
}

// CheckTextAnalytics verifies the Text Analytics key.
func CheckTextAnalytics(ctx context.Context, cfg *config.Config) Result {
	const name = "Azure Text Analytics"

	base := strings.TrimRight(strings.TrimSpace(cfg.Azure.TextAnalyticsEndpoint), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing endpoint"}
	}
	return checkCognitiveAuth(ctx, name, base+"/text/analytics/v3.1/languages", cfg.Azure.TextAnalyticsKey)
}

func checkCognitiveAuth(ctx context.Context, name, url, key string) Result {
	if strings.TrimSpace(key) == "" {
		return Result{Name: name, Detail: "missing api key"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodPost, url, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%v)", err)}
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", strings.TrimSpace(key))

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%v)", err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	case http.StatusOK, http.StatusBadRequest:
		// A 400 still proves the key was accepted; the probe body is empty.
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%d)", resp.StatusCode)}
	}
}

// CheckSystemDeps evaluates the binaries the pipeline shells out to. Both the
// daemon and the CLI status command use this to avoid duplicating the
// requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     deps.ResolvePath(cfg.FFmpegBinary()),
			Description: "Required for audio normalization",
		},
		{
			Name:        "FFprobe",
			Command:     deps.ResolvePath(cfg.FFprobeBinary()),
			Description: "Required for media inspection",
		},
	}
	if cfg.Processing.Method == "whisper_local" {
		binary := cfg.Whisper.Binary
		if binary == "" {
			binary = "whisper"
		}
		requirements = append(requirements, deps.Requirement{
			Name:        "Whisper",
			Command:     deps.ResolvePath(binary),
			Description: "Required for local transcription",
		})
	}
	return deps.CheckBinaries(requirements)
}

func gib(bytes uint64) float64 {
	return float64(bytes) / float64(1<<30)
}

package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"meetscribe/internal/logging"
	"meetscribe/internal/services"
)

// Valid normalization targets. Out-of-range requests fall back to safe
// defaults instead of failing the job.
var validSampleRates = map[int]struct{}{
	8000:  {},
	16000: {},
	22050: {},
	44100: {},
	48000: {},
}

var validBitRates = map[string]struct{}{
	"16k":  {},
	"24k":  {},
	"32k":  {},
	"48k":  {},
	"64k":  {},
	"96k":  {},
	"128k": {},
	"192k": {},
	"256k": {},
}

const (
	fallbackSampleRate = 16000
	fallbackBitRate    = "32k"

	noiseReductionFilter = "highpass=f=200,lowpass=f=3000,afftdn=nf=-25"
)

// NormalizeParams describes the target format for audio normalization.
type NormalizeParams struct {
	SampleRate     int
	Channels       int
	BitRate        string
	NoiseReduction bool
}

// Clamped returns a copy of the params with every field forced into the
// supported range.
func (p NormalizeParams) Clamped() NormalizeParams {
	out := p
	if _, ok := validSampleRates[out.SampleRate]; !ok {
		out.SampleRate = fallbackSampleRate
	}
	if out.Channels < 1 {
		out.Channels = 1
	}
	if out.Channels > 2 {
		out.Channels = 2
	}
	if _, ok := validBitRates[strings.ToLower(strings.TrimSpace(out.BitRate))]; !ok {
		out.BitRate = fallbackBitRate
	} else {
		out.BitRate = strings.ToLower(strings.TrimSpace(out.BitRate))
	}
	return out
}

// Normalizer converts arbitrary meeting recordings into the WAV format the
// transcription backends expect.
type Normalizer struct {
	ffmpegBinary  string
	workDir       string
	logger        *slog.Logger
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewNormalizer creates a normalizer writing intermediate files to workDir.
func NewNormalizer(ffmpegBinary, workDir string, logger *slog.Logger) *Normalizer {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &Normalizer{
		ffmpegBinary: ffmpegBinary,
		workDir:      workDir,
		logger:       logging.NewComponentLogger(logger, "normalizer"),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (n *Normalizer) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	n.commandRunner = runner
}

// Normalize converts source into a WAV file with the clamped target params
// and returns the path of the produced file. The caller owns the returned
// file and is expected to delete it when the pipeline run ends.
func (n *Normalizer) Normalize(ctx context.Context, source string, params NormalizeParams) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", services.Wrap(services.ErrValidation, "preprocessing", "normalize", "source path required", nil)
	}
	if _, err := os.Stat(source); err != nil {
		return "", services.Wrap(services.ErrValidation, "preprocessing", "normalize", "source not readable", err)
	}
	if err := os.MkdirAll(n.workDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "preprocessing", "normalize", "create work directory", err)
	}

	clamped := params.Clamped()
	if clamped != params {
		n.logger.Debug("clamped normalization params",
			logging.Int("sample_rate", clamped.SampleRate),
			logging.Int("channels", clamped.Channels),
			logging.String("bit_rate", clamped.BitRate))
	}

	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	dest := filepath.Join(n.workDir, base+"_normalized.wav")

	args := []string{"-i", source,
		"-ar", fmt.Sprintf("%d", clamped.SampleRate),
		"-ac", fmt.Sprintf("%d", clamped.Channels),
		"-b:a", clamped.BitRate,
	}
	if clamped.NoiseReduction {
		args = append(args, "-af", noiseReductionFilter)
	}
	args = append(args, "-y", dest)

	if err := n.run(ctx, n.ffmpegBinary, args...); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "preprocessing", "ffmpeg", "normalize audio", err)
	}
	return dest, nil
}

func (n *Normalizer) run(ctx context.Context, name string, args ...string) error {
	if n.commandRunner != nil {
		return n.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"meetscribe/internal/logging"
	"meetscribe/internal/services"
	"meetscribe/internal/transcript"
)

// LocalOptions tunes a local whisper CLI run.
type LocalOptions struct {
	Model       string
	Language    string // ISO 639-1
	Temperature float64
	Prompt      string
}

// Local runs the whisper CLI against a normalized audio file and parses its
// JSON output.
type Local struct {
	binary        string
	workDir       string
	logger        *slog.Logger
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewLocal creates a local whisper runner writing output files to workDir.
func NewLocal(binary, workDir string, logger *slog.Logger) *Local {
	if binary == "" {
		binary = "whisper"
	}
	return &Local{
		binary:  binary,
		workDir: workDir,
		logger:  logging.NewComponentLogger(logger, "whisper-local"),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (l *Local) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	l.commandRunner = runner
}

type localOutput struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe runs the CLI and returns the parsed result. onProgress receives
// coarse percentages and may be nil.
func (l *Local) Transcribe(ctx context.Context, path string, opts LocalOptions, onProgress func(int)) (transcript.Result, error) {
	if onProgress == nil {
		onProgress = func(int) {}
	}
	outputDir := l.workDir
	if outputDir == "" {
		outputDir = filepath.Dir(path)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return transcript.Result{}, services.Wrap(services.ErrTransient, "transcription", "whisper", "ensure output dir", err)
	}

	args := []string{path,
		"--task", "transcribe",
		"--output_format", "json",
		"--output_dir", outputDir,
		"--temperature", strconv.FormatFloat(opts.Temperature, 'f', -1, 64),
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if opts.Prompt != "" {
		args = append(args, "--initial_prompt", opts.Prompt)
	}
	onProgress(10)

	if err := l.run(ctx, l.binary, args...); err != nil {
		return transcript.Result{}, services.Wrap(services.ErrExternalTool, "transcription", "whisper", "run cli", err)
	}
	onProgress(85)

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	outputPath := filepath.Join(outputDir, base+".json")
	data, err := os.ReadFile(outputPath)
	if err != nil {
		return transcript.Result{}, services.Wrap(services.ErrExternalTool, "transcription", "whisper", "read output", err)
	}
	defer os.Remove(outputPath)

	var output localOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return transcript.Result{}, services.Wrap(services.ErrExternalTool, "transcription", "whisper", "parse output", err)
	}

	result := transcript.Result{
		Text:        strings.TrimSpace(output.Text),
		Language:    output.Language,
		Diarization: transcript.DiarizationNone,
	}
	for _, seg := range output.Segments {
		result.Segments = append(result.Segments, transcript.Segment{
			Text:  strings.TrimSpace(seg.Text),
			Start: seg.Start,
			End:   seg.End,
		})
	}
	if len(result.Segments) > 0 {
		result.Duration = result.Segments[len(result.Segments)-1].End
	}
	onProgress(95)
	return result, nil
}

func (l *Local) run(ctx context.Context, name string, args ...string) error {
	if l.commandRunner != nil {
		return l.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"meetscribe/internal/services"
)

// Info summarizes the audio properties of a recording.
type Info struct {
	Format     string  `json:"format,omitempty"`
	Codec      string  `json:"codec,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
	BitRate    int     `json:"bit_rate,omitempty"`
}

// Prober inspects media files with ffprobe.
type Prober struct {
	ffprobeBinary string
	outputRunner  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewProber creates a prober using the given ffprobe binary name.
func NewProber(ffprobeBinary string) *Prober {
	if ffprobeBinary == "" {
		ffprobeBinary = "ffprobe"
	}
	return &Prober{ffprobeBinary: ffprobeBinary}
}

// WithOutputRunner sets a custom command runner (for testing).
func (p *Prober) WithOutputRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	p.outputRunner = runner
}

// Probe returns audio properties of the given file.
func (p *Prober) Probe(ctx context.Context, path string) (Info, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	output, err := p.run(ctx, p.ffprobeBinary, args...)
	if err != nil {
		return Info{}, services.Wrap(services.ErrExternalTool, "preprocessing", "ffprobe", "inspect audio", err)
	}
	return parseProbeOutput(output)
}

func (p *Prober) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if p.outputRunner != nil {
		return p.outputRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return output, nil
}

type probePayload struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

func parseProbeOutput(output []byte) (Info, error) {
	var payload probePayload
	if err := json.Unmarshal(output, &payload); err != nil {
		return Info{}, services.Wrap(services.ErrExternalTool, "preprocessing", "ffprobe", "parse output", err)
	}

	info := Info{Format: payload.Format.FormatName}
	if payload.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil {
			info.Duration = dur
		}
	}
	if payload.Format.BitRate != "" {
		if rate, err := strconv.Atoi(payload.Format.BitRate); err == nil {
			info.BitRate = rate
		}
	}
	for _, stream := range payload.Streams {
		if !strings.EqualFold(stream.CodecType, "audio") {
			continue
		}
		info.Codec = stream.CodecName
		info.Channels = stream.Channels
		if stream.SampleRate != "" {
			if rate, err := strconv.Atoi(stream.SampleRate); err == nil {
				info.SampleRate = rate
			}
		}
		break
	}
	return info, nil
}

// Package export renders a finished job as a downloadable document.
package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"meetscribe/internal/jobs"
	"meetscribe/internal/services"
)

// Supported output formats.
const (
	FormatText = "txt"
	FormatSRT  = "srt"
	FormatJSON = "json"
)

// Formats returns the supported formats in presentation order.
func Formats() []string {
	return []string{FormatText, FormatSRT, FormatJSON}
}

// ContentType returns the MIME type served for a format.
func ContentType(format string) string {
	switch format {
	case FormatJSON:
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Render produces the document for a completed job. Jobs without a result
// cannot be exported.
func Render(job *jobs.Job, format string) ([]byte, error) {
	if job == nil || job.Result == nil {
		return nil, services.Wrap(services.ErrValidation, "", "export", "render",
			fmt.Errorf("job has no result to export"))
	}
	switch format {
	case FormatText:
		return renderText(job), nil
	case FormatSRT:
		return renderSRT(job), nil
	case FormatJSON:
		return json.MarshalIndent(job.Result, "", "  ")
	default:
		return nil, services.Wrap(services.ErrValidation, "", "export", "render",
			fmt.Errorf("unsupported format %q", format))
	}
}

func renderText(job *jobs.Job) []byte {
	var b strings.Builder
	result := job.Result

	fmt.Fprintf(&b, "Transcript: %s\n", job.Filename)
	if result.Transcript.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", result.Transcript.Language)
	}
	if result.Transcript.Duration > 0 {
		fmt.Fprintf(&b, "Duration: %s\n", formatClock(result.Transcript.Duration))
	}
	if result.Transcript.SpeakerCount > 0 {
		fmt.Fprintf(&b, "Speakers: %s\n", strings.Join(result.Transcript.Speakers, ", "))
	}
	b.WriteString("\n")

	if len(result.Transcript.Segments) == 0 {
		b.WriteString(result.Transcript.Text)
		b.WriteString("\n")
	}
	for _, seg := range result.Transcript.Segments {
		if seg.Speaker != "" {
			fmt.Fprintf(&b, "[%s] %s: %s\n", formatClock(seg.Start), seg.Speaker, seg.Text)
		} else {
			fmt.Fprintf(&b, "[%s] %s\n", formatClock(seg.Start), seg.Text)
		}
	}

	if analysis := result.Analysis; analysis != nil {
		if analysis.Summary != "" {
			b.WriteString("\nSummary\n-------\n")
			b.WriteString(analysis.Summary)
			b.WriteString("\n")
		}
		if len(analysis.ActionItems) > 0 {
			b.WriteString("\nAction Items\n------------\n")
			for _, item := range analysis.ActionItems {
				fmt.Fprintf(&b, "- %s\n", item)
			}
		}
		if len(analysis.Topics) > 0 {
			b.WriteString("\nTopics\n------\n")
			for _, topic := range analysis.Topics {
				fmt.Fprintf(&b, "- %s\n", topic)
			}
		}
		if analysis.Sentiment.Overall != "" {
			fmt.Fprintf(&b, "\nOverall sentiment: %s\n", analysis.Sentiment.Overall)
		}
	}
	return []byte(b.String())
}

func renderSRT(job *jobs.Job) []byte {
	var b strings.Builder
	for i, seg := range job.Result.Transcript.Segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatSRTTime(seg.Start), formatSRTTime(seg.End))
		if seg.Speaker != "" {
			fmt.Fprintf(&b, "%s: %s\n\n", seg.Speaker, seg.Text)
		} else {
			fmt.Fprintf(&b, "%s\n\n", seg.Text)
		}
	}
	return []byte(b.String())
}

// formatSRTTime renders seconds as the SRT timestamp form HH:MM:SS,mmm.
func formatSRTTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds * float64(time.Second))
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds * float64(time.Second))
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

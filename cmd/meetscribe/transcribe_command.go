package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"meetscribe/internal/apiclient"
	"meetscribe/internal/jobs"
	"meetscribe/internal/stages"
)

const pollInterval = 2 * time.Second

type transcribeFlags struct {
	method        string
	language      string
	candidates    []string
	noDiarization bool
	noNLP         bool
	maxSpeakers   int
	customTerms   []string
	whisperModel  string
	wait          bool
	format        string
	output        string
}

func (f *transcribeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.method, "method", "", "Transcription method (azure, whisper_local, whisper_api, huggingface)")
	cmd.Flags().StringVarP(&f.language, "language", "l", "", "Expected audio language (BCP-47 tag)")
	cmd.Flags().StringSliceVar(&f.candidates, "language-candidates", nil, "Candidate languages for auto-detection")
	cmd.Flags().BoolVar(&f.noDiarization, "no-diarization", false, "Disable speaker diarization")
	cmd.Flags().BoolVar(&f.noNLP, "no-nlp", false, "Disable transcript analysis")
	cmd.Flags().IntVar(&f.maxSpeakers, "max-speakers", 0, "Expected maximum number of speakers")
	cmd.Flags().StringSliceVar(&f.customTerms, "custom-terms", nil, "Domain terms to bias recognition toward")
	cmd.Flags().StringVar(&f.whisperModel, "whisper-model", "", "Whisper model override")
	cmd.Flags().BoolVarP(&f.wait, "wait", "w", false, "Block until the job finishes")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Export format once complete (txt, srt, json); implies --wait")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Write the export to this file instead of stdout")
}

func (f *transcribeFlags) fields() map[string]string {
	fields := map[string]string{}
	if f.method != "" {
		fields["method"] = f.method
	}
	if f.language != "" {
		fields["language"] = f.language
	}
	if len(f.candidates) > 0 {
		fields["language_candidates"] = strings.Join(f.candidates, ",")
	}
	if f.noDiarization {
		fields["diarization"] = "false"
	}
	if f.noNLP {
		fields["nlp"] = "false"
	}
	if f.maxSpeakers > 0 {
		fields["max_speakers"] = strconv.Itoa(f.maxSpeakers)
	}
	if len(f.customTerms) > 0 {
		fields["custom_terms"] = strings.Join(f.customTerms, ",")
	}
	if f.whisperModel != "" {
		fields["whisper_model"] = f.whisperModel
	}
	return fields
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	flags := &transcribeFlags{}

	cmd := &cobra.Command{
		Use:   "transcribe FILE",
		Short: "Submit an audio file for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			result, err := client.Submit(cmd.Context(), args[0], flags.fields())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job %s accepted\n", result.JobID)

			if !flags.wait && flags.format == "" {
				fmt.Fprintf(out, "Track progress with `meetscribe jobs show %s`\n", result.JobID)
				return nil
			}

			job, err := waitForJob(cmd.Context(), client, result.JobID, out)
			if err != nil {
				return err
			}
			if job.Status != jobs.StatusCompleted {
				return fmt.Errorf("job %s failed: %s", job.ID, job.Error)
			}
			if flags.format == "" {
				fmt.Fprintf(out, "Job %s completed\n", job.ID)
				return nil
			}
			return exportJob(cmd.Context(), client, job.ID, flags.format, flags.output, out)
		},
	}

	flags.register(cmd)
	return cmd
}

// waitForJob polls until the job reaches a terminal state, echoing stage
// transitions as they happen.
func waitForJob(ctx context.Context, client *apiclient.Client, id string, out io.Writer) (*jobs.Job, error) {
	reported := map[string]string{}
	for {
		job, err := client.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, name := range stages.Names() {
			state, ok := job.Stages[name]
			if !ok {
				continue
			}
			line := fmt.Sprintf("%s %s", state.Status, state.Detail)
			if reported[name] == line {
				continue
			}
			reported[name] = line
			fmt.Fprintf(out, "  %-15s %-8s %3d%%  %s\n", name, state.Status, state.Progress, state.Detail)
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func exportJob(ctx context.Context, client *apiclient.Client, id, format, output string, out io.Writer) error {
	payload, err := client.Export(ctx, id, format)
	if err != nil {
		return err
	}
	if output == "" {
		_, err = out.Write(payload)
		return err
	}
	if err := os.WriteFile(output, payload, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(out, "Wrote %s\n", output)
	return nil
}

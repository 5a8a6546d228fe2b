package analysis

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"meetscribe/internal/logging"
	"meetscribe/internal/transcript"
)

// TextClient is the remote text analytics surface the analyzer needs. A nil
// client degrades the remote sub-tasks to their fallbacks.
type TextClient interface {
	KeyPhrases(ctx context.Context, text string) ([]string, error)
	Sentiment(ctx context.Context, docs []string) ([]SentimentScore, error)
	Entities(ctx context.Context, text string) ([]Entity, error)
}

// Config tunes the analyzer.
type Config struct {
	SummarySentences   int
	SentimentThreshold float64
	MaxKeyPhrases      int
	MaxActionItems     int
	Workers            int
}

// ProgressFunc receives sub-task transitions: status is "running", "done",
// or "failed".
type ProgressFunc func(task, status string)

// Analyzer runs the NLP sub-tasks over a transcript. Remote sub-tasks go
// through the TextClient; the rest are local heuristics. Sub-tasks run
// concurrently under a bounded worker pool and failures never abort the
// whole analysis.
type Analyzer struct {
	client TextClient
	cfg    Config
	logger *slog.Logger
	sem    *semaphore.Weighted
}

// NewAnalyzer creates an analyzer. client may be nil.
func NewAnalyzer(client TextClient, cfg Config, logger *slog.Logger) *Analyzer {
	if cfg.Workers <= 0 {
		cfg.Workers = len(Tasks())
	}
	if cfg.SummarySentences <= 0 {
		cfg.SummarySentences = 3
	}
	if cfg.MaxKeyPhrases <= 0 {
		cfg.MaxKeyPhrases = 20
	}
	if cfg.MaxActionItems <= 0 {
		cfg.MaxActionItems = 10
	}
	return &Analyzer{
		client: client,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "analyzer"),
		sem:    semaphore.NewWeighted(int64(cfg.Workers)),
	}
}

// Analyze runs all sub-tasks and returns the combined result. onProgress may
// be nil.
func (a *Analyzer) Analyze(ctx context.Context, tr transcript.Result, onProgress ProgressFunc) *Result {
	if onProgress == nil {
		onProgress = func(string, string) {}
	}

	result := &Result{Sentiment: NeutralSentiment()}
	var mu sync.Mutex
	var wg sync.WaitGroup

	fail := func(task string, err error) {
		mu.Lock()
		if result.Errors == nil {
			result.Errors = make(map[string]string)
		}
		result.Errors[task] = err.Error()
		mu.Unlock()
		a.logger.Warn("analysis sub-task failed",
			logging.String("task", task),
			logging.Error(err))
		onProgress(task, "failed")
	}

	run := func(task string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.sem.Acquire(ctx, 1); err != nil {
				fail(task, err)
				return
			}
			defer a.sem.Release(1)
			onProgress(task, "running")
			if err := fn(); err != nil {
				fail(task, err)
				return
			}
			onProgress(task, "done")
		}()
	}

	run(TaskKeyPhrases, func() error {
		if a.client == nil {
			return nil
		}
		phrases, err := a.client.KeyPhrases(ctx, tr.Text)
		if err != nil {
			return err
		}
		scored := ScoreKeyPhrases(phrases, a.cfg.MaxKeyPhrases)
		mu.Lock()
		result.KeyPhrases = scored
		mu.Unlock()
		return nil
	})

	run(TaskSentiment, func() error {
		if a.client == nil {
			return nil
		}
		scores, err := a.client.Sentiment(ctx, []string{tr.Text})
		if err != nil {
			return err
		}
		if len(scores) > 0 {
			mu.Lock()
			result.Sentiment = scores[0]
			mu.Unlock()
		}
		return nil
	})

	run(TaskEntities, func() error {
		if a.client == nil {
			return nil
		}
		entities, err := a.client.Entities(ctx, tr.Text)
		if err != nil {
			return err
		}
		mu.Lock()
		result.Entities = DedupEntities(entities)
		mu.Unlock()
		return nil
	})

	run(TaskActionItems, func() error {
		items := ExtractActionItems(tr.Text, a.cfg.MaxActionItems)
		mu.Lock()
		result.ActionItems = items
		mu.Unlock()
		return nil
	})

	run(TaskSegmentSentiment, func() error {
		if a.client == nil || len(tr.Segments) == 0 {
			return nil
		}
		docs := make([]string, len(tr.Segments))
		for i, seg := range tr.Segments {
			docs[i] = seg.Text
		}
		scores, err := a.client.Sentiment(ctx, docs)
		if err != nil {
			return err
		}
		sentiments := make([]SegmentSentiment, 0, len(tr.Segments))
		for i, seg := range tr.Segments {
			label := "neutral"
			if i < len(scores) {
				label = scores[i].Overall
			}
			sentiments = append(sentiments, SegmentSentiment{
				Text:      seg.Text,
				Speaker:   seg.Speaker,
				Sentiment: label,
				Start:     seg.Start,
				End:       seg.End,
			})
		}
		mu.Lock()
		result.SegmentSentiments = sentiments
		mu.Unlock()
		return nil
	})

	wg.Wait()

	// Topics and the summary digest derive from key phrases, so the summary
	// sub-task runs after the fan-out joins.
	onProgress(TaskSummary, "running")
	result.Topics = TopicsFromKeyPhrases(result.KeyPhrases)
	result.Summary = Summarize(tr.Text, a.cfg.SummarySentences, result.Topics)
	onProgress(TaskSummary, "done")

	return result
}

// AttachSpeakers copies speaker labels from merged segments onto the
// per-segment sentiments. Segments are matched by position.
func AttachSpeakers(result *Result, segments []transcript.Segment) {
	if result == nil {
		return
	}
	for i := range result.SegmentSentiments {
		if i < len(segments) {
			result.SegmentSentiments[i].Speaker = segments[i].Speaker
		}
	}
}

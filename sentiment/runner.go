package sentiment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/halcyonbridge/earnings-sentiment/transcript"
	"github.com/halcyonbridge/earnings-sentiment/transcript/tabular"
)

// ResultRow joins an event document's identifying metadata with its
// classification. One row per analyzed document.
type ResultRow struct {
	CompanyID    int64  `json:"company_id"`
	CompanyName  string `json:"company_name"`
	TranscriptID int64  `json:"transcript_id"`
	Headline     string `json:"headline"`
	EventDate    string `json:"event_date"`
	WordCount    int    `json:"word_count"`

	Classification
}

// ResultHeaders is the column order for persisted result tables.
var ResultHeaders = []string{
	"company_id", "company_name", "transcript_id", "headline", "event_date", "word_count",
	"sentiment", "positive_prob", "negative_prob", "neutral_prob", "reasoning",
	"input_tokens", "output_tokens", "total_tokens", "cost", "success", "attempts",
}

func (r ResultRow) cells() []any {
	return []any{
		r.CompanyID, r.CompanyName, r.TranscriptID, r.Headline, r.EventDate, r.WordCount,
		r.Sentiment, r.PositiveProb, r.NegativeProb, r.NeutralProb, r.Reasoning,
		r.InputTokens, r.OutputTokens, r.TotalTokens, r.Cost, r.Success, r.Attempts,
	}
}

// CheckpointWriter persists the full result set accumulated so far. It is
// called mid-run on checkpoint boundaries and once more at the end.
type CheckpointWriter interface {
	Write(rows []ResultRow) error
}

// TableCheckpoint writes results as a spreadsheet at a fixed path. Each
// write replaces the previous file atomically, so a crash leaves the last
// completed checkpoint intact.
type TableCheckpoint struct {
	Path string
}

func (c TableCheckpoint) Write(rows []ResultRow) error {
	cells := make([][]any, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, r.cells())
	}
	if err := tabular.WriteTable(c.Path, ResultHeaders, cells); err != nil {
		return fmt.Errorf("TableCheckpoint.Write: %w", err)
	}
	return nil
}

// RunStats summarizes a completed (or interrupted) run.
type RunStats struct {
	Processed    int
	Succeeded    int
	Failed       int
	Duration     time.Duration
	Distribution map[string]int
	TotalCost    float64
	TotalTokens  int
}

// RunnerConfig tunes batching and checkpoint cadence.
type RunnerConfig struct {
	BatchSize int // documents classified concurrently per batch
	SaveEvery int // checkpoint after this many processed documents
}

func (c *RunnerConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.SaveEvery <= 0 {
		c.SaveEvery = 100
	}
}

// Runner drives classification over a document set: batches run one after
// another, documents within a batch run concurrently, and results land at
// their input index so output order always matches input order.
type Runner struct {
	analyzer   *Analyzer
	checkpoint CheckpointWriter
	log        *logrus.Entry
	cfg        RunnerConfig
}

// NewRunner wires a runner. checkpoint may be nil to skip persistence.
func NewRunner(analyzer *Analyzer, checkpoint CheckpointWriter, log *logrus.Entry, cfg RunnerConfig) *Runner {
	cfg.applyDefaults()
	if log == nil {
		log = discardLogger()
	}
	return &Runner{analyzer: analyzer, checkpoint: checkpoint, log: log, cfg: cfg}
}

// Run classifies docs and returns one result per input, in input order.
// Cancelling ctx stops the run at the next batch boundary; results collected
// so far are checkpointed and returned alongside ctx's error.
func (r *Runner) Run(ctx context.Context, docs []transcript.EventDocument) ([]ResultRow, RunStats, error) {
	start := time.Now()
	results := make([]ResultRow, 0, len(docs))
	stats := RunStats{Distribution: map[string]int{}}
	lastSaved := 0

	var runErr error
	for batchStart := 0; batchStart < len(docs); batchStart += r.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		batch := docs[batchStart:min(batchStart+r.cfg.BatchSize, len(docs))]
		batchResults := make([]ResultRow, len(batch))

		var wg sync.WaitGroup
		for i, doc := range batch {
			wg.Add(1)
			go func(slot int, doc transcript.EventDocument) {
				defer wg.Done()
				batchResults[slot] = ResultRow{
					CompanyID:      doc.CompanyID,
					CompanyName:    doc.CompanyName,
					TranscriptID:   doc.TranscriptID,
					Headline:       doc.Headline,
					EventDate:      doc.EventDate,
					WordCount:      doc.TotalWordCount,
					Classification: r.analyzer.Analyze(ctx, doc),
				}
			}(i, doc)
		}
		wg.Wait()

		for _, res := range batchResults {
			results = append(results, res)
			stats.Processed++
			if res.Success {
				stats.Succeeded++
			} else {
				stats.Failed++
			}
			stats.Distribution[res.Sentiment]++
			stats.TotalCost += res.Cost
			stats.TotalTokens += res.TotalTokens
		}

		elapsed := time.Since(start)
		perDoc := elapsed / time.Duration(stats.Processed)
		remaining := time.Duration(len(docs)-stats.Processed) * perDoc
		r.log.WithFields(logrus.Fields{
			"processed": stats.Processed,
			"total":     len(docs),
			"failed":    stats.Failed,
			"rate":      fmt.Sprintf("%.2f/s", float64(stats.Processed)/elapsed.Seconds()),
			"eta":       remaining.Round(time.Second).String(),
		}).Info("batch complete")

		if stats.Processed/r.cfg.SaveEvery > lastSaved/r.cfg.SaveEvery {
			if err := r.save(results); err != nil {
				return results, r.finish(stats, start), fmt.Errorf("Runner.Run: checkpoint: %w", err)
			}
			lastSaved = stats.Processed
		}
	}

	if err := r.save(results); err != nil {
		return results, r.finish(stats, start), fmt.Errorf("Runner.Run: final save: %w", err)
	}

	stats = r.finish(stats, start)
	r.log.WithFields(logrus.Fields{
		"processed":    stats.Processed,
		"succeeded":    stats.Succeeded,
		"failed":       stats.Failed,
		"distribution": stats.Distribution,
		"total_tokens": stats.TotalTokens,
		"total_cost":   fmt.Sprintf("$%.4f", stats.TotalCost),
		"duration":     stats.Duration.Round(time.Second).String(),
	}).Info("run complete")

	return results, stats, runErr
}

func (r *Runner) save(results []ResultRow) error {
	if r.checkpoint == nil || len(results) == 0 {
		return nil
	}
	return r.checkpoint.Write(results)
}

func (r *Runner) finish(stats RunStats, start time.Time) RunStats {
	stats.Duration = time.Since(start)
	stats.TotalCost = round6(stats.TotalCost)
	return stats
}

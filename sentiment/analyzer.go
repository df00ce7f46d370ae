package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/halcyonbridge/earnings-sentiment/transcript"
)

// Valid sentiment labels.
const (
	Positive = "positive"
	Negative = "negative"
	Neutral  = "neutral"
)

// Classification is the sentiment result for one aggregated event.
type Classification struct {
	Sentiment    string  `json:"sentiment"`
	PositiveProb float64 `json:"positive_prob"`
	NegativeProb float64 `json:"negative_prob"`
	NeutralProb  float64 `json:"neutral_prob"`
	Reasoning    string  `json:"reasoning"`

	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost"`
	Success      bool    `json:"success"`
	Attempts     int     `json:"attempts"`
}

// AnalyzerConfig tunes the per-document retry policy.
type AnalyzerConfig struct {
	Model      string
	Timeout    time.Duration // per attempt
	MaxRetries int
	RetryBase  time.Duration // first backoff interval; doubles per attempt
	RunID      string
}

func (c *AnalyzerConfig) applyDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4.1"
	}
	if c.Timeout <= 0 {
		c.Timeout = 45 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
}

// Analyzer classifies aggregated event documents through a completion
// endpoint with bounded retries, per-attempt timeouts, and cost accounting.
// A document's failure never escapes as an error; exhausted retries produce
// a neutral placeholder result with Success=false.
type Analyzer struct {
	client  Client
	pricing ModelPricing
	costs   *CostLog
	log     *logrus.Entry
	cfg     AnalyzerConfig
}

// NewAnalyzer wires an analyzer. costs may be nil to disable usage logging
// (tests); log may be nil for a silent analyzer.
func NewAnalyzer(client Client, costs *CostLog, log *logrus.Entry, cfg AnalyzerConfig) *Analyzer {
	cfg.applyDefaults()
	if log == nil {
		log = discardLogger()
	}
	return &Analyzer{
		client:  client,
		pricing: PricingFor(cfg.Model),
		costs:   costs,
		log:     log,
		cfg:     cfg,
	}
}

// Analyze classifies one document. Each attempt gets its own timeout; failed
// attempts back off exponentially (2s, 4s, 8s, ...) before retrying. The
// backoff sleep is cooperative: cancelling ctx wakes it immediately.
func (a *Analyzer) Analyze(ctx context.Context, doc transcript.EventDocument) Classification {
	req := Request{
		Model:        a.cfg.Model,
		Temperature:  0.0,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt(doc.PresentationText, doc.CompanyName, doc.EventDate),
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.cfg.RetryBase
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 5 * time.Minute
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= a.cfg.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		resp, err := a.client.Complete(attemptCtx, req)
		cancel()

		if err == nil {
			return a.finishSuccess(doc, resp, attempt)
		}
		lastErr = err
		attempts = attempt

		if attempt < a.cfg.MaxRetries {
			wait := bo.NextBackOff()
			a.log.WithFields(logrus.Fields{
				"company":  doc.CompanyName,
				"attempt":  attempt,
				"retry_in": wait.String(),
			}).WithError(err).Warn("classification attempt failed, retrying")
			if !sleepCtx(ctx, wait) {
				lastErr = ctx.Err()
				break
			}
		}
	}

	a.log.WithFields(logrus.Fields{
		"company":  doc.CompanyName,
		"attempts": attempts,
	}).WithError(lastErr).Error("classification failed after all attempts")
	return errorClassification(lastErr, attempts)
}

func (a *Analyzer) finishSuccess(doc transcript.EventDocument, resp Response, attempt int) Classification {
	breakdown := a.pricing.Cost(resp.InputTokens, resp.OutputTokens, resp.CachedTokens)

	if a.costs != nil {
		err := a.costs.Log(a.cfg.Model, resp.InputTokens, resp.OutputTokens, breakdown.TotalCost, map[string]string{
			"company":    doc.CompanyName,
			"event_date": doc.EventDate,
			"attempt":    strconv.Itoa(attempt),
			"run_id":     a.cfg.RunID,
		})
		if err != nil {
			a.log.WithError(err).Warn("cost log append failed")
		}
	}

	var raw classificationOutput
	parseErr := decodeModelJSON(resp.Content, &raw)

	sentiment, pos, neg, neu := normalize(raw, parseErr)

	return Classification{
		Sentiment:    sentiment,
		PositiveProb: round3(pos),
		NegativeProb: round3(neg),
		NeutralProb:  round3(neu),
		Reasoning:    raw.Reasoning,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		TotalTokens:  resp.InputTokens + resp.OutputTokens,
		Cost:         round6(breakdown.TotalCost),
		Success:      true,
		Attempts:     attempt,
	}
}

// normalize applies the defaulting and renormalization rules: unparsable or
// incomplete output degrades to neutral (0, 0, 1); unknown labels coerce to
// neutral; probabilities are scaled proportionally to sum to 1, with the
// all-zero case resolving to neutral certainty.
func normalize(raw classificationOutput, parseErr error) (sentiment string, pos, neg, neu float64) {
	if parseErr != nil {
		return Neutral, 0, 0, 1
	}

	sentiment = strings.ToLower(strings.TrimSpace(raw.Sentiment))
	switch sentiment {
	case Positive, Negative, Neutral:
	default:
		sentiment = Neutral
	}

	pos = math.Max(0, raw.PositiveProb)
	neg = math.Max(0, raw.NegativeProb)
	neu = math.Max(0, raw.NeutralProb)

	total := pos + neg + neu
	if total > 0 {
		pos /= total
		neg /= total
		neu /= total
	} else {
		pos, neg, neu = 0, 0, 1
	}
	return sentiment, pos, neg, neu
}

func errorClassification(err error, attempts int) Classification {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Classification{
		Sentiment:    Neutral,
		PositiveProb: 0,
		NegativeProb: 0,
		NeutralProb:  1,
		Reasoning:    fmt.Sprintf("Error: %s", msg),
		Success:      false,
		Attempts:     attempts,
	}
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// sleepCtx sleeps for d or until ctx is cancelled; it reports whether the
// full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// decodeModelJSON unmarshals JSON from a model response, with a small amount
// of robustness for cases where the model wraps the JSON in extra text or
// returns leading/trailing whitespace.
func decodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}

	// Fast path: valid JSON as-is.
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	// Fallback: attempt to extract the first top-level JSON object.
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}

	sub := s[start : end+1]
	if err := json.Unmarshal([]byte(sub), v); err != nil {
		return fmt.Errorf("failed to unmarshal extracted JSON (len=%d): %w", len(sub), err)
	}
	return nil
}

func round3(f float64) float64 { return math.Round(f*1000) / 1000 }
func round6(f float64) float64 { return math.Round(f*1_000_000) / 1_000_000 }

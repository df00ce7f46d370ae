package sentiment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/halcyonbridge/earnings-sentiment/transcript"
)

type recordingCheckpoint struct {
	mu     sync.Mutex
	writes [][]ResultRow
}

func (c *recordingCheckpoint) Write(rows []ResultRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make([]ResultRow, len(rows))
	copy(snapshot, rows)
	c.writes = append(c.writes, snapshot)
	return nil
}

func (c *recordingCheckpoint) writeSizes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	sizes := make([]int, len(c.writes))
	for i, w := range c.writes {
		sizes[i] = len(w)
	}
	return sizes
}

// echoClient answers with a positive classification whose reasoning echoes
// the company name from the prompt, after a small random delay so that
// completion order differs from submission order.
func echoClient() *fakeClient {
	return &fakeClient{respond: func(call int, req Request) (Response, error) {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
		// userPrompt embeds the company name on its own line.
		var company string
		for _, line := range strings.Split(req.UserPrompt, "\n") {
			if after, ok := strings.CutPrefix(line, "Company: "); ok {
				company = after
				break
			}
		}
		content := fmt.Sprintf(`{"sentiment":"positive","positive_prob":1,"negative_prob":0,"neutral_prob":0,"reasoning":%q}`, company)
		return contentResponse(content), nil
	}}
}

func docsNamed(n int) []transcript.EventDocument {
	docs := make([]transcript.EventDocument, n)
	for i := range docs {
		docs[i] = transcript.EventDocument{
			CompanyID:        int64(i + 1),
			CompanyName:      fmt.Sprintf("Company %03d", i),
			TranscriptID:     int64(1000 + i),
			EventDate:        "2024-03-15",
			PresentationText: "Solid quarter.",
			TotalWordCount:   2,
		}
	}
	return docs
}

func testRunner(t *testing.T, client Client, checkpoint CheckpointWriter, cfg RunnerConfig) *Runner {
	t.Helper()
	analyzer := NewAnalyzer(client, nil, nil, AnalyzerConfig{
		Model:      "gpt-4.1",
		Timeout:    time.Second,
		MaxRetries: 3,
		RetryBase:  time.Millisecond,
	})
	return NewRunner(analyzer, checkpoint, nil, cfg)
}

func TestRunPreservesInputOrder(t *testing.T) {
	t.Parallel()

	docs := docsNamed(23)
	runner := testRunner(t, echoClient(), nil, RunnerConfig{BatchSize: 5, SaveEvery: 100})

	results, stats, err := runner.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != len(docs) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(docs))
	}
	for i, res := range results {
		if res.CompanyName != docs[i].CompanyName {
			t.Fatalf("results[%d].CompanyName = %q, want %q", i, res.CompanyName, docs[i].CompanyName)
		}
		if res.Reasoning != docs[i].CompanyName {
			t.Fatalf("results[%d] classified with %q's prompt, want %q", i, res.Reasoning, docs[i].CompanyName)
		}
	}
	if stats.Processed != 23 || stats.Succeeded != 23 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want 23 processed, 23 succeeded", stats)
	}
	if stats.Distribution[Positive] != 23 {
		t.Fatalf("Distribution[positive] = %d, want 23", stats.Distribution[Positive])
	}
}

func TestRunCheckpointCadence(t *testing.T) {
	t.Parallel()

	docs := docsNamed(25)
	cp := &recordingCheckpoint{}
	runner := testRunner(t, echoClient(), cp, RunnerConfig{BatchSize: 5, SaveEvery: 10})

	if _, _, err := runner.Run(context.Background(), docs); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Checkpoints at 10 and 20 processed, plus the unconditional final write.
	got := cp.writeSizes()
	want := []int{10, 20, 25}
	if len(got) != len(want) {
		t.Fatalf("checkpoint sizes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("checkpoint sizes = %v, want %v", got, want)
		}
	}
}

func TestRunFinalWriteAlways(t *testing.T) {
	t.Parallel()

	docs := docsNamed(3)
	cp := &recordingCheckpoint{}
	runner := testRunner(t, echoClient(), cp, RunnerConfig{BatchSize: 50, SaveEvery: 100})

	if _, _, err := runner.Run(context.Background(), docs); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := cp.writeSizes()
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("checkpoint sizes = %v, want [3]", got)
	}
}

func TestRunCountsFailures(t *testing.T) {
	t.Parallel()

	client := &fakeClient{respond: func(call int, req Request) (Response, error) {
		if strings.Contains(req.UserPrompt, "Company 000") {
			return Response{}, errors.New("boom")
		}
		return contentResponse(`{"sentiment":"neutral","positive_prob":0,"negative_prob":0,"neutral_prob":1,"reasoning":"flat"}`), nil
	}}
	docs := docsNamed(4)
	runner := testRunner(t, client, nil, RunnerConfig{BatchSize: 2, SaveEvery: 100})

	results, stats, err := runner.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Failed != 1 || stats.Succeeded != 3 {
		t.Fatalf("stats = %+v, want 1 failed, 3 succeeded", stats)
	}
	if results[0].Success {
		t.Fatalf("results[0].Success = true, want false")
	}
	if results[0].Sentiment != Neutral || results[0].NeutralProb != 1 {
		t.Fatalf("failed row = (%q, %v), want neutral placeholder", results[0].Sentiment, results[0].NeutralProb)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cp := &recordingCheckpoint{}
	runner := testRunner(t, echoClient(), cp, RunnerConfig{BatchSize: 5, SaveEvery: 10})

	results, _, err := runner.Run(ctx, docsNamed(25))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(results) != 0 {
		t.Fatalf("len(results) = %d, want 0", len(results))
	}
}

func TestTableCheckpointWrites(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/results.xlsx"
	cp := TableCheckpoint{Path: path}

	rows := []ResultRow{{
		CompanyID:    1,
		CompanyName:  "Acme Corp",
		TranscriptID: 11,
		Headline:     "Q1 2024 Earnings Call",
		EventDate:    "2024-05-01",
		WordCount:    120,
		Classification: Classification{
			Sentiment:    Positive,
			PositiveProb: 0.9,
			NeutralProb:  0.1,
			Success:      true,
			Attempts:     1,
		},
	}}
	if err := cp.Write(rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// Overwriting with a larger set must succeed (checkpoint replaces file).
	rows = append(rows, rows[0])
	if err := cp.Write(rows); err != nil {
		t.Fatalf("Write (second): %v", err)
	}
}

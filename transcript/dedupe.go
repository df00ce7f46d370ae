package transcript

import (
	"fmt"
)

// StageStats records what one dedup stage did to the row count.
type StageStats struct {
	Before  int `json:"before"`
	After   int `json:"after"`
	Removed int `json:"removed"`
}

// RemovedPercent is the share of input rows the stage dropped, in percent.
func (s StageStats) RemovedPercent() float64 {
	if s.Before == 0 {
		return 0
	}
	return float64(s.Removed) / float64(s.Before) * 100
}

// CleanStats is the audit summary of a full Clean run.
type CleanStats struct {
	Stage1 StageStats `json:"stage1_within_transcript"`
	Stage2 StageStats `json:"stage2_cross_transcript"`
	Stage3 StageStats `json:"stage3_company_level"`

	MultiVersionEvents int `json:"multi_version_events"`

	Companies   int `json:"companies"`
	Events      int `json:"events"`
	Transcripts int `json:"transcripts"`
	UniqueTexts int `json:"unique_texts"`
	TotalWords  int `json:"total_words"`
}

// TotalRemoved is the number of rows dropped across all three stages.
func (s CleanStats) TotalRemoved() int {
	return s.Stage1.Removed + s.Stage2.Removed + s.Stage3.Removed
}

// DedupeWithinTranscripts is Stage 1: within each transcript, keep only the
// first-seen row per distinct text. Duplicates here are byte-identical
// recordings of the same utterance, so dropping the later copy loses nothing;
// keeping the first copy retains the earliest component order.
func DedupeWithinTranscripts(in []Component) []Component {
	type key struct {
		transcriptID int64
		text         string
	}
	seen := make(map[key]struct{}, len(in))
	out := make([]Component, 0, len(in))
	for _, c := range in {
		k := key{transcriptID: c.TranscriptID, text: c.Text}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// MergeEventVersions is Stage 2: events recorded by more than one transcript
// are merged into a single canonical transcript. All versions' components are
// unioned, deduplicated by exact text (first occurrence wins across versions,
// which recovers content missing from one version without duplicating shared
// content), and reassigned the transcript id of the first version seen for
// that event. Single-version events pass through unchanged.
//
// The returned merge count is the number of multi-version events processed.
// MergeEventVersions recomputes the event-to-transcript mapping on its own
// output and returns an error if any event still maps to more than one id;
// that condition is a pipeline defect, never a normal runtime state.
//
// Only byte-identical text counts as duplicate. Near-duplicate transcription
// variance across versions is deliberately kept.
func MergeEventVersions(in []Component) ([]Component, int, error) {
	versions := make(map[EventKey]map[int64]struct{})
	order := make([]EventKey, 0)
	for _, c := range in {
		k := c.Key()
		if _, ok := versions[k]; !ok {
			versions[k] = make(map[int64]struct{})
			order = append(order, k)
		}
		versions[k][c.TranscriptID] = struct{}{}
	}

	multi := make(map[EventKey]bool, len(versions))
	merged := 0
	for k, ids := range versions {
		if len(ids) > 1 {
			multi[k] = true
			merged++
		}
	}

	// Canonical id and seen-texts state per multi-version event. Iteration is
	// over the input slice, so "first version" and "first occurrence" follow
	// input order.
	canonical := make(map[EventKey]int64, merged)
	seenTexts := make(map[EventKey]map[string]struct{}, merged)

	out := make([]Component, 0, len(in))
	for _, c := range in {
		k := c.Key()
		if !multi[k] {
			out = append(out, c)
			continue
		}
		if _, ok := canonical[k]; !ok {
			canonical[k] = c.TranscriptID
			seenTexts[k] = make(map[string]struct{})
		}
		if _, dup := seenTexts[k][c.Text]; dup {
			continue
		}
		seenTexts[k][c.Text] = struct{}{}
		c.TranscriptID = canonical[k]
		out = append(out, c)
	}

	if err := VerifyCanonicalMapping(out); err != nil {
		return nil, 0, fmt.Errorf("MergeEventVersions: %w", err)
	}
	return out, merged, nil
}

// VerifyCanonicalMapping recomputes the event-key to transcript-id mapping
// and fails if any event maps to more than one transcript id. After Stage 2
// this must hold for every event; a violation means the merge is broken.
func VerifyCanonicalMapping(in []Component) error {
	ids := make(map[EventKey]map[int64]struct{})
	for _, c := range in {
		k := c.Key()
		if _, ok := ids[k]; !ok {
			ids[k] = make(map[int64]struct{})
		}
		ids[k][c.TranscriptID] = struct{}{}
	}
	for k, set := range ids {
		if len(set) > 1 {
			return fmt.Errorf("event (%d, %q, %s) maps to %d transcript ids, want 1",
				k.CompanyID, k.Headline, k.EventDate, len(set))
		}
	}
	return nil
}

// DedupeWithinCompanies is Stage 3: for each company, keep only the first
// occurrence of each distinct text. This catches boilerplate reused verbatim
// across different events of one company (standard disclaimers and the like),
// which Stage 2 cannot see because it works per event.
func DedupeWithinCompanies(in []Component) []Component {
	type key struct {
		companyID int64
		text      string
	}
	seen := make(map[key]struct{}, len(in))
	out := make([]Component, 0, len(in))
	for _, c := range in {
		k := key{companyID: c.CompanyID, text: c.Text}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Clean runs the full three-stage deduplication pipeline on a copy of the
// input and returns the canonical component set plus audit statistics. The
// input slice is never mutated; each stage is a pure table-in/table-out
// transformation.
func Clean(in []Component) ([]Component, CleanStats, error) {
	components := append([]Component(nil), in...)
	SortComponents(components)

	var stats CleanStats

	stats.Stage1.Before = len(components)
	components = DedupeWithinTranscripts(components)
	stats.Stage1.After = len(components)
	stats.Stage1.Removed = stats.Stage1.Before - stats.Stage1.After

	stats.Stage2.Before = len(components)
	components, mergedEvents, err := MergeEventVersions(components)
	if err != nil {
		return nil, CleanStats{}, fmt.Errorf("Clean: %w", err)
	}
	stats.Stage2.After = len(components)
	stats.Stage2.Removed = stats.Stage2.Before - stats.Stage2.After
	stats.MultiVersionEvents = mergedEvents

	stats.Stage3.Before = len(components)
	components = DedupeWithinCompanies(components)
	stats.Stage3.After = len(components)
	stats.Stage3.Removed = stats.Stage3.Before - stats.Stage3.After

	companies := make(map[int64]struct{})
	events := make(map[EventKey]struct{})
	transcripts := make(map[int64]struct{})
	texts := make(map[string]struct{})
	for _, c := range components {
		companies[c.CompanyID] = struct{}{}
		events[c.Key()] = struct{}{}
		transcripts[c.TranscriptID] = struct{}{}
		texts[c.Text] = struct{}{}
		stats.TotalWords += c.WordCount
	}
	stats.Companies = len(companies)
	stats.Events = len(events)
	stats.Transcripts = len(transcripts)
	stats.UniqueTexts = len(texts)

	return components, stats, nil
}

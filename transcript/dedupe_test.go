package transcript

import (
	"reflect"
	"testing"
)

func comp(companyID, transcriptID int64, order int, headline, date, text string) Component {
	return Component{
		CompanyID:      companyID,
		TranscriptID:   transcriptID,
		ComponentOrder: order,
		Headline:       headline,
		EventDate:      date,
		Text:           text,
		WordCount:      CountWords(text),
	}
}

func TestDedupeWithinTranscripts_DropsRepeatedText(t *testing.T) {
	t.Parallel()

	in := []Component{
		comp(1, 1, 1, "Q1 Call", "2024-05-01", "A"),
		comp(1, 1, 2, "Q1 Call", "2024-05-01", "A"),
	}

	out := DedupeWithinTranscripts(in)
	if len(out) != 1 {
		t.Fatalf("len(out)=%d, want 1", len(out))
	}
	if out[0].ComponentOrder != 1 {
		t.Fatalf("surviving ComponentOrder=%d, want 1 (first occurrence wins)", out[0].ComponentOrder)
	}
}

func TestDedupeWithinTranscripts_KeepsSameTextAcrossTranscripts(t *testing.T) {
	t.Parallel()

	in := []Component{
		comp(1, 1, 1, "Q1 Call", "2024-05-01", "A"),
		comp(1, 2, 1, "Q2 Call", "2024-08-01", "A"),
	}

	out := DedupeWithinTranscripts(in)
	if len(out) != 2 {
		t.Fatalf("len(out)=%d, want 2 (dedup is per transcript)", len(out))
	}
}

func TestDedupeWithinTranscripts_Idempotent(t *testing.T) {
	t.Parallel()

	in := []Component{
		comp(1, 1, 1, "Q1 Call", "2024-05-01", "A"),
		comp(1, 1, 2, "Q1 Call", "2024-05-01", "A"),
		comp(1, 1, 3, "Q1 Call", "2024-05-01", "B"),
	}

	once := DedupeWithinTranscripts(in)
	twice := DedupeWithinTranscripts(once)
	if len(once) != len(twice) {
		t.Fatalf("second pass changed row count: %d -> %d", len(once), len(twice))
	}
	for i := range once {
		if !reflect.DeepEqual(once[i], twice[i]) {
			t.Fatalf("row %d changed on second pass: %+v -> %+v", i, once[i], twice[i])
		}
	}
}

func TestMergeEventVersions_CombinesVersions(t *testing.T) {
	t.Parallel()

	// Two recordings of the same event: version 1 has A,B; version 2 has B,C.
	in := []Component{
		comp(1, 1, 1, "Q1 Call", "2024-05-01", "A"),
		comp(1, 1, 2, "Q1 Call", "2024-05-01", "B"),
		comp(1, 2, 1, "Q1 Call", "2024-05-01", "B"),
		comp(1, 2, 2, "Q1 Call", "2024-05-01", "C"),
	}

	out, merged, err := MergeEventVersions(in)
	if err != nil {
		t.Fatalf("MergeEventVersions: %v", err)
	}
	if merged != 1 {
		t.Fatalf("merged=%d, want 1", merged)
	}
	if len(out) != 3 {
		t.Fatalf("len(out)=%d, want 3", len(out))
	}

	texts := make(map[string]struct{})
	for _, c := range out {
		if c.TranscriptID != 1 {
			t.Fatalf("TranscriptID=%d, want canonical id 1 (first version seen)", c.TranscriptID)
		}
		texts[c.Text] = struct{}{}
	}
	for _, want := range []string{"A", "B", "C"} {
		if _, ok := texts[want]; !ok {
			t.Fatalf("merged output missing text %q", want)
		}
	}
}

func TestMergeEventVersions_PreservesDistinctTextUnion(t *testing.T) {
	t.Parallel()

	in := []Component{
		comp(1, 10, 1, "FY Call", "2024-02-01", "intro"),
		comp(1, 10, 2, "FY Call", "2024-02-01", "guidance"),
		comp(1, 11, 1, "FY Call", "2024-02-01", "intro"),
		comp(1, 11, 2, "FY Call", "2024-02-01", "guidance revised"),
		comp(1, 12, 1, "FY Call", "2024-02-01", "closing"),
	}

	wantTexts := make(map[string]struct{})
	for _, c := range in {
		wantTexts[c.Text] = struct{}{}
	}

	out, _, err := MergeEventVersions(in)
	if err != nil {
		t.Fatalf("MergeEventVersions: %v", err)
	}

	gotTexts := make(map[string]struct{})
	for _, c := range out {
		gotTexts[c.Text] = struct{}{}
	}
	if len(gotTexts) != len(wantTexts) {
		t.Fatalf("distinct texts after merge=%d, want %d", len(gotTexts), len(wantTexts))
	}
	for text := range wantTexts {
		if _, ok := gotTexts[text]; !ok {
			t.Fatalf("text %q lost during merge", text)
		}
	}
}

func TestMergeEventVersions_SingleVersionPassesThrough(t *testing.T) {
	t.Parallel()

	in := []Component{
		comp(1, 5, 1, "Q3 Call", "2024-11-01", "A"),
		comp(1, 5, 2, "Q3 Call", "2024-11-01", "B"),
	}

	out, merged, err := MergeEventVersions(in)
	if err != nil {
		t.Fatalf("MergeEventVersions: %v", err)
	}
	if merged != 0 {
		t.Fatalf("merged=%d, want 0", merged)
	}
	if len(out) != 2 {
		t.Fatalf("len(out)=%d, want 2", len(out))
	}
}

func TestMergeEventVersions_NearDuplicateTextIsKept(t *testing.T) {
	t.Parallel()

	in := []Component{
		comp(1, 1, 1, "Q1 Call", "2024-05-01", "Revenue grew 5%."),
		comp(1, 2, 1, "Q1 Call", "2024-05-01", "Revenue grew 5%"),
	}

	out, _, err := MergeEventVersions(in)
	if err != nil {
		t.Fatalf("MergeEventVersions: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out)=%d, want 2 (only byte-identical text merges)", len(out))
	}
}

func TestVerifyCanonicalMapping_DetectsViolation(t *testing.T) {
	t.Parallel()

	in := []Component{
		comp(1, 1, 1, "Q1 Call", "2024-05-01", "A"),
		comp(1, 2, 1, "Q1 Call", "2024-05-01", "B"),
	}
	if err := VerifyCanonicalMapping(in); err == nil {
		t.Fatal("VerifyCanonicalMapping: want error for event with two transcript ids, got nil")
	}
}

func TestDedupeWithinCompanies_DropsBoilerplateAcrossEvents(t *testing.T) {
	t.Parallel()

	disclaimer := "Forward-looking statements disclaimer."
	in := []Component{
		comp(1, 1, 1, "Q1 Call", "2024-05-01", disclaimer),
		comp(1, 1, 2, "Q1 Call", "2024-05-01", "Q1 results"),
		comp(1, 2, 1, "Q2 Call", "2024-08-01", disclaimer),
		comp(1, 2, 2, "Q2 Call", "2024-08-01", "Q2 results"),
		comp(2, 3, 1, "Q1 Call", "2024-05-02", disclaimer),
	}

	out := DedupeWithinCompanies(in)
	if len(out) != 4 {
		t.Fatalf("len(out)=%d, want 4", len(out))
	}
	if len(out) > len(in) {
		t.Fatalf("stage 3 grew the table: %d -> %d", len(in), len(out))
	}

	type key struct {
		companyID int64
		text      string
	}
	seen := make(map[key]int)
	for _, c := range out {
		seen[key{c.CompanyID, c.Text}]++
	}
	for k, n := range seen {
		if n > 1 {
			t.Fatalf("(company=%d, text=%q) appears %d times, want 1", k.companyID, k.text, n)
		}
	}
}

func TestClean_FullPipeline(t *testing.T) {
	t.Parallel()

	in := []Component{
		// Within-transcript duplicate.
		comp(1, 1, 1, "Q1 Call", "2024-05-01", "welcome"),
		comp(1, 1, 2, "Q1 Call", "2024-05-01", "welcome"),
		comp(1, 1, 3, "Q1 Call", "2024-05-01", "results"),
		// Second version of the same event with one extra text.
		comp(1, 2, 1, "Q1 Call", "2024-05-01", "results"),
		comp(1, 2, 2, "Q1 Call", "2024-05-01", "outlook"),
		// Different event, reuses the welcome boilerplate.
		comp(1, 3, 1, "Q2 Call", "2024-08-01", "welcome"),
		comp(1, 3, 2, "Q2 Call", "2024-08-01", "q2 results"),
	}

	out, stats, err := Clean(in)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}

	if stats.Stage1.Removed != 1 {
		t.Fatalf("Stage1.Removed=%d, want 1", stats.Stage1.Removed)
	}
	if stats.Stage2.Removed != 1 {
		t.Fatalf("Stage2.Removed=%d, want 1", stats.Stage2.Removed)
	}
	if stats.Stage3.Removed != 1 {
		t.Fatalf("Stage3.Removed=%d, want 1", stats.Stage3.Removed)
	}
	if stats.MultiVersionEvents != 1 {
		t.Fatalf("MultiVersionEvents=%d, want 1", stats.MultiVersionEvents)
	}
	if len(out) != 4 {
		t.Fatalf("len(out)=%d, want 4", len(out))
	}
	if stats.Events != 2 || stats.Transcripts != 2 {
		t.Fatalf("Events=%d Transcripts=%d, want 2/2", stats.Events, stats.Transcripts)
	}

	if err := VerifyCanonicalMapping(out); err != nil {
		t.Fatalf("post-clean mapping: %v", err)
	}
}

func TestClean_DeterministicUnderShuffledInput(t *testing.T) {
	t.Parallel()

	ordered := []Component{
		comp(1, 1, 1, "Q1 Call", "2024-05-01", "a"),
		comp(1, 1, 2, "Q1 Call", "2024-05-01", "b"),
		comp(1, 2, 1, "Q1 Call", "2024-05-01", "b"),
		comp(1, 2, 2, "Q1 Call", "2024-05-01", "c"),
	}
	shuffled := []Component{ordered[3], ordered[1], ordered[2], ordered[0]}

	out1, _, err := Clean(ordered)
	if err != nil {
		t.Fatalf("Clean(ordered): %v", err)
	}
	out2, _, err := Clean(shuffled)
	if err != nil {
		t.Fatalf("Clean(shuffled): %v", err)
	}

	if len(out1) != len(out2) {
		t.Fatalf("row counts differ: %d vs %d", len(out1), len(out2))
	}
	for i := range out1 {
		if !reflect.DeepEqual(out1[i], out2[i]) {
			t.Fatalf("row %d differs under shuffled input:\n got %+v\nwant %+v", i, out2[i], out1[i])
		}
	}
}

func TestClean_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := []Component{
		comp(1, 2, 1, "Q1 Call", "2024-05-01", "b"),
		comp(1, 1, 1, "Q1 Call", "2024-05-01", "a"),
	}
	snapshot := append([]Component(nil), in...)

	if _, _, err := Clean(in); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	for i := range in {
		if !reflect.DeepEqual(in[i], snapshot[i]) {
			t.Fatalf("input row %d mutated: %+v -> %+v", i, snapshot[i], in[i])
		}
	}
}

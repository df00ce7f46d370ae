package transcript

import (
	"strings"
	"testing"
)

func speech(transcriptID int64, order int, speaker, text string) Component {
	return Component{
		CompanyID:      1,
		CompanyName:    "Acme Corp",
		TranscriptID:   transcriptID,
		ComponentOrder: order,
		Headline:       "Q1 2024 Earnings Call",
		EventDate:      "2024-05-01",
		SpeakerType:    "Executives",
		ComponentType:  "Presenter Speech",
		PersonName:     speaker,
		Text:           text,
		WordCount:      CountWords(text),
	}
}

func TestAggregateEvents_OrderPreservedUnderShuffledRows(t *testing.T) {
	t.Parallel()

	// Rows arrive out of component order.
	in := []Component{
		speech(1, 3, "CFO", "third part"),
		speech(1, 1, "CEO", "first part"),
		speech(1, 2, "CEO", "second part"),
	}

	docs := AggregateEvents(in, DefaultFilter())
	if len(docs) != 1 {
		t.Fatalf("len(docs)=%d, want 1", len(docs))
	}

	want := "first part\n\nsecond part\n\nthird part"
	if docs[0].PresentationText != want {
		t.Fatalf("PresentationText=%q, want %q", docs[0].PresentationText, want)
	}
}

func TestAggregateEvents_FilterExcludesOtherSpeakers(t *testing.T) {
	t.Parallel()

	analyst := speech(1, 2, "Analyst", "question about margins")
	analyst.SpeakerType = "Analysts"
	analyst.ComponentType = "Question"

	operator := speech(1, 3, "Operator", "next question please")
	operator.SpeakerType = "Operator"
	operator.ComponentType = "Operator Message"

	in := []Component{
		speech(1, 1, "CEO", "prepared remarks"),
		analyst,
		operator,
	}

	docs := AggregateEvents(in, DefaultFilter())
	if len(docs) != 1 {
		t.Fatalf("len(docs)=%d, want 1", len(docs))
	}
	if docs[0].NumSpeeches != 1 {
		t.Fatalf("NumSpeeches=%d, want 1", docs[0].NumSpeeches)
	}
	if strings.Contains(docs[0].PresentationText, "margins") {
		t.Fatalf("analyst question leaked into presentation text: %q", docs[0].PresentationText)
	}
}

func TestAggregateEvents_FilterIsConfigurable(t *testing.T) {
	t.Parallel()

	q := speech(1, 1, "Analyst", "question")
	q.SpeakerType = "Analysts"
	q.ComponentType = "Question"

	in := []Component{q, speech(1, 2, "CEO", "remarks")}

	docs := AggregateEvents(in, Filter{SpeakerType: "Analysts", ComponentType: "Question"})
	if len(docs) != 1 {
		t.Fatalf("len(docs)=%d, want 1", len(docs))
	}
	if docs[0].PresentationText != "question" {
		t.Fatalf("PresentationText=%q, want %q", docs[0].PresentationText, "question")
	}
}

func TestAggregateEvents_MetadataAndCounts(t *testing.T) {
	t.Parallel()

	in := []Component{
		speech(7, 1, "CEO", "one two three"),
		speech(7, 2, "CFO", "four five"),
		speech(7, 3, "CEO", "six"),
	}
	in[0].EventTime = "13:00:00"
	in[0].EventType = "Earnings Call"

	docs := AggregateEvents(in, DefaultFilter())
	if len(docs) != 1 {
		t.Fatalf("len(docs)=%d, want 1", len(docs))
	}
	doc := docs[0]

	if doc.TranscriptID != 7 {
		t.Fatalf("TranscriptID=%d, want 7", doc.TranscriptID)
	}
	if doc.TotalWordCount != 6 {
		t.Fatalf("TotalWordCount=%d, want 6", doc.TotalWordCount)
	}
	if doc.NumSpeeches != 3 {
		t.Fatalf("NumSpeeches=%d, want 3", doc.NumSpeeches)
	}
	if len(doc.SpeechWordCounts) != 3 || doc.SpeechWordCounts[0] != 3 || doc.SpeechWordCounts[1] != 2 || doc.SpeechWordCounts[2] != 1 {
		t.Fatalf("SpeechWordCounts=%v, want [3 2 1]", doc.SpeechWordCounts)
	}
	if doc.NumSpeakers != 2 {
		t.Fatalf("NumSpeakers=%d, want 2", doc.NumSpeakers)
	}
	if len(doc.SpeakerNames) != 2 || doc.SpeakerNames[0] != "CEO" || doc.SpeakerNames[1] != "CFO" {
		t.Fatalf("SpeakerNames=%v, want [CEO CFO]", doc.SpeakerNames)
	}
	if doc.EventTime != "13:00:00" || doc.EventType != "Earnings Call" {
		t.Fatalf("event metadata not denormalized from first row: %+v", doc)
	}
}

func TestAggregateEvents_OneDocumentPerTranscript(t *testing.T) {
	t.Parallel()

	in := []Component{
		speech(2, 1, "CEO", "b call"),
		speech(1, 1, "CEO", "a call"),
	}

	docs := AggregateEvents(in, DefaultFilter())
	if len(docs) != 2 {
		t.Fatalf("len(docs)=%d, want 2", len(docs))
	}
	if docs[0].TranscriptID != 1 || docs[1].TranscriptID != 2 {
		t.Fatalf("output not sorted by transcript id: %d, %d", docs[0].TranscriptID, docs[1].TranscriptID)
	}
}

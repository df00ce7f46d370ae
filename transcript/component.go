package transcript

import (
	"sort"
	"strings"
)

// Component is one utterance/speech segment of an earnings-call transcript.
// A transcript is an ordered list of components; multiple transcripts
// (versions) may record the same real-world event.
type Component struct {
	CompanyID   int64  `json:"company_id"`
	CompanyName string `json:"company_name"`

	TranscriptID   int64 `json:"transcript_id"`
	ComponentOrder int   `json:"component_order"`

	Headline  string `json:"headline"`
	EventDate string `json:"event_date"`
	EventTime string `json:"event_time,omitempty"`
	EventType string `json:"event_type,omitempty"`

	SpeakerType   string `json:"speaker_type"`
	ComponentType string `json:"component_type"`

	PersonID   int64  `json:"person_id,omitempty"`
	PersonName string `json:"person_name,omitempty"`

	Text      string `json:"text"`
	WordCount int    `json:"word_count"`

	// Extra holds passthrough columns from the source table that the pipeline
	// does not interpret. They are preserved verbatim through all stages.
	Extra map[string]string `json:"extra,omitempty"`
}

// EventKey identifies a real-world event independent of which transcript
// recorded it. It is a struct key on purpose: joining the fields into a
// delimited string would collide whenever a headline contains the delimiter.
type EventKey struct {
	CompanyID int64
	Headline  string
	EventDate string
}

// Key returns the event key of a component.
func (c Component) Key() EventKey {
	return EventKey{CompanyID: c.CompanyID, Headline: c.Headline, EventDate: c.EventDate}
}

// CountWords computes the word count of an utterance the way the source
// tables do: whitespace-separated tokens.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// SortComponents establishes the ordering contract the dedup stages rely on:
// a stable sort by (company id, transcript id, component order). "First
// occurrence wins" tie-breaks are only deterministic once this ordering is
// applied, so Clean sorts its input before Stage 1 instead of trusting
// whatever order the upstream loader produced.
func SortComponents(components []Component) {
	sort.SliceStable(components, func(i, j int) bool {
		a, b := components[i], components[j]
		if a.CompanyID != b.CompanyID {
			return a.CompanyID < b.CompanyID
		}
		if a.TranscriptID != b.TranscriptID {
			return a.TranscriptID < b.TranscriptID
		}
		return a.ComponentOrder < b.ComponentOrder
	})
}

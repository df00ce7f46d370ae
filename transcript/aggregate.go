package transcript

import (
	"sort"
	"strings"
)

// EventDocument is one aggregated event: the ordered concatenation of a
// canonical transcript's selected components plus denormalized event
// metadata. Documents are created once from the cleaned component set and
// never mutated afterwards.
type EventDocument struct {
	CompanyID    int64  `json:"company_id"`
	CompanyName  string `json:"company_name"`
	TranscriptID int64  `json:"transcript_id"`

	Headline  string `json:"headline"`
	EventDate string `json:"event_date"`
	EventTime string `json:"event_time,omitempty"`
	EventType string `json:"event_type,omitempty"`

	PresentationText string `json:"presentation_text"`

	TotalWordCount   int   `json:"total_word_count"`
	NumSpeeches      int   `json:"num_speeches"`
	SpeechWordCounts []int `json:"speech_word_counts"`

	SpeakerNames []string `json:"speaker_names"`
	NumSpeakers  int      `json:"num_speakers"`
}

// Filter selects which components take part in aggregation. The default
// targets management's prepared remarks; other speaker/segment combinations
// (Q&A, analyst questions) reuse the same aggregation path.
type Filter struct {
	SpeakerType   string
	ComponentType string
}

// DefaultFilter keeps executive presenter speeches.
func DefaultFilter() Filter {
	return Filter{SpeakerType: "Executives", ComponentType: "Presenter Speech"}
}

// Keep reports whether a component passes the filter. Empty filter fields
// match anything.
func (f Filter) Keep(c Component) bool {
	if f.SpeakerType != "" && c.SpeakerType != f.SpeakerType {
		return false
	}
	if f.ComponentType != "" && c.ComponentType != f.ComponentType {
		return false
	}
	return true
}

// AggregateEvents filters the cleaned component set, groups by canonical
// transcript id, and emits one document per event. Within a group the texts
// are joined with a blank line between speeches, in strictly ascending
// component order regardless of input row order. Event-level metadata is
// denormalized from the group's first row; output is sorted by transcript id
// so repeated runs produce identical tables.
func AggregateEvents(in []Component, filter Filter) []EventDocument {
	groups := make(map[int64][]Component)
	for _, c := range in {
		if !filter.Keep(c) {
			continue
		}
		groups[c.TranscriptID] = append(groups[c.TranscriptID], c)
	}

	ids := make([]int64, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	docs := make([]EventDocument, 0, len(groups))
	for _, id := range ids {
		group := groups[id]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].ComponentOrder < group[j].ComponentOrder
		})

		first := group[0]
		doc := EventDocument{
			CompanyID:    first.CompanyID,
			CompanyName:  first.CompanyName,
			TranscriptID: id,
			Headline:     first.Headline,
			EventDate:    first.EventDate,
			EventTime:    first.EventTime,
			EventType:    first.EventType,
			NumSpeeches:  len(group),
		}

		texts := make([]string, 0, len(group))
		seenSpeakers := make(map[string]struct{})
		for _, c := range group {
			texts = append(texts, c.Text)
			doc.TotalWordCount += c.WordCount
			doc.SpeechWordCounts = append(doc.SpeechWordCounts, c.WordCount)
			if c.PersonName == "" {
				continue
			}
			if _, ok := seenSpeakers[c.PersonName]; ok {
				continue
			}
			seenSpeakers[c.PersonName] = struct{}{}
			doc.SpeakerNames = append(doc.SpeakerNames, c.PersonName)
		}
		doc.PresentationText = strings.Join(texts, "\n\n")
		doc.NumSpeakers = len(doc.SpeakerNames)

		docs = append(docs, doc)
	}
	return docs
}

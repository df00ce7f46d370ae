// Package tabular reads and writes the pipeline's record tables as .xlsx
// workbooks. Columns are addressed by fixed header names; columns the
// pipeline does not interpret round-trip verbatim through Component.Extra.
package tabular

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/halcyonbridge/earnings-sentiment/transcript"
)

const sheetName = "Sheet1"

// listSep joins list-valued cells (speaker names, per-speech word counts).
const listSep = "|"

var componentHeaders = []string{
	"company_id", "company_name", "transcript_id", "component_order",
	"headline", "event_date", "event_time", "event_type",
	"speaker_type", "component_type", "person_id", "person_name",
	"text", "word_count",
}

var eventDocumentHeaders = []string{
	"company_id", "company_name", "transcript_id",
	"headline", "event_date", "event_time", "event_type",
	"presentation_text", "total_word_count", "num_speeches",
	"speech_word_counts", "speaker_names", "num_speakers",
}

// ReadComponents loads a component table. A missing file is reported with
// fs.ErrNotExist in the chain so callers can name the prerequisite stage.
func ReadComponents(path string) ([]transcript.Component, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, fmt.Errorf("ReadComponents: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("ReadComponents: %s has no header row", path)
	}

	header := rows[0]
	known := make(map[string]int, len(componentHeaders))
	for _, h := range componentHeaders {
		known[h] = -1
	}
	var extraCols []int
	for i, h := range header {
		name := strings.TrimSpace(h)
		if _, ok := known[name]; ok {
			known[name] = i
		} else if name != "" {
			extraCols = append(extraCols, i)
		}
	}
	for _, h := range []string{"company_id", "transcript_id", "component_order", "headline", "event_date", "text"} {
		if known[h] == -1 {
			return nil, fmt.Errorf("ReadComponents: %s is missing required column %q", path, h)
		}
	}

	cell := func(row []string, idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	out := make([]transcript.Component, 0, len(rows)-1)
	for n, row := range rows[1:] {
		c := transcript.Component{
			CompanyName:   cell(row, known["company_name"]),
			Headline:      cell(row, known["headline"]),
			EventDate:     cell(row, known["event_date"]),
			EventTime:     cell(row, known["event_time"]),
			EventType:     cell(row, known["event_type"]),
			SpeakerType:   cell(row, known["speaker_type"]),
			ComponentType: cell(row, known["component_type"]),
			PersonName:    cell(row, known["person_name"]),
			Text:          cell(row, known["text"]),
		}
		var err error
		if c.CompanyID, err = parseInt64(cell(row, known["company_id"])); err != nil {
			return nil, fmt.Errorf("ReadComponents: row %d company_id: %w", n+2, err)
		}
		if c.TranscriptID, err = parseInt64(cell(row, known["transcript_id"])); err != nil {
			return nil, fmt.Errorf("ReadComponents: row %d transcript_id: %w", n+2, err)
		}
		order, err := parseInt(cell(row, known["component_order"]))
		if err != nil {
			return nil, fmt.Errorf("ReadComponents: row %d component_order: %w", n+2, err)
		}
		c.ComponentOrder = order
		// person_id and word_count may be blank in partner exports.
		c.PersonID, _ = parseInt64(cell(row, known["person_id"]))
		if wc := cell(row, known["word_count"]); wc != "" {
			if c.WordCount, err = parseInt(wc); err != nil {
				return nil, fmt.Errorf("ReadComponents: row %d word_count: %w", n+2, err)
			}
		} else {
			c.WordCount = transcript.CountWords(c.Text)
		}

		for _, i := range extraCols {
			v := cell(row, i)
			if v == "" {
				continue
			}
			if c.Extra == nil {
				c.Extra = make(map[string]string)
			}
			c.Extra[strings.TrimSpace(header[i])] = v
		}
		out = append(out, c)
	}
	return out, nil
}

// WriteComponents writes a component table, preserving passthrough columns
// after the known ones.
func WriteComponents(path string, components []transcript.Component) error {
	extraNames := collectExtraNames(components)
	header := append(append([]string(nil), componentHeaders...), extraNames...)

	rows := make([][]any, 0, len(components))
	for _, c := range components {
		// Late-derive missing word counts so the column is populated no matter
		// where the record came from.
		wordCount := c.WordCount
		if wordCount == 0 && c.Text != "" {
			wordCount = transcript.CountWords(c.Text)
		}
		row := []any{
			c.CompanyID, c.CompanyName, c.TranscriptID, c.ComponentOrder,
			c.Headline, c.EventDate, c.EventTime, c.EventType,
			c.SpeakerType, c.ComponentType, c.PersonID, c.PersonName,
			c.Text, wordCount,
		}
		for _, name := range extraNames {
			row = append(row, c.Extra[name])
		}
		rows = append(rows, row)
	}

	if err := writeRows(path, header, rows); err != nil {
		return fmt.Errorf("WriteComponents: %w", err)
	}
	return nil
}

// ReadEventDocuments loads an aggregated event table.
func ReadEventDocuments(path string) ([]transcript.EventDocument, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, fmt.Errorf("ReadEventDocuments: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("ReadEventDocuments: %s has no header row", path)
	}

	cols := make(map[string]int, len(eventDocumentHeaders))
	for _, h := range eventDocumentHeaders {
		cols[h] = -1
	}
	for i, h := range rows[0] {
		name := strings.TrimSpace(h)
		if _, ok := cols[name]; ok {
			cols[name] = i
		}
	}
	for _, h := range []string{"company_id", "transcript_id", "presentation_text"} {
		if cols[h] == -1 {
			return nil, fmt.Errorf("ReadEventDocuments: %s is missing required column %q", path, h)
		}
	}

	cell := func(row []string, idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	out := make([]transcript.EventDocument, 0, len(rows)-1)
	for n, row := range rows[1:] {
		d := transcript.EventDocument{
			CompanyName:      cell(row, cols["company_name"]),
			Headline:         cell(row, cols["headline"]),
			EventDate:        cell(row, cols["event_date"]),
			EventTime:        cell(row, cols["event_time"]),
			EventType:        cell(row, cols["event_type"]),
			PresentationText: cell(row, cols["presentation_text"]),
		}
		var err error
		if d.CompanyID, err = parseInt64(cell(row, cols["company_id"])); err != nil {
			return nil, fmt.Errorf("ReadEventDocuments: row %d company_id: %w", n+2, err)
		}
		if d.TranscriptID, err = parseInt64(cell(row, cols["transcript_id"])); err != nil {
			return nil, fmt.Errorf("ReadEventDocuments: row %d transcript_id: %w", n+2, err)
		}
		d.TotalWordCount, _ = parseInt(cell(row, cols["total_word_count"]))
		d.NumSpeeches, _ = parseInt(cell(row, cols["num_speeches"]))
		d.NumSpeakers, _ = parseInt(cell(row, cols["num_speakers"]))
		d.SpeechWordCounts = splitInts(cell(row, cols["speech_word_counts"]))
		d.SpeakerNames = splitList(cell(row, cols["speaker_names"]))
		out = append(out, d)
	}
	return out, nil
}

// WriteEventDocuments writes an aggregated event table.
func WriteEventDocuments(path string, docs []transcript.EventDocument) error {
	rows := make([][]any, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, []any{
			d.CompanyID, d.CompanyName, d.TranscriptID,
			d.Headline, d.EventDate, d.EventTime, d.EventType,
			d.PresentationText, d.TotalWordCount, d.NumSpeeches,
			joinInts(d.SpeechWordCounts), strings.Join(d.SpeakerNames, listSep), d.NumSpeakers,
		})
	}
	if err := writeRows(path, eventDocumentHeaders, rows); err != nil {
		return fmt.Errorf("WriteEventDocuments: %w", err)
	}
	return nil
}

// WriteTable writes an arbitrary table with the given header. Result tables
// use this so the sentiment package does not need its own workbook plumbing.
func WriteTable(path string, header []string, rows [][]any) error {
	if err := writeRows(path, header, rows); err != nil {
		return fmt.Errorf("WriteTable: %w", err)
	}
	return nil
}

func readRows(path string) ([][]string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows of %s: %w", path, err)
	}
	return rows, nil
}

func writeRows(path string, header []string, rows [][]any) error {
	if path == "" {
		return errors.New("path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir output dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name for row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(sheetName, cellName, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	// Write to a temp file in the target dir, then rename, so a checkpoint
	// interrupted mid-save never clobbers the previous checkpoint.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp_table_*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpName) }()

	if err := f.SaveAs(tmpName); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func collectExtraNames(components []transcript.Component) []string {
	seen := make(map[string]struct{})
	for _, c := range components {
		for name := range c.Extra {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseInt64(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty cell")
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty cell")
	}
	return strconv.Atoi(s)
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, listSep)
}

func splitInts(s string) []int {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func joinInts(in []int) string {
	parts := make([]string, 0, len(in))
	for _, n := range in {
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, listSep)
}

package chunker

import (
	"fmt"
	"strings"

	"groundflow/internal/extract"
	"groundflow/internal/models"
)

// Window bounds, in whitespace-token units. Configured values are clamped
// into these bands so every corpus stays within the retrievable excerpt size.
const (
	minWindowTokens  = 250
	maxWindowTokens  = 450
	minOverlapTokens = 30
	maxOverlapTokens = 60
)

// Config controls the sliding-window pass over oversized sections.
type Config struct {
	// WindowTokens is the target chunk size. Zero means the default.
	WindowTokens int
	// OverlapTokens is the number of tokens shared by consecutive windows of
	// the same section. Zero means the default.
	OverlapTokens int
	// MinSectionTokens: sections at or below this size are kept whole.
	MinSectionTokens int
}

func (c Config) normalized() Config {
	c.WindowTokens = clamp(c.WindowTokens, minWindowTokens, maxWindowTokens, 350)
	c.OverlapTokens = clamp(c.OverlapTokens, minOverlapTokens, maxOverlapTokens, 45)
	if c.MinSectionTokens <= 0 {
		c.MinSectionTokens = c.WindowTokens
	}
	return c
}

func clamp(v, lo, hi, def int) int {
	if v == 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Stats counts what the chunker dropped rather than produced.
type Stats struct {
	DroppedSections int
}

// Chunk splits a document along its section boundaries, windowing oversized
// sections. Chunk ids are positional (doc:section:ordinal), so running the
// same input twice yields byte-identical ids and text; a section that
// normalizes to empty text is dropped and counted, never retried.
func Chunk(doc models.Document, cfg Config) ([]models.Chunk, Stats, error) {
	if strings.TrimSpace(doc.DocID) == "" {
		return nil, Stats{}, fmt.Errorf("document %q: missing doc id", doc.SourcePath)
	}
	if len(doc.Sections) == 0 {
		return nil, Stats{}, fmt.Errorf("document %s: no sections to chunk", doc.DocID)
	}
	cfg = cfg.normalized()

	var stats Stats
	out := make([]models.Chunk, 0, len(doc.Sections))
	for _, sec := range doc.Sections {
		text := extract.NormalizeWS(sec.Text)
		if text == "" {
			stats.DroppedSections++
			continue
		}
		ordinal := 0
		for _, part := range windows(text, cfg.WindowTokens, cfg.OverlapTokens, cfg.MinSectionTokens) {
			out = append(out, models.Chunk{
				ChunkID:    fmt.Sprintf("%s:%s:%d", doc.DocID, sec.Name, ordinal),
				DocID:      doc.DocID,
				SourcePath: doc.SourcePath,
				Section:    sec.Name,
				Ordinal:    ordinal,
				Text:       part,
				Status:     doc.Status,
				Version:    doc.Version,
				Priority:   doc.Priority,
				Topic:      doc.Topic,
			})
			ordinal++
		}
	}
	return out, stats, nil
}

// windows slides a fixed token window over text. Text at or below the keep
// threshold is returned whole. The final window is never shorter than the
// overlap alone: the start position only advances, so every token appears in
// at least one window and consecutive windows share exactly `overlap` tokens.
func windows(text string, window, overlap, keepWhole int) []string {
	tokens := strings.Fields(text)
	if len(tokens) <= keepWhole || len(tokens) <= window {
		return []string{text}
	}
	step := window - overlap
	out := make([]string, 0, (len(tokens)+step-1)/step)
	for start := 0; start < len(tokens); start += step {
		end := start + window
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return out
}

package qc

import (
	"sort"
	"strings"

	"groundflow/internal/models"
)

// Thresholds configure the length warnings. Blocking checks (duplicate ids,
// empty text) have no knobs: they always fail the corpus.
type Thresholds struct {
	// MinChars flags chunks shorter than this, except exempt sections.
	MinChars int
	// MaxChars flags chunks longer than this.
	MaxChars int
	// ExemptSections are structurally atomic sections (titles) that are
	// allowed to be short.
	ExemptSections []string
}

func (t Thresholds) withDefaults() Thresholds {
	if t.MinChars <= 0 {
		t.MinChars = 50
	}
	if t.MaxChars <= 0 {
		t.MaxChars = 5000
	}
	if t.ExemptSections == nil {
		t.ExemptSections = []string{"title"}
	}
	return t
}

func (t Thresholds) exempt(section string) bool {
	for _, s := range t.ExemptSections {
		if strings.EqualFold(s, section) {
			return true
		}
	}
	return false
}

// Validate inspects one chunk corpus snapshot and produces its immutable QC
// report. Duplicate chunk ids or empty text mean a broken extraction and fail
// the verdict outright; length outliers are recorded as warnings only, since
// short titles and long tables are expected content.
func Validate(chunks []models.Chunk, th Thresholds) models.QCReport {
	th = th.withDefaults()

	report := models.QCReport{
		Total:    len(chunks),
		Sections: map[string]int{},
	}

	seen := map[string]int{}
	lengths := make([]int, 0, len(chunks))
	for _, c := range chunks {
		if c.ChunkID == "" {
			// A missing id can collide with anything; treat as duplicate.
			report.DuplicateIDs++
		} else {
			seen[c.ChunkID]++
		}

		section := c.Section
		if section == "" {
			section = "?"
		}
		report.Sections[section]++

		text := strings.TrimSpace(c.Text)
		if text == "" {
			report.EmptyText++
		}
		n := len([]rune(text))
		lengths = append(lengths, n)
		if n > 0 && n < th.MinChars && !th.exempt(c.Section) {
			report.TooShort++
		}
		if n > th.MaxChars {
			report.TooLong++
		}
	}
	for _, count := range seen {
		if count > 1 {
			report.DuplicateIDs += count - 1
		}
	}

	report.LengthStats = lengthStats(lengths)

	report.Verdict = models.VerdictPass
	if report.DuplicateIDs > 0 || report.EmptyText > 0 {
		report.Verdict = models.VerdictFail
	}
	return report
}

func lengthStats(lengths []int) models.LengthStats {
	if len(lengths) == 0 {
		return models.LengthStats{}
	}
	sorted := make([]int, len(lengths))
	copy(sorted, lengths)
	sort.Ints(sorted)
	return models.LengthStats{
		Min:    sorted[0],
		Median: median(sorted),
		P90:    sorted[int(0.90*float64(len(sorted)-1))],
		Max:    sorted[len(sorted)-1],
	}
}

func median(sorted []int) int {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

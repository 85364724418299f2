package util

import (
	"sort"
	"strings"
	"unicode"
)

// DisplaySnippet sanitizes and whitespace-normalizes s, then cuts it to a
// rune budget for log lines and API payloads.
func DisplaySnippet(s string, maxRunes int) string {
	return cleanCut(s, maxRunes)
}

// DisplayEvidenceSnippet picks the sentence(s) of a chunk most relevant to
// the query, for human inspection of search hits. Extraction output often
// glues words together across line breaks; boundaries are restored before
// matching.
func DisplayEvidenceSnippet(chunkText, query string, maxRunes int) string {
	text := cleanCut(chunkText, 4000)
	if text == "" {
		return ""
	}
	terms := queryTerms(query)
	sentences := sentencesOf(text)
	if len(terms) == 0 || len(sentences) == 0 {
		return cleanCut(text, maxRunes)
	}

	scores := make([]int, len(sentences))
	for i, s := range sentences {
		low := strings.ToLower(s)
		for _, t := range terms {
			if strings.Contains(low, t) {
				scores[i]++
			}
		}
	}
	order := make([]int, len(sentences))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if scores[order[a]] == scores[order[b]] {
			return len(sentences[order[a]]) < len(sentences[order[b]])
		}
		return scores[order[a]] > scores[order[b]]
	})

	best := strings.TrimSpace(sentences[order[0]])
	if best == "" {
		return cleanCut(text, maxRunes)
	}
	if len(order) > 1 && scores[order[1]] > 0 {
		best += " " + strings.TrimSpace(sentences[order[1]])
	}
	return cleanCut(best, maxRunes)
}

var snippetStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "to": {}, "of": {},
	"in": {}, "on": {}, "for": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"what": {}, "how": {}, "why": {}, "which": {}, "that": {}, "this": {},
	"these": {}, "those": {}, "with": {}, "from": {}, "across": {},
}

func queryTerms(q string) []string {
	seen := map[string]struct{}{}
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(cleanCut(q, 2000))) {
		f = strings.Trim(f, ",.;:!?()[]{}\"'`")
		if len(f) < 3 {
			continue
		}
		if _, stop := snippetStopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

func sentencesOf(s string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if x := strings.TrimSpace(b.String()); x != "" {
			out = append(out, x)
		}
		b.Reset()
	}
	for _, r := range s {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			flush()
		}
	}
	flush()
	return out
}

func cleanCut(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 420
	}
	s = SanitizeText(s)

	// Re-insert spaces lost at glued word boundaries (lowerUpper, letter/digit).
	in := []rune(s)
	out := make([]rune, 0, len(in)+len(in)/8)
	var prev rune
	for i, r := range in {
		if !unicode.IsPrint(r) {
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.IsSpace(r) && !unicode.IsPunct(r) {
			continue
		}
		if i > 0 && gluedBoundary(prev, r) && len(out) > 0 && !unicode.IsSpace(out[len(out)-1]) {
			out = append(out, ' ')
		}
		out = append(out, r)
		prev = r
	}

	trimmed := strings.Join(strings.Fields(string(out)), " ")
	runes := []rune(trimmed)
	if len(runes) > maxRunes {
		return strings.TrimSpace(string(runes[:maxRunes])) + "..."
	}
	return trimmed
}

func gluedBoundary(a, b rune) bool {
	switch {
	case unicode.IsLower(a) && unicode.IsUpper(b):
		return true
	case unicode.IsLetter(a) && unicode.IsDigit(b):
		return true
	case unicode.IsDigit(a) && unicode.IsLetter(b):
		return true
	}
	return false
}

package governance

import (
	"fmt"
	"sort"
	"strings"

	"groundflow/internal/models"
)

// Enforcer applies precedence resolution, banned-term exclusion, and bounded
// context assembly before generation, using one immutable RuleSet.
type Enforcer struct {
	rules         *RuleSet
	contextBudget int
}

func NewEnforcer(rules *RuleSet, contextBudget int) *Enforcer {
	if contextBudget <= 0 {
		contextBudget = 12000
	}
	return &Enforcer{rules: rules, contextBudget: contextBudget}
}

func (e *Enforcer) RuleSetVersion() string { return e.rules.Version }

// Context is the bounded evidence block handed to the generator, plus the
// only source identifiers the generator is permitted to cite.
type Context struct {
	Text           string
	AllowedSources []string
}

// ResolveEvidence filters candidate chunks down to the eligible evidence set.
// Precedence runs first: within a topic, obsolete chunks are dropped whenever
// any current chunk covers the same topic; an all-obsolete (or all-current)
// topic keeps only the highest priority, then highest version. Banned-term
// exclusion runs second, at the evidence level. The result is independent of
// input order.
func (e *Enforcer) ResolveEvidence(candidates []models.Chunk) ([]models.Chunk, []string) {
	byTopic := map[string][]models.Chunk{}
	var order []models.Chunk
	for _, c := range candidates {
		topic := strings.ToLower(c.Topic)
		if topic == "" {
			// Chunks without a topic never conflict with anything.
			order = append(order, c)
			continue
		}
		byTopic[topic] = append(byTopic[topic], c)
	}

	excluded := map[string]string{}
	for _, group := range byTopic {
		order = append(order, resolveTopic(group, excluded)...)
	}

	kept := make([]models.Chunk, 0, len(order))
	for _, c := range order {
		if term := e.bannedMatch(c.Text); term != "" {
			excluded[c.ChunkID] = "banned term: " + term
			continue
		}
		kept = append(kept, c)
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].ChunkID < kept[j].ChunkID })

	reasons := make([]string, 0, len(excluded))
	for id, why := range excluded {
		reasons = append(reasons, id+" ("+why+")")
	}
	sort.Strings(reasons)
	return kept, reasons
}

func resolveTopic(group []models.Chunk, excluded map[string]string) []models.Chunk {
	hasCurrent := false
	for _, c := range group {
		if c.Status == models.StatusCurrent {
			hasCurrent = true
			break
		}
	}
	if hasCurrent {
		kept := group[:0:0]
		for _, c := range group {
			if c.Status == models.StatusObsolete {
				excluded[c.ChunkID] = "superseded by current document"
				continue
			}
			kept = append(kept, c)
		}
		return kept
	}

	// No current chunk on this topic: priority then version break the tie.
	bestPriority, bestVersion := group[0].Priority, group[0].Version
	for _, c := range group[1:] {
		if c.Priority > bestPriority || (c.Priority == bestPriority && c.Version > bestVersion) {
			bestPriority, bestVersion = c.Priority, c.Version
		}
	}
	kept := group[:0:0]
	for _, c := range group {
		if c.Priority != bestPriority || c.Version != bestVersion {
			excluded[c.ChunkID] = "lower precedence version"
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func (e *Enforcer) bannedMatch(text string) string {
	lower := strings.ToLower(text)
	for _, term := range e.rules.Banned {
		if strings.Contains(lower, term) {
			return term
		}
	}
	return ""
}

// AssembleContext concatenates eligible chunks into a bounded context block.
// Each block carries the chunk id and source path; those ids become the
// allowed source set. Chunks past the character budget are dropped whole.
func (e *Enforcer) AssembleContext(evidence []models.Chunk) Context {
	var b strings.Builder
	allowed := make([]string, 0, len(evidence))
	for _, c := range evidence {
		block := fmt.Sprintf("[%s] (%s)\n%s\n\n", c.ChunkID, c.SourcePath, c.Text)
		if b.Len()+len(block) > e.contextBudget {
			break
		}
		b.WriteString(block)
		allowed = append(allowed, c.ChunkID)
	}
	return Context{Text: strings.TrimRight(b.String(), "\n"), AllowedSources: allowed}
}

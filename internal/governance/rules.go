package governance

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"groundflow/internal/extract"
	"groundflow/internal/models"
	"groundflow/internal/util"
)

// RuleSet is an immutable snapshot of the governance rule documents and the
// banned-term list. Each request binds to one RuleSet; refreshes build a new
// one and swap it in, they never mutate a set in flight.
type RuleSet struct {
	Version string
	Rules   []models.RuleDoc
	Banned  []string
}

// ParseRuleDoc reads one rule document: header fields id, version, status,
// priority, topic followed by a free-text body.
func ParseRuleDoc(raw string) (models.RuleDoc, error) {
	fields, body := extract.ParseHeader(util.SanitizeText(raw))

	rule := models.RuleDoc{Body: body}
	rule.ID = fields["id"]
	if rule.ID == "" {
		return models.RuleDoc{}, fmt.Errorf("rule document missing id header")
	}

	status := models.DocStatus(strings.ToLower(fields["status"]))
	if !status.Valid() {
		return models.RuleDoc{}, fmt.Errorf("rule %s: unknown status %q", rule.ID, fields["status"])
	}
	rule.Status = status

	if v := strings.TrimPrefix(fields["version"], "v"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return models.RuleDoc{}, fmt.Errorf("rule %s: bad version %q: %w", rule.ID, fields["version"], err)
		}
		rule.Version = n
	}
	if p := fields["priority"]; p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return models.RuleDoc{}, fmt.Errorf("rule %s: bad priority %q: %w", rule.ID, p, err)
		}
		rule.Priority = n
	}
	rule.Topic = strings.ToLower(fields["topic"])
	return rule, nil
}

// LoadRuleSet reads every .md and .txt rule document under ruleDir and the
// banned-term list at bannedPath (one term per line, # comments allowed).
// The set version is a content hash so audit records pin the exact rules used.
func LoadRuleSet(ruleDir, bannedPath string) (*RuleSet, error) {
	set := &RuleSet{}

	if ruleDir != "" {
		entries, err := os.ReadDir(ruleDir)
		if err != nil {
			return nil, fmt.Errorf("read rule dir: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if ext != ".md" && ext != ".txt" {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(ruleDir, entry.Name()))
			if err != nil {
				return nil, fmt.Errorf("read rule %s: %w", entry.Name(), err)
			}
			rule, err := ParseRuleDoc(string(raw))
			if err != nil {
				return nil, err
			}
			set.Rules = append(set.Rules, rule)
		}
	}

	if bannedPath != "" {
		raw, err := os.ReadFile(bannedPath)
		if err != nil {
			return nil, fmt.Errorf("read banned terms: %w", err)
		}
		for _, line := range strings.Split(string(raw), "\n") {
			term := strings.ToLower(strings.TrimSpace(line))
			if term == "" || strings.HasPrefix(term, "#") {
				continue
			}
			set.Banned = append(set.Banned, term)
		}
	}

	sort.Slice(set.Rules, func(i, j int) bool { return set.Rules[i].ID < set.Rules[j].ID })
	sort.Strings(set.Banned)
	set.Version = set.fingerprint()
	return set, nil
}

func (s *RuleSet) fingerprint() string {
	var b strings.Builder
	for _, r := range s.Rules {
		fmt.Fprintf(&b, "%s|%d|%s|%d|%s\n", r.ID, r.Version, r.Status, r.Priority, r.Topic)
	}
	b.WriteString(strings.Join(s.Banned, ","))
	return util.SHA256Hex([]byte(b.String()))[:16]
}

package governance

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Answer is the validated generator output.
type Answer struct {
	CorpusID  string   `json:"corpus_id"`
	Tags      []string `json:"tags"`
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources"`
	FinalLine string   `json:"final_line"`
}

// PolicyViolation rejects a generated answer. The raw output is never
// patched into compliance; the caller refuses instead.
type PolicyViolation struct {
	Reasons []string
}

func (e *PolicyViolation) Error() string {
	return "policy violation: " + strings.Join(e.Reasons, "; ")
}

// AnswerPolicy are the post-generation schema requirements.
type AnswerPolicy struct {
	MinWords           int
	MaxWords           int
	TagCount           int
	MinDistinctSources int
	FinalLine          string
}

func DefaultAnswerPolicy(finalLine string) AnswerPolicy {
	return AnswerPolicy{
		MinWords:           80,
		MaxWords:           120,
		TagCount:           3,
		MinDistinctSources: 2,
		FinalLine:          finalLine,
	}
}

var answerKeys = map[string]bool{
	"corpus_id":  true,
	"tags":       true,
	"answer":     true,
	"sources":    true,
	"final_line": true,
}

// ValidateAnswer parses raw generator output and checks it against the
// schema: exact key set, exactly TagCount tags, answer word count within
// band, sources a subset of allowedSources meeting the distinct minimum, and
// an exact final line. It returns *PolicyViolation on any failure.
func ValidateAnswer(raw string, allowedSources []string, policy AnswerPolicy) (*Answer, error) {
	var reasons []string

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, &PolicyViolation{Reasons: []string{fmt.Sprintf("output is not a JSON object: %v", err)}}
	}
	for k := range keys {
		if !answerKeys[k] {
			reasons = append(reasons, "unexpected key: "+k)
		}
	}
	for k := range answerKeys {
		if _, ok := keys[k]; !ok {
			reasons = append(reasons, "missing key: "+k)
		}
	}
	if len(reasons) > 0 {
		return nil, &PolicyViolation{Reasons: reasons}
	}

	var ans Answer
	if err := json.Unmarshal([]byte(raw), &ans); err != nil {
		return nil, &PolicyViolation{Reasons: []string{fmt.Sprintf("malformed field types: %v", err)}}
	}

	if ans.CorpusID == "" {
		reasons = append(reasons, "corpus_id is empty")
	}
	if len(ans.Tags) != policy.TagCount {
		reasons = append(reasons, fmt.Sprintf("tags must have exactly %d entries, got %d", policy.TagCount, len(ans.Tags)))
	}
	if n := len(strings.Fields(ans.Answer)); n < policy.MinWords || n > policy.MaxWords {
		reasons = append(reasons, fmt.Sprintf("answer must be %d-%d words, got %d", policy.MinWords, policy.MaxWords, n))
	}

	allowed := map[string]bool{}
	for _, s := range allowedSources {
		allowed[s] = true
	}
	distinct := map[string]bool{}
	for _, s := range ans.Sources {
		if !allowed[s] {
			reasons = append(reasons, "source not in allowed set: "+s)
			continue
		}
		distinct[s] = true
	}
	// The distinct-source floor only binds when the evidence offers that many.
	required := policy.MinDistinctSources
	if len(allowedSources) < required {
		required = len(allowedSources)
	}
	if len(distinct) < required {
		reasons = append(reasons, fmt.Sprintf("need at least %d distinct sources, got %d", required, len(distinct)))
	}

	if ans.FinalLine != policy.FinalLine {
		reasons = append(reasons, "final_line does not match the required phrase")
	}

	if len(reasons) > 0 {
		return nil, &PolicyViolation{Reasons: reasons}
	}
	return &ans, nil
}

package governance

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testFinalLine = "All statements above are grounded in the cited documents."

func validAnswerJSON(t *testing.T, sources []string) string {
	t.Helper()
	body := map[string]any{
		"corpus_id":  "corpus-1",
		"tags":       []string{"refunds", "policy", "returns"},
		"answer":     strings.Repeat("word ", 100),
		"sources":    sources,
		"final_line": testFinalLine,
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return string(raw)
}

func TestValidateAnswerAccepts(t *testing.T) {
	allowed := []string{"d1:body:0", "d2:body:0", "d3:body:0"}
	ans, err := ValidateAnswer(validAnswerJSON(t, allowed[:2]), allowed, DefaultAnswerPolicy(testFinalLine))
	require.NoError(t, err)
	require.Equal(t, "corpus-1", ans.CorpusID)
	require.Len(t, ans.Tags, 3)
	require.Equal(t, allowed[:2], ans.Sources)
}

func TestValidateAnswerRejectsForeignSource(t *testing.T) {
	allowed := []string{"d1:body:0", "d2:body:0"}
	raw := validAnswerJSON(t, []string{"d1:body:0", "wikipedia.org/refunds"})

	_, err := ValidateAnswer(raw, allowed, DefaultAnswerPolicy(testFinalLine))
	var pv *PolicyViolation
	require.ErrorAs(t, err, &pv)
	require.Contains(t, strings.Join(pv.Reasons, ";"), "wikipedia.org/refunds")
}

func TestValidateAnswerRejectsMissingAndExtraKeys(t *testing.T) {
	_, err := ValidateAnswer(`{"corpus_id":"c","tags":["a","b","c"],"confidence":0.9}`, nil, DefaultAnswerPolicy(testFinalLine))
	var pv *PolicyViolation
	require.ErrorAs(t, err, &pv)
	joined := strings.Join(pv.Reasons, ";")
	require.Contains(t, joined, "unexpected key: confidence")
	require.Contains(t, joined, "missing key: answer")
	require.Contains(t, joined, "missing key: sources")
	require.Contains(t, joined, "missing key: final_line")
}

func TestValidateAnswerRejectsWrongTagCount(t *testing.T) {
	body := map[string]any{
		"corpus_id":  "c",
		"tags":       []string{"only", "two"},
		"answer":     strings.Repeat("word ", 100),
		"sources":    []string{"d1:body:0", "d2:body:0"},
		"final_line": testFinalLine,
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	_, err = ValidateAnswer(string(raw), []string{"d1:body:0", "d2:body:0"}, DefaultAnswerPolicy(testFinalLine))
	var pv *PolicyViolation
	require.ErrorAs(t, err, &pv)
	require.Contains(t, strings.Join(pv.Reasons, ";"), "exactly 3")
}

func TestValidateAnswerRejectsWordCountOutOfBand(t *testing.T) {
	for _, words := range []int{40, 150} {
		body := map[string]any{
			"corpus_id":  "c",
			"tags":       []string{"a", "b", "c"},
			"answer":     strings.Repeat("word ", words),
			"sources":    []string{"d1:body:0", "d2:body:0"},
			"final_line": testFinalLine,
		}
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		_, err = ValidateAnswer(string(raw), []string{"d1:body:0", "d2:body:0"}, DefaultAnswerPolicy(testFinalLine))
		var pv *PolicyViolation
		require.ErrorAs(t, err, &pv)
	}
}

func TestValidateAnswerRejectsWrongFinalLine(t *testing.T) {
	body := map[string]any{
		"corpus_id":  "c",
		"tags":       []string{"a", "b", "c"},
		"answer":     strings.Repeat("word ", 100),
		"sources":    []string{"d1:body:0", "d2:body:0"},
		"final_line": "Trust me.",
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	_, err = ValidateAnswer(string(raw), []string{"d1:body:0", "d2:body:0"}, DefaultAnswerPolicy(testFinalLine))
	var pv *PolicyViolation
	require.ErrorAs(t, err, &pv)
	require.Contains(t, strings.Join(pv.Reasons, ";"), "final_line")
}

func TestValidateAnswerDistinctSourceFloorAdapts(t *testing.T) {
	// Only one allowed source exists: the two-source minimum cannot bind.
	allowed := []string{"d1:body:0"}
	ans, err := ValidateAnswer(validAnswerJSON(t, allowed), allowed, DefaultAnswerPolicy(testFinalLine))
	require.NoError(t, err)
	require.Equal(t, allowed, ans.Sources)

	// Two allowed sources exist but only one is cited: rejected.
	allowed = []string{"d1:body:0", "d2:body:0"}
	_, err = ValidateAnswer(validAnswerJSON(t, allowed[:1]), allowed, DefaultAnswerPolicy(testFinalLine))
	var pv *PolicyViolation
	require.ErrorAs(t, err, &pv)
	require.Contains(t, strings.Join(pv.Reasons, ";"), "distinct sources")
}

func TestValidateAnswerRejectsNonJSON(t *testing.T) {
	_, err := ValidateAnswer("The refund window is thirty days.", nil, DefaultAnswerPolicy(testFinalLine))
	var pv *PolicyViolation
	require.ErrorAs(t, err, &pv)
}

package ask

import (
	"context"
	"fmt"
	"strings"

	"groundflow/internal/providers"
)

// LLMGenerator adapts an LLM provider to the Generator contract, retrying
// transient failures with backoff.
type LLMGenerator struct {
	provider providers.LLMProvider
	backoff  providers.Backoff
	corpusID string
	policy   promptPolicy
}

type promptPolicy struct {
	MinWords  int
	MaxWords  int
	TagCount  int
	FinalLine string
}

func NewLLMGenerator(provider providers.LLMProvider, backoff providers.Backoff, corpusID string, minWords, maxWords, tagCount int, finalLine string) *LLMGenerator {
	return &LLMGenerator{
		provider: provider,
		backoff:  backoff,
		corpusID: corpusID,
		policy:   promptPolicy{MinWords: minWords, MaxWords: maxWords, TagCount: tagCount, FinalLine: finalLine},
	}
}

func (g *LLMGenerator) Generate(ctx context.Context, question, contextText string, allowedSources []string) (string, error) {
	prompt := g.buildPrompt(question, allowedSources)
	req := providers.GenerateRequest{
		Operation: "ask",
		Prompt:    prompt,
		Context:   []string{contextText},
	}

	var out string
	err := g.backoff.Do(ctx, func(ctx context.Context) error {
		resp, _, genErr := g.provider.Generate(ctx, req)
		if genErr != nil {
			return genErr
		}
		out = resp.Text
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generator call: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (g *LLMGenerator) buildPrompt(question string, allowedSources []string) string {
	var b strings.Builder
	b.WriteString("Answer strictly from the evidence blocks provided. Every factual claim must be supported by a cited block.\n")
	fmt.Fprintf(&b, "Respond with a single JSON object with exactly these keys: corpus_id (%q), tags (exactly %d strings), answer (%d-%d words), sources (ids actually used, chosen only from the allowed list), final_line (exactly %q).\n",
		g.corpusID, g.policy.TagCount, g.policy.MinWords, g.policy.MaxWords, g.policy.FinalLine)
	b.WriteString("Allowed sources: " + strings.Join(allowedSources, ", ") + "\n")
	b.WriteString("Question: " + question)
	return b.String()
}

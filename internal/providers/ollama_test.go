package providers

import "testing"

func TestResolveOllamaEmbedModelDefault(t *testing.T) {
	t.Setenv("GROUNDFLOW_OLLAMA_EMBED_MODEL", "")
	if got := resolveOllamaEmbedModel(""); got != "nomic-embed-text" {
		t.Fatalf("expected default nomic-embed-text, got %q", got)
	}
}

func TestResolveOllamaEmbedModelAlias(t *testing.T) {
	if got := resolveOllamaEmbedModel("bge"); got != "bge-small-en-v1.5" {
		t.Fatalf("unexpected model for bge alias: %q", got)
	}
	if got := resolveOllamaEmbedModel("custom-embed-model"); got != "custom-embed-model" {
		t.Fatalf("direct model name should pass through, got %q", got)
	}
}

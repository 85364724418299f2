package chunker

import (
	"fmt"
	"strings"
	"testing"

	"groundflow/internal/models"

	"github.com/stretchr/testify/require"
)

func wordText(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func testDoc(bodyTokens int) models.Document {
	return models.Document{
		DocID:      "doc1",
		SourcePath: "corpus/doc1.xml",
		Status:     models.StatusCurrent,
		Version:    1,
		Sections: []models.Section{
			{Name: "title", Text: "A short title"},
			{Name: "body", Text: wordText(bodyTokens)},
		},
	}
}

func TestChunkIsDeterministic(t *testing.T) {
	doc := testDoc(900)
	first, _, err := Chunk(doc, Config{})
	require.NoError(t, err)
	second, _, err := Chunk(doc, Config{})
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestShortSectionKeptWhole(t *testing.T) {
	chunks, _, err := Chunk(testDoc(100), Config{})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, "doc1:title:0", chunks[0].ChunkID)
	require.Equal(t, "A short title", chunks[0].Text)
	require.Equal(t, "doc1:body:0", chunks[1].ChunkID)
}

func TestWindowOverlap(t *testing.T) {
	cfg := Config{WindowTokens: 300, OverlapTokens: 50}
	chunks, _, err := Chunk(testDoc(700), cfg)
	require.NoError(t, err)

	var body []models.Chunk
	for _, c := range chunks {
		if c.Section == "body" {
			body = append(body, c)
		}
	}
	require.Equal(t, 3, len(body))
	for i, c := range body {
		require.Equal(t, fmt.Sprintf("doc1:body:%d", i), c.ChunkID)
		require.Equal(t, i, c.Ordinal)
	}

	// Consecutive windows of the same section share exactly the overlap.
	firstTokens := strings.Fields(body[0].Text)
	secondTokens := strings.Fields(body[1].Text)
	require.Len(t, firstTokens, 300)
	require.Equal(t, firstTokens[250:], secondTokens[:50])

	// Every token is covered.
	last := strings.Fields(body[len(body)-1].Text)
	require.Equal(t, "w699", last[len(last)-1])
}

func TestEmptySectionDroppedAndCounted(t *testing.T) {
	doc := models.Document{
		DocID:   "doc2",
		Status:  models.StatusCurrent,
		Version: 1,
		Sections: []models.Section{
			{Name: "abstract", Text: " \x00\t \n"},
			{Name: "body", Text: "usable text"},
		},
	}
	chunks, stats, err := Chunk(doc, Config{})
	require.NoError(t, err)
	require.Equal(t, 1, stats.DroppedSections)
	require.Len(t, chunks, 1)
	require.Equal(t, "doc2:body:0", chunks[0].ChunkID)
}

func TestChunkInheritsDocumentFields(t *testing.T) {
	doc := testDoc(10)
	doc.Status = models.StatusObsolete
	doc.Version = 3
	doc.Priority = 7
	doc.Topic = "reporting"
	chunks, _, err := Chunk(doc, Config{})
	require.NoError(t, err)
	for _, c := range chunks {
		require.Equal(t, models.StatusObsolete, c.Status)
		require.Equal(t, 3, c.Version)
		require.Equal(t, 7, c.Priority)
		require.Equal(t, "reporting", c.Topic)
		require.Equal(t, "corpus/doc1.xml", c.SourcePath)
	}
}

func TestMissingDocIDFails(t *testing.T) {
	_, _, err := Chunk(models.Document{Sections: []models.Section{{Name: "body", Text: "x"}}}, Config{})
	require.Error(t, err)
}

package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"groundflow/internal/models"
	"groundflow/internal/util"
)

// ParseHeader splits a governance-style text document into its key:value
// header lines and the free-text body. The header ends at the first blank
// line or at the first line that is not "key: value".
func ParseHeader(text string) (map[string]string, string) {
	lines := strings.Split(text, "\n")
	fields := map[string]string{}
	bodyStart := 0
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			bodyStart = i + 1
			break
		}
		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			bodyStart = i
			break
		}
		fields[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
		bodyStart = i + 1
	}
	return fields, strings.TrimSpace(strings.Join(lines[bodyStart:], "\n"))
}

// fromHeaderDoc reads a markdown or plain-text document whose leading lines
// declare id, status, version, priority, and topic. These are the same header
// conventions governance rule documents use.
func fromHeaderDoc(path string) (models.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("read document: %w", err)
	}
	fields, body := ParseHeader(util.SanitizeText(string(raw)))

	doc := models.Document{
		DocID:      fields["id"],
		SourcePath: path,
		Topic:      fields["topic"],
	}
	if doc.DocID == "" {
		name := filepath.Base(path)
		doc.DocID = strings.TrimSuffix(name, filepath.Ext(name))
	}
	if v := fields["status"]; v != "" {
		doc.Status = models.DocStatus(strings.ToLower(v))
	}
	if v := fields["version"]; v != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(v), "v"))
		if err != nil {
			return models.Document{}, fmt.Errorf("document %s: bad version %q", doc.DocID, v)
		}
		doc.Version = n
	}
	if v := fields["priority"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return models.Document{}, fmt.Errorf("document %s: bad priority %q", doc.DocID, v)
		}
		doc.Priority = n
	}

	if title := fields["title"]; title != "" {
		doc.Sections = append(doc.Sections, models.Section{Name: "title", Text: title})
	}
	body = NormalizeWS(body)
	if body != "" {
		doc.Sections = append(doc.Sections, models.Section{Name: "body", Text: body})
	}
	if len(doc.Sections) == 0 {
		return models.Document{}, util.ErrNoExtractableText
	}
	return doc, nil
}

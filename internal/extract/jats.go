package extract

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"groundflow/internal/models"
	"groundflow/internal/util"
)

// Body sections shorter than this are usually reference stubs or figure
// captions and are folded into the whole-article fallback instead.
const minSectionChars = 200

// fromArticleXML walks a JATS or OAI-PMH wrapped article and produces
// title/abstract/body sections. Namespaces vary per archive, so matching is
// done on local element names only.
func fromArticleXML(path string) (models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("open xml: %w", err)
	}
	defer f.Close()

	dec := xml.NewDecoder(f)

	var (
		title    string
		abstract string
		secs     []string
		allText  strings.Builder
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if title == "" && abstract == "" && len(secs) == 0 {
				return models.Document{}, fmt.Errorf("%w: %s: %v", util.ErrMalformedSource, filepath.Base(path), err)
			}
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "article-title":
				if title == "" {
					title = collectSubtree(dec, t)
				} else {
					_ = dec.Skip()
				}
			case "abstract":
				if abstract == "" {
					abstract = collectSubtree(dec, t)
				} else {
					_ = dec.Skip()
				}
			case "sec":
				if txt := collectSubtree(dec, t); len(txt) >= minSectionChars {
					secs = append(secs, txt)
				}
			}
		case xml.CharData:
			allText.WriteString(string(t))
			allText.WriteString(" ")
		}
	}

	body := NormalizeWS(strings.Join(secs, " "))
	if body == "" {
		body = NormalizeWS(allText.String())
	}

	doc := models.Document{
		DocID:      docIDFromFilename(path),
		SourcePath: path,
	}
	if title != "" {
		doc.Sections = append(doc.Sections, models.Section{Name: "title", Text: title})
	}
	if abstract != "" {
		doc.Sections = append(doc.Sections, models.Section{Name: "abstract", Text: abstract})
	}
	if body != "" {
		doc.Sections = append(doc.Sections, models.Section{Name: "body", Text: body})
	}
	if len(doc.Sections) == 0 {
		return models.Document{}, util.ErrNoExtractableText
	}
	return doc, nil
}

// collectSubtree gathers all character data under start, normalized.
func collectSubtree(dec *xml.Decoder, start xml.StartElement) string {
	depth := 1
	var b strings.Builder
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			b.WriteString(string(t))
			b.WriteString(" ")
		}
	}
	return NormalizeWS(b.String())
}

func docIDFromFilename(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.TrimPrefix(name, "PMC")
}

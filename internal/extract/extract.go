package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"groundflow/internal/models"
)

// Options carries defaults applied to documents whose source format does not
// declare its own governance header.
type Options struct {
	DefaultStatus  models.DocStatus
	DefaultVersion int
}

func (o Options) withDefaults() Options {
	if o.DefaultStatus == "" {
		o.DefaultStatus = models.StatusCurrent
	}
	if o.DefaultVersion <= 0 {
		o.DefaultVersion = 1
	}
	return o
}

// Document extracts a normalized, sectioned document from a source file.
// Supported formats: JATS/OAI article XML, PDF, and header-tagged text files
// (markdown or plain text with id/status/version header lines).
func Document(path string, opts Options) (models.Document, error) {
	opts = opts.withDefaults()
	var (
		doc models.Document
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		doc, err = fromArticleXML(path)
	case ".pdf":
		doc, err = fromPDF(path)
	case ".md", ".txt":
		doc, err = fromHeaderDoc(path)
	default:
		return models.Document{}, fmt.Errorf("%w: unsupported extension %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return models.Document{}, err
	}

	if doc.Status == "" {
		doc.Status = opts.DefaultStatus
	}
	if doc.Version <= 0 {
		doc.Version = opts.DefaultVersion
	}
	if !doc.Status.Valid() {
		return models.Document{}, fmt.Errorf("document %s: invalid status %q", doc.DocID, doc.Status)
	}
	return doc, nil
}

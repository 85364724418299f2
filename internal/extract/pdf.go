package extract

import (
	"fmt"
	"io"
	"os"
	"strings"

	"groundflow/internal/models"
	"groundflow/internal/util"

	"github.com/ledongthuc/pdf"
)

// fromPDF extracts the plain text of a PDF as a single body section. PDF text
// streams carry no reliable structural boundaries, so the chunker's window
// pass does the splitting. The doc id is the content hash, which keeps chunk
// ids stable for identical files regardless of filename.
func fromPDF(path string) (models.Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return models.Document{}, fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return models.Document{}, fmt.Errorf("read extracted text: %w", err)
	}
	text := NormalizeWS(buf.String())
	if text == "" {
		return models.Document{}, util.ErrNoExtractableText
	}

	docID, err := hashFile(path)
	if err != nil {
		return models.Document{}, err
	}
	return models.Document{
		DocID:      docID,
		SourcePath: path,
		Sections:   []models.Section{{Name: "body", Text: text}},
	}, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for hash: %w", err)
	}
	defer f.Close()
	sum, err := util.SHA256HexFromReader(f)
	if err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return sum[:16], nil
}

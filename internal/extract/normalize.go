package extract

import (
	"errors"
	"strings"

	"groundflow/internal/util"
)

var ErrUnsupportedFormat = errors.New("unsupported source format")

// NormalizeWS collapses all whitespace runs to single spaces and trims the
// ends, after stripping control characters the rest of the pipeline rejects.
func NormalizeWS(s string) string {
	return strings.Join(strings.Fields(util.SanitizeText(s)), " ")
}

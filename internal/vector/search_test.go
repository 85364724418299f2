package vector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToLiteral(t *testing.T) {
	lit := ToLiteral([]float32{0.5, -1, 0.25})
	require.True(t, strings.HasPrefix(lit, "["))
	require.True(t, strings.HasSuffix(lit, "]"))
	require.Equal(t, "[0.500000,-1.000000,0.250000]", lit)
}

func TestToLiteralEmpty(t *testing.T) {
	require.Equal(t, "[]", ToLiteral(nil))
}

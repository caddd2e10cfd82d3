package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medlens/rxchat/backend/internal/service/normalize"
)

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	raw := "  Dr. A  Sharma\r\n\r\n\r\nTab.\tParacetamol   500mg \n\n  1-0-1   x 5 days  \n"

	got, err := normalize.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "Dr. A Sharma\nTab. Paracetamol 500mg\n1-0-1 x 5 days", got)
}

func TestNormalizeStripsNonPrintable(t *testing.T) {
	raw := "\ufeffAmox\u200bicillin\x00 250\x07mg TDS"

	got, err := normalize.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "Amoxicillin 250mg TDS", got)
}

func TestNormalizeFixesEncoding(t *testing.T) {
	raw := "Ta\xffke \ufb01ve \uff4d\uff4c"

	got, err := normalize.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "Take five ml", got)
}

func TestNormalizeLineSeparators(t *testing.T) {
	got, err := normalize.Normalize("Cetirizine 10mg\u2028Azithromycin 500mg\rORS")
	require.NoError(t, err)
	assert.Equal(t, "Cetirizine 10mg\nAzithromycin 500mg\nORS", got)
}

func TestNormalizeEmptyInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "\n\t\r\n", "\x00\x01\u200b", "\xff\xfe"} {
		_, err := normalize.Normalize(raw)
		assert.ErrorIs(t, err, normalize.ErrEmptyInput, "input %q", raw)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Paracetamol 500mg twice daily",
		"  a\t\tb \n\n c  ",
		"e\u200d\u0301 accent split by a joiner",
		"\u2474 Ibuprofen \u2153 tab",
		"x\u00a8y",
		"line1\r\n\r\n  line2  \u3000 end",
		"Rx:\n1) Metformin 500 mg\n2) Atorvastatin 10 mg HS",
	}
	for _, in := range inputs {
		once, err := normalize.Normalize(in)
		require.NoError(t, err, "input %q", in)
		twice, err := normalize.Normalize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

package replicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	replicatego "github.com/replicate/replicate-go"
)

func TestExtractText_String(t *testing.T) {
	assert.Equal(t, "hello", extractText(replicatego.PredictionOutput("hello")))
}

func TestExtractText_StringSlice(t *testing.T) {
	assert.Equal(t, "hello world", extractText(replicatego.PredictionOutput([]string{"hello ", "world"})))
}

func TestExtractText_AnySliceFiltersNonStrings(t *testing.T) {
	out := extractText(replicatego.PredictionOutput([]any{"hello ", 42, "world"}))
	assert.Equal(t, "hello world", out)
}

func TestExtractText_FallsBackToFormatting(t *testing.T) {
	out := extractText(replicatego.PredictionOutput(42))
	assert.Equal(t, "42", out)
}

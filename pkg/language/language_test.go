package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetector(t *testing.T) {
	d, err := NewDetector([]string{"english", "Chinese"})
	require.NoError(t, err)

	assert.Equal(t, "en", d.Detect("The quick brown fox jumps over the lazy dog while the farmer watches."))
	assert.Equal(t, "zh", d.Detect("今天天气很好，我们一起去公园散步吧。"))
	assert.Equal(t, "", d.Detect("   "))
}

func TestDetector_AcceptsISOCodes(t *testing.T) {
	d, err := NewDetector([]string{"en", "de"})
	require.NoError(t, err)
	assert.Equal(t, "de", d.Detect("Der schnelle braune Fuchs springt über den faulen Hund und läuft davon."))
}

func TestDetector_SingleLanguage(t *testing.T) {
	d, err := NewDetector([]string{"english"})
	require.NoError(t, err)
	assert.Equal(t, "en", d.Detect("anything at all"))
}

func TestDetector_Disabled(t *testing.T) {
	d, err := NewDetector(nil)
	require.NoError(t, err)
	assert.Equal(t, "", d.Detect("hello there"))

	var nilDetector *Detector
	assert.Equal(t, "", nilDetector.Detect("hello there"))
}

func TestDetector_UnknownLanguage(t *testing.T) {
	_, err := NewDetector([]string{"klingon"})
	assert.Error(t, err)
}

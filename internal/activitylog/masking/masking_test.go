package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "sk_****wxyz", MaskSecret("sk_abcdefwxyz"))
}

func TestMaskSensitive(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"api_key": "sk_live_123456789",
		"term":    "bakery tokyo",
		"nested":  map[string]any{"Token": "abcdefgh", "status": 429},
		"":        "dropped",
	})
	assert.Equal(t, "sk_live_****6789", out["api_key"])
	assert.Equal(t, "bakery tokyo", out["term"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, "****efgh", nested["Token"])
	assert.Equal(t, 429, nested["status"])
	assert.NotContains(t, out, "")

	assert.Nil(t, MaskSensitive(nil))
}

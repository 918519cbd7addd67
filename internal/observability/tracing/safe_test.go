package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsPayloadKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/usage"),
		attribute.String("api_key", "sk-secret"),
		attribute.String("prompt", "tell me"),
		attribute.String("long", strings.Repeat("x", 1000)),
		attribute.Int("http.status_code", 200),
	)
	keys := make([]string, 0, len(attrs))
	for _, a := range attrs {
		keys = append(keys, string(a.Key))
	}
	assert.Equal(t, []string{"http.route", "long", "http.status_code"}, keys)
	assert.Len(t, attrs[1].Value.AsString(), maxAttributeValue)
}

func TestSafeErrorRedactsQuery(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	err := SafeError(errors.New("GET https://search.example/v1?key=abc failed"))
	assert.Equal(t, "GET https://search.example/v1?<redacted>", err.Error())
}

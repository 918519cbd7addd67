package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

const maxAttributeValue = 256

var forbiddenAttributeKeys = map[string]struct{}{
	"api_key":       {},
	"authorization": {},
	"prompt":        {},
	"body":          {},
	"content":       {},
	"email":         {},
}

// ExtractContext pulls an incoming trace context from carrier headers.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes drops credential or payload-bearing keys and truncates long values.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := forbiddenAttributeKeys[strings.ToLower(string(attr.Key))]; blocked {
			continue
		}
		if attr.Value.Type() == attribute.STRING {
			attr = attribute.String(string(attr.Key), truncate(attr.Value.AsString()))
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error whose message is bounded and free of query strings.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if idx := strings.Index(msg, "?"); idx >= 0 {
		msg = msg[:idx] + "?<redacted>"
	}
	return errors.New(truncate(msg))
}

func truncate(value string) string {
	if len(value) <= maxAttributeValue {
		return value
	}
	return value[:maxAttributeValue]
}

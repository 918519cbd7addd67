// Package extraction turns free-text AI completions into typed records. It
// never panics and never returns an error: callers branch on Result.OK.
package extraction

import (
	"fmt"

	"github.com/smallbiznis/prospector/internal/executor"
)

type Kind string

const (
	KindNoJSONFound           Kind = "NO_JSON_FOUND"
	KindMalformedJSON         Kind = "MALFORMED_JSON"
	KindFieldValidationFailed Kind = "FIELD_VALIDATION_FAILED"
	KindContentIncomplete     Kind = "CONTENT_INCOMPLETE"
	KindValidationRejected    Kind = "VALIDATION_REJECTED"
)

// Category maps a validator failure onto the shared call taxonomy.
func (k Kind) Category() executor.ErrorKind {
	switch k {
	case "":
		return executor.KindNone
	case KindValidationRejected:
		return executor.KindValidationRejected
	default:
		return executor.KindMalformedResponse
	}
}

type Diagnostics struct {
	Field    string `json:"field,omitempty"`
	Expected string `json:"expected,omitempty"`
	Found    string `json:"found,omitempty"`
	Excerpt  string `json:"excerpt,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (d Diagnostics) String() string {
	switch {
	case d.Field != "":
		return fmt.Sprintf("%s: expected %s, found %s", d.Field, d.Expected, d.Found)
	case d.Excerpt != "":
		return fmt.Sprintf("%s (excerpt: %q)", d.Message, d.Excerpt)
	}
	return d.Message
}

type Result[T any] struct {
	OK          bool
	Record      T
	Kind        Kind
	Diagnostics Diagnostics
}

func ok[T any](record T) Result[T] {
	return Result[T]{OK: true, Record: record}
}

func fail[T any](kind Kind, diag Diagnostics) Result[T] {
	return Result[T]{Kind: kind, Diagnostics: diag}
}

// Error renders a failed result for logs and activity records.
func (r Result[T]) Error() string {
	if r.OK {
		return ""
	}
	return string(r.Kind) + ": " + r.Diagnostics.String()
}

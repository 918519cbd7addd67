package extraction

import (
	"encoding/json"
	"strings"
)

type Variant struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ProposalRecord holds two alternative outreach drafts and the text for a
// contact form.
type ProposalRecord struct {
	VariantA        Variant `json:"variantA"`
	VariantB        Variant `json:"variantB"`
	ContactFormText string  `json:"contactFormText"`
}

// ValidateProposal extracts a ProposalRecord from an AI completion.
func ValidateProposal(text string) Result[ProposalRecord] {
	obj, kind, diag := parseObject(text)
	if kind != "" {
		return fail[ProposalRecord](kind, diag)
	}

	var rec ProposalRecord
	for _, v := range []struct {
		field string
		dst   *Variant
	}{
		{"variantA", &rec.VariantA},
		{"variantB", &rec.VariantB},
	} {
		raw, present := obj[v.field]
		if !present {
			return fail[ProposalRecord](KindFieldValidationFailed, Diagnostics{Field: v.field, Expected: "object", Found: "missing"})
		}
		inner, isObject := raw.(map[string]any)
		if !isObject {
			return fail[ProposalRecord](KindFieldValidationFailed, fieldError(v.field, "object", raw))
		}
		subject, d := stringField(inner, "subject")
		if d != nil {
			d.Field = v.field + ".subject"
			return fail[ProposalRecord](KindFieldValidationFailed, *d)
		}
		body, d := stringField(inner, "body")
		if d != nil {
			d.Field = v.field + ".body"
			return fail[ProposalRecord](KindFieldValidationFailed, *d)
		}
		*v.dst = Variant{Subject: subject, Body: body}
	}

	rec.ContactFormText = coerceText(obj["contactFormText"])

	for _, v := range []struct {
		field   string
		variant Variant
	}{
		{"variantA", rec.VariantA},
		{"variantB", rec.VariantB},
	} {
		if v.variant.Subject == "" || v.variant.Body == "" {
			return fail[ProposalRecord](KindContentIncomplete, Diagnostics{
				Field:    v.field,
				Expected: "non-empty subject and body",
				Found:    "empty",
			})
		}
	}
	return ok(rec)
}

// coerceText accepts a string, a list of strings joined by a space, or an
// object carrying text, body or message. Anything else yields "".
func coerceText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s, isString := item.(string); isString && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		return strings.Join(parts, " ")
	case map[string]any:
		for _, key := range []string{"text", "body", "message"} {
			if s, isString := t[key].(string); isString && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// ProposalJSON renders rec in the shape ValidateProposal accepts.
func ProposalJSON(rec ProposalRecord) string {
	b, _ := json.Marshal(rec)
	return string(b)
}

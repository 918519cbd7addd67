package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const maxExcerpt = 200

// FindJSONObject returns the first balanced {...} span of text. Braces inside
// JSON strings are ignored. When the first object never closes, the span
// from the first '{' to the last '}' is returned so parsing can report it.
func FindJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	if end := strings.LastIndexByte(text, '}'); end > start {
		return text[start : end+1], true
	}
	return "", false
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxExcerpt {
		return s
	}
	cut := maxExcerpt
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }

// parseObject runs the locate and parse stages shared by every schema.
func parseObject(text string) (map[string]any, Kind, Diagnostics) {
	span, found := FindJSONObject(text)
	if !found {
		return nil, KindNoJSONFound, Diagnostics{
			Message: "no JSON object in response",
			Excerpt: excerpt(text),
		}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(span)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, KindMalformedJSON, Diagnostics{
			Message: err.Error(),
			Excerpt: excerpt(span),
		}
	}
	return obj, "", Diagnostics{}
}

func shapeOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func fieldError(field, expected string, found any) Diagnostics {
	return Diagnostics{Field: field, Expected: expected, Found: shapeOf(found)}
}

// stringField accepts strings and numbers. Absent or null yields "".
func stringField(obj map[string]any, field string) (string, *Diagnostics) {
	v, present := obj[field]
	if !present || v == nil {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case json.Number:
		return t.String(), nil
	}
	d := fieldError(field, "string", v)
	return "", &d
}

// boolField accepts booleans and their common string spellings.
func boolField(obj map[string]any, field string) (bool, bool, *Diagnostics) {
	v, present := obj[field]
	if !present || v == nil {
		return false, false, nil
	}
	switch t := v.(type) {
	case bool:
		return t, true, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true, true, nil
		case "false", "no", "n", "0":
			return false, true, nil
		}
		if b, err := strconv.ParseBool(t); err == nil {
			return b, true, nil
		}
	}
	d := fieldError(field, "boolean", v)
	return false, false, &d
}

// stringListField accepts an array of strings or one comma separated string.
func stringListField(obj map[string]any, field string) ([]string, *Diagnostics) {
	v, present := obj[field]
	if !present || v == nil {
		return nil, nil
	}
	var out []string
	switch t := v.(type) {
	case string:
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	case []any:
		for _, item := range t {
			s, isString := item.(string)
			if !isString {
				d := fieldError(field, "array of strings", item)
				return nil, &d
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	}
	d := fieldError(field, "string or array", v)
	return nil, &d
}

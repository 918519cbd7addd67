package extraction

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Size classes ordered from smallest to largest.
const (
	SizeMicro      = "micro"
	SizeSmall      = "small"
	SizeMedium     = "medium"
	SizeLarge      = "large"
	SizeEnterprise = "enterprise"
)

var sizeOrder = []string{SizeMicro, SizeSmall, SizeMedium, SizeLarge, SizeEnterprise}

// SizeOrdinal returns the position of size on the ordinal scale, or -1.
func SizeOrdinal(size string) int {
	for i, s := range sizeOrder {
		if s == size {
			return i
		}
	}
	return -1
}

var headcountPattern = regexp.MustCompile(`\d[\d,.]*`)

// NormalizeSize maps free-form size descriptions onto a size class, or "".
func NormalizeSize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	for _, candidate := range []struct{ word, size string }{
		{"enterprise", SizeEnterprise},
		{"large", SizeLarge},
		{"medium", SizeMedium},
		{"mid", SizeMedium},
		{"small", SizeSmall},
		{"micro", SizeMicro},
		{"startup", SizeMicro},
	} {
		if strings.Contains(s, candidate.word) {
			return candidate.size
		}
	}

	if m := headcountPattern.FindString(s); m != "" {
		n, err := strconv.Atoi(strings.NewReplacer(",", "", ".", "").Replace(m))
		if err == nil {
			switch {
			case n < 10:
				return SizeMicro
			case n < 50:
				return SizeSmall
			case n < 250:
				return SizeMedium
			case n < 1000:
				return SizeLarge
			default:
				return SizeEnterprise
			}
		}
	}
	return ""
}

// CompanyRecord is a validated company extracted from a page.
type CompanyRecord struct {
	Name           string    `json:"companyName"`
	Category       string    `json:"industry,omitempty"`
	SizeClass      string    `json:"companySize,omitempty"`
	ContactFormURL string    `json:"contactFormUrl,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Email          string    `json:"email,omitempty"`
	IsListed       bool      `json:"isListed"`
	Description    string    `json:"description,omitempty"`
	Features       []string  `json:"features,omitempty"`
	IsStartup      bool      `json:"isStartup"`
	IsEnterprise   bool      `json:"isEnterprise"`
	DiscoveryTerm  string    `json:"-"`
	SourceURL      string    `json:"-"`
	CreatedAt      time.Time `json:"-"`
}

// Provenance is attached to every record that passes validation.
type Provenance struct {
	Term      string
	SourceURL string
	At        time.Time
}

var (
	placeholderNames = map[string]struct{}{
		"unknown": {}, "n/a": {}, "na": {}, "none": {}, "null": {}, "undefined": {},
		"company": {}, "company name": {}, "example": {}, "example company": {},
		"test": {}, "home": {}, "homepage": {}, "index": {}, "untitled": {},
		"error": {}, "forbidden": {}, "login": {}, "sign in": {},
		"403": {}, "404": {}, "500": {},
	}
	// Matched as substrings, so each entry must be a phrase no real company
	// name would contain.
	placeholderFragments = []string{
		"not found", "access denied", "403 forbidden", "404 error",
		"error page", "domain for sale", "just a moment", "captcha",
	}
)

// IsPlaceholderName reports names that are page chrome or error text rather
// than a company.
func IsPlaceholderName(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if _, ok := placeholderNames[n]; ok {
		return true
	}
	for _, frag := range placeholderFragments {
		if strings.Contains(n, frag) {
			return true
		}
	}
	return false
}

// ValidateCompany extracts a CompanyRecord from an AI completion.
func ValidateCompany(text string, prov Provenance) Result[CompanyRecord] {
	obj, kind, diag := parseObject(text)
	if kind != "" {
		return fail[CompanyRecord](kind, diag)
	}

	raw, present := obj["companyName"]
	if !present || raw == nil {
		return fail[CompanyRecord](KindFieldValidationFailed, Diagnostics{
			Field: "companyName", Expected: "string", Found: "missing",
		})
	}
	name, isString := raw.(string)
	if !isString {
		return fail[CompanyRecord](KindFieldValidationFailed, fieldError("companyName", "string", raw))
	}

	rec := CompanyRecord{
		Name:          strings.Join(strings.Fields(name), " "),
		DiscoveryTerm: prov.Term,
		SourceURL:     prov.SourceURL,
		CreatedAt:     prov.At,
	}

	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"industry", &rec.Category},
		{"companySize", &rec.SizeClass},
		{"contactFormUrl", &rec.ContactFormURL},
		{"phone", &rec.Phone},
		{"email", &rec.Email},
		{"description", &rec.Description},
	} {
		v, d := stringField(obj, f.name)
		if d != nil {
			return fail[CompanyRecord](KindFieldValidationFailed, *d)
		}
		*f.dst = v
	}
	rec.SizeClass = NormalizeSize(rec.SizeClass)

	features, d := stringListField(obj, "features")
	if d != nil {
		return fail[CompanyRecord](KindFieldValidationFailed, *d)
	}
	rec.Features = features

	isValid, validSet, d := boolField(obj, "isValidCompany")
	if d != nil {
		return fail[CompanyRecord](KindFieldValidationFailed, *d)
	}
	for _, f := range []struct {
		name string
		dst  *bool
	}{
		{"isListed", &rec.IsListed},
		{"isStartup", &rec.IsStartup},
		{"isEnterprise", &rec.IsEnterprise},
	} {
		v, _, d := boolField(obj, f.name)
		if d != nil {
			return fail[CompanyRecord](KindFieldValidationFailed, *d)
		}
		*f.dst = v
	}

	if rec.Name == "" {
		return fail[CompanyRecord](KindContentIncomplete, Diagnostics{Field: "companyName", Expected: "non-empty string", Found: "empty"})
	}
	if validSet && !isValid {
		return fail[CompanyRecord](KindValidationRejected, Diagnostics{Message: "response marked the page as not a company"})
	}
	if utf8.RuneCountInString(rec.Name) < 2 {
		return fail[CompanyRecord](KindValidationRejected, Diagnostics{Message: "company name too short", Excerpt: rec.Name})
	}
	if IsPlaceholderName(rec.Name) {
		return fail[CompanyRecord](KindValidationRejected, Diagnostics{Message: "company name is a placeholder", Excerpt: rec.Name})
	}
	return ok(rec)
}

// CompanyJSON renders rec in the shape ValidateCompany accepts. It doubles as
// the example object in extraction prompts.
func CompanyJSON(rec CompanyRecord) string {
	type wire struct {
		CompanyRecord
		IsValidCompany bool `json:"isValidCompany"`
	}
	b, _ := json.Marshal(wire{CompanyRecord: rec, IsValidCompany: true})
	return string(b)
}

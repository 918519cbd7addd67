package extraction

import (
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/prospector/internal/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProvenance = Provenance{
	Term:      "bakery jakarta",
	SourceURL: "https://acme.example",
	At:        time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
}

func TestFindJSONObject(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		want  string
		found bool
	}{
		{"embedded", `noise {"a":1} trailing`, `{"a":1}`, true},
		{"nested", `x {"a":{"b":2}} {"c":3}`, `{"a":{"b":2}}`, true},
		{"brace in string", `{"a":"}{"} tail`, `{"a":"}{"}`, true},
		{"escaped quote", `{"a":"say \"}\" ok"}`, `{"a":"say \"}\" ok"}`, true},
		{"none", `plain text answer`, ``, false},
		{"unclosed", `{"a": 1`, ``, false},
		{"unbalanced", `{"a": {"b": 1}`, `{"a": {"b": 1}`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, found := FindJSONObject(tc.in)
			assert.Equal(t, tc.found, found)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidateCompanyExtractsBracedSpan(t *testing.T) {
	res := ValidateCompany(`noise {"companyName":"Acme","isValidCompany":true} trailing`, testProvenance)
	require.True(t, res.OK, res.Error())
	assert.Equal(t, "Acme", res.Record.Name)
	assert.Equal(t, "bakery jakarta", res.Record.DiscoveryTerm)
	assert.Equal(t, "https://acme.example", res.Record.SourceURL)
}

func TestValidateCompanyNoJSON(t *testing.T) {
	res := ValidateCompany("I could not find any company on this page.", testProvenance)
	assert.False(t, res.OK)
	assert.Equal(t, KindNoJSONFound, res.Kind)
	assert.Equal(t, executor.KindMalformedResponse, res.Kind.Category())
}

func TestValidateCompanyMalformedJSONExcerptIsBounded(t *testing.T) {
	res := ValidateCompany(`{"companyName": "Acme", "description": "`+strings.Repeat("x", 500)+`" oops}`, testProvenance)
	assert.False(t, res.OK)
	assert.Equal(t, KindMalformedJSON, res.Kind)
	assert.LessOrEqual(t, len(res.Diagnostics.Excerpt), maxExcerpt)
	assert.NotEmpty(t, res.Diagnostics.Message)
}

func TestValidateCompanyFieldShapes(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		field string
	}{
		{"missing name", `{"industry":"retail"}`, "companyName"},
		{"name not string", `{"companyName":["Acme"]}`, "companyName"},
		{"phone object", `{"companyName":"Acme","phone":{"n":1}}`, "phone"},
		{"features numbers", `{"companyName":"Acme","features":[1,2]}`, "features"},
		{"flag object", `{"companyName":"Acme","isStartup":{}}`, "isStartup"},
		{"first malformed field wins", `{"companyName":"Acme","phone":[1],"industry":{},"isListed":[]}`, "industry"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ValidateCompany(tc.in, testProvenance)
			assert.False(t, res.OK)
			assert.Equal(t, KindFieldValidationFailed, res.Kind)
			assert.Equal(t, tc.field, res.Diagnostics.Field)
		})
	}
}

func TestValidateCompanyRejectsPlaceholderNames(t *testing.T) {
	for _, name := range []string{"404 Not Found", "Page not found", "Access Denied", "403 Forbidden", "404", "Unknown", "N/A", "A"} {
		t.Run(name, func(t *testing.T) {
			res := ValidateCompany(`{"companyName":"`+name+`","industry":"software","description":"A complete description","phone":"+62 21 555","contactFormUrl":"https://x.example/contact"}`, testProvenance)
			assert.False(t, res.OK)
			assert.Equal(t, KindValidationRejected, res.Kind)
			assert.Equal(t, executor.KindValidationRejected, res.Kind.Category())
		})
	}
}

func TestValidateCompanyKeepsNamesWithErrorTokens(t *testing.T) {
	for _, name := range []string{"Studio 404 Design", "Forbidden Planet Ltd", "Error Free Accounting"} {
		t.Run(name, func(t *testing.T) {
			res := ValidateCompany(`{"companyName":"`+name+`","industry":"retail"}`, testProvenance)
			require.True(t, res.OK, "kind=%s", res.Kind)
			assert.Equal(t, name, res.Record.Name)
		})
	}
}

func TestValidateCompanyRespectsInvalidFlag(t *testing.T) {
	res := ValidateCompany(`{"companyName":"Acme","isValidCompany":"false"}`, testProvenance)
	assert.Equal(t, KindValidationRejected, res.Kind)

	res = ValidateCompany(`{"companyName":"   "}`, testProvenance)
	assert.Equal(t, KindContentIncomplete, res.Kind)
}

func TestValidateCompanyCoercesShapes(t *testing.T) {
	res := ValidateCompany(`{"companyName":"  Acme   Corp ","companySize":"11-50 employees","phone":6221555,"features":"delivery, catering ,","isListed":"yes"}`, testProvenance)
	require.True(t, res.OK, res.Error())
	assert.Equal(t, "Acme Corp", res.Record.Name)
	assert.Equal(t, SizeSmall, res.Record.SizeClass)
	assert.Equal(t, "6221555", res.Record.Phone)
	assert.Equal(t, []string{"delivery", "catering"}, res.Record.Features)
	assert.True(t, res.Record.IsListed)
}

func TestCompanyRoundTrip(t *testing.T) {
	rec := CompanyRecord{
		Name:           "Acme Bakery",
		Category:       "food",
		SizeClass:      SizeMedium,
		ContactFormURL: "https://acme.example/contact",
		Phone:          "+62 21 555 0100",
		Email:          "hello@acme.example",
		IsListed:       true,
		Description:    "Artisanal bakery expanding to new cities.",
		Features:       []string{"catering", "online orders"},
		IsStartup:      true,
		DiscoveryTerm:  testProvenance.Term,
		SourceURL:      testProvenance.SourceURL,
		CreatedAt:      testProvenance.At,
	}
	res := ValidateCompany(CompanyJSON(rec), testProvenance)
	require.True(t, res.OK, res.Error())
	assert.Equal(t, rec, res.Record)
}

func TestNormalizeSize(t *testing.T) {
	assert.Equal(t, SizeMicro, NormalizeSize("5 people"))
	assert.Equal(t, SizeMedium, NormalizeSize("Mid-sized"))
	assert.Equal(t, SizeEnterprise, NormalizeSize("1,200 employees"))
	assert.Equal(t, SizeEnterprise, NormalizeSize("Large Enterprise"))
	assert.Equal(t, "", NormalizeSize("varies"))
	assert.Equal(t, 0, SizeOrdinal(SizeMicro))
	assert.Equal(t, -1, SizeOrdinal(""))
}

func TestValidateProposal(t *testing.T) {
	res := ValidateProposal("Here you go:\n" + `{"variantA":{"subject":"Hi","body":"Body A"},"variantB":{"subject":"Hello","body":"Body B"},"contactFormText":["Line one","Line two"]}`)
	require.True(t, res.OK, res.Error())
	assert.Equal(t, "Hi", res.Record.VariantA.Subject)
	assert.Equal(t, "Body B", res.Record.VariantB.Body)
	assert.Equal(t, "Line one Line two", res.Record.ContactFormText)
}

func TestValidateProposalFailures(t *testing.T) {
	res := ValidateProposal(`{"variantA":"text","variantB":{}}`)
	assert.Equal(t, KindFieldValidationFailed, res.Kind)
	assert.Equal(t, "variantA", res.Diagnostics.Field)
	assert.Equal(t, "string", res.Diagnostics.Found)

	res = ValidateProposal(`{"variantA":{"subject":"Hi","body":"x"}}`)
	assert.Equal(t, KindFieldValidationFailed, res.Kind)
	assert.Equal(t, "missing", res.Diagnostics.Found)

	res = ValidateProposal(`{"variantA":{"subject":"Hi","body":"x"},"variantB":{"subject":"","body":"y"}}`)
	assert.Equal(t, KindContentIncomplete, res.Kind)
	assert.Equal(t, "variantB", res.Diagnostics.Field)

	res = ValidateProposal(`{"variantA":{"subject":"  ","body":"x"},"variantB":{"subject":"s","body":"y"}}`)
	assert.Equal(t, KindContentIncomplete, res.Kind)
	assert.Equal(t, "variantA", res.Diagnostics.Field)

	res = ValidateProposal(`{"variantA":{"subject":"s","body":["x"]},"variantB":{"subject":"s","body":"y"}}`)
	assert.Equal(t, KindFieldValidationFailed, res.Kind)
	assert.Equal(t, "variantA.body", res.Diagnostics.Field)
}

func TestCoerceText(t *testing.T) {
	assert.Equal(t, "hello", coerceText(" hello "))
	assert.Equal(t, "a b", coerceText([]any{"a", 3, "b"}))
	assert.Equal(t, "from body", coerceText(map[string]any{"body": "from body", "message": "m"}))
	assert.Equal(t, "m", coerceText(map[string]any{"message": "m"}))
	assert.Equal(t, "", coerceText(map[string]any{"other": "x"}))
	assert.Equal(t, "", coerceText(42))
	assert.Equal(t, "", coerceText(nil))
}

func TestProposalRoundTrip(t *testing.T) {
	rec := ProposalRecord{
		VariantA:        Variant{Subject: "Quick idea", Body: "We help bakeries grow."},
		VariantB:        Variant{Subject: "Partnership", Body: "Let's talk logistics."},
		ContactFormText: "Hello, we would like to discuss a partnership.",
	}
	res := ValidateProposal(ProposalJSON(rec))
	require.True(t, res.OK, res.Error())
	assert.Equal(t, rec, res.Record)
}

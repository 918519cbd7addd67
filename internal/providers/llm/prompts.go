package llm

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/prospector/internal/extraction"
)

const extractionSystem = `You extract company profiles from web page text.
Reply with exactly one JSON object and nothing else.
Set "isValidCompany" to false when the page is not about a single real company
(directories, news articles, error pages, login walls).`

// ExtractionPrompt asks for a company profile of the page fetched for term.
func ExtractionPrompt(term, sourceURL, content string) Prompt {
	example := extraction.CompanyJSON(extraction.CompanyRecord{
		Name:           "Example Bakery Co.",
		Category:       "food manufacturing",
		SizeClass:      extraction.SizeSmall,
		ContactFormURL: "https://example.com/contact",
		Phone:          "+81-3-0000-0000",
		Email:          "info@example.com",
		Description:    "Regional bakery supplying cafes and hotels.",
		Features:       []string{"wholesale", "hiring"},
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Search term: %s\n", term)
	fmt.Fprintf(&b, "Page URL: %s\n\n", sourceURL)
	b.WriteString("Return an object shaped like this example:\n")
	b.WriteString(example)
	b.WriteString("\n\ncompanySize must be one of micro, small, medium, large, enterprise or a headcount.\n")
	b.WriteString("Page text:\n---\n")
	b.WriteString(content)
	b.WriteString("\n---")
	return Prompt{System: extractionSystem, User: b.String()}
}

const proposalSystem = `You write short, specific B2B outreach messages.
Reply with exactly one JSON object and nothing else.`

// ProposalSubject is the company a proposal is written for.
type ProposalSubject struct {
	Name           string
	Category       string
	Description    string
	Features       []string
	ContactFormURL string
	Explanation    string
}

func ProposalPrompt(s ProposalSubject) Prompt {
	example := extraction.ProposalJSON(extraction.ProposalRecord{
		VariantA:        extraction.Variant{Subject: "Subject line A", Body: "Message body A"},
		VariantB:        extraction.Variant{Subject: "Subject line B", Body: "Message body B"},
		ContactFormText: "Short text suitable for a contact form",
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\n", s.Name)
	if s.Category != "" {
		fmt.Fprintf(&b, "Industry: %s\n", s.Category)
	}
	if s.Description != "" {
		fmt.Fprintf(&b, "About: %s\n", s.Description)
	}
	if len(s.Features) > 0 {
		fmt.Fprintf(&b, "Notable: %s\n", strings.Join(s.Features, ", "))
	}
	if s.ContactFormURL != "" {
		b.WriteString("They accept enquiries through a contact form.\n")
	}
	if s.Explanation != "" {
		fmt.Fprintf(&b, "Why they fit: %s\n", s.Explanation)
	}
	b.WriteString("\nWrite two alternative outreach emails and one contact-form message. ")
	b.WriteString("Return an object shaped like this example:\n")
	b.WriteString(example)
	return Prompt{System: proposalSystem, User: b.String()}
}

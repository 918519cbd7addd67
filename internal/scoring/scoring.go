// Package scoring ranks extracted companies against the configured target.
// Scores are pure functions of the record and criteria.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/smallbiznis/prospector/internal/config"
	"github.com/smallbiznis/prospector/internal/extraction"
)

type Factor string

const (
	FactorSize         Factor = "size"
	FactorCategory     Factor = "category"
	FactorContact      Factor = "contact"
	FactorGrowth       Factor = "growth"
	FactorCompleteness Factor = "completeness"
)

// Factors lists every factor in explanation order.
func Factors() []Factor {
	return []Factor{FactorSize, FactorCategory, FactorContact, FactorGrowth, FactorCompleteness}
}

const (
	baseScore = 50
	anySize   = "any"
)

var factorRange = map[Factor][2]int{
	FactorSize:         {-15, 20},
	FactorCategory:     {-5, 15},
	FactorContact:      {2, 10},
	FactorGrowth:       {-3, 15},
	FactorCompleteness: {0, 5},
}

type Criteria struct {
	SizeClass      string                `json:"size_class"`
	Industry       string                `json:"industry"`
	Affinity       config.AffinityConfig `json:"affinity"`
	GrowthKeywords []string              `json:"growth_keywords"`
}

// CriteriaFrom picks the affinity table of the configured target industry.
func CriteriaFrom(cfg config.ScoringConfig) Criteria {
	industry := strings.ToLower(strings.TrimSpace(cfg.Target.Industry))
	return Criteria{
		SizeClass:      strings.ToLower(strings.TrimSpace(cfg.Target.SizeClass)),
		Industry:       industry,
		Affinity:       cfg.Affinity[industry],
		GrowthKeywords: cfg.GrowthKeywords,
	}
}

type Breakdown struct {
	Total      int               `json:"total"`
	Components map[Factor]int    `json:"components"`
	Notes      map[Factor]string `json:"notes"`
}

// Score computes base 50 plus five clamped factors, clamped to [0,100].
func Score(rec extraction.CompanyRecord, crit Criteria) Breakdown {
	b := Breakdown{
		Components: make(map[Factor]int, len(factorRange)),
		Notes:      make(map[Factor]string, len(factorRange)),
	}
	add := func(f Factor, v int, note string) {
		r := factorRange[f]
		b.Components[f] = clamp(v, r[0], r[1])
		b.Notes[f] = note
	}

	v, note := sizeFit(rec.SizeClass, crit.SizeClass)
	add(FactorSize, v, note)
	v, note = categoryFit(rec, crit)
	add(FactorCategory, v, note)
	v, note = contactRichness(rec)
	add(FactorContact, v, note)
	v, note = growthSignals(rec, crit.GrowthKeywords)
	add(FactorGrowth, v, note)
	v, note = completeness(rec)
	add(FactorCompleteness, v, note)

	total := baseScore
	for _, f := range Factors() {
		total += b.Components[f]
	}
	b.Total = clamp(total, 0, 100)
	return b
}

func sizeFit(candidate, target string) (int, string) {
	if target == "" || target == anySize || extraction.SizeOrdinal(target) < 0 {
		return 10, "any size accepted"
	}
	c := extraction.SizeOrdinal(candidate)
	if c < 0 {
		return 0, "size unknown"
	}
	gap := c - extraction.SizeOrdinal(target)
	if gap < 0 {
		gap = -gap
	}
	switch gap {
	case 0:
		return 20, "size matches " + target
	case 1:
		return 10, fmt.Sprintf("size %s is one step from %s", candidate, target)
	case 2:
		return 0, fmt.Sprintf("size %s is two steps from %s", candidate, target)
	case 3:
		return -10, fmt.Sprintf("size %s is three steps from %s", candidate, target)
	}
	return -15, fmt.Sprintf("size %s is far from %s", candidate, target)
}

func categoryFit(rec extraction.CompanyRecord, crit Criteria) (int, string) {
	text := strings.ToLower(rec.Category + " " + rec.Description)
	if kw := firstHit(text, crit.Affinity.High); kw != "" {
		return 15, fmt.Sprintf("high affinity with %s (%q)", crit.Industry, kw)
	}
	if kw := firstHit(text, crit.Affinity.Medium); kw != "" {
		return 5, fmt.Sprintf("medium affinity with %s (%q)", crit.Industry, kw)
	}
	if kw := firstHit(text, crit.Affinity.Low); kw != "" {
		return -5, fmt.Sprintf("low affinity with %s (%q)", crit.Industry, kw)
	}
	return 0, "no category match"
}

func contactRichness(rec extraction.CompanyRecord) (int, string) {
	form := strings.TrimSpace(rec.ContactFormURL) != ""
	phone := strings.TrimSpace(rec.Phone) != ""
	email := strings.TrimSpace(rec.Email) != ""
	switch {
	case form && phone:
		return 10, "contact form and phone"
	case form:
		return 8, "contact form only"
	case phone:
		return 6, "phone only"
	case email:
		return 4, "email only"
	}
	return 2, "no direct contact channel"
}

func growthSignals(rec extraction.CompanyRecord, vocabulary []string) (int, string) {
	text := strings.ToLower(rec.Description + " " + strings.Join(rec.Features, " "))
	hits := make([]string, 0)
	seen := make(map[string]struct{})
	for _, kw := range vocabulary {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		if strings.Contains(text, kw) {
			seen[kw] = struct{}{}
			hits = append(hits, kw)
		}
	}
	sort.Strings(hits)

	v := 0
	switch n := len(hits); {
	case n >= 3:
		v = 10
	case n >= 1:
		v = 5
	}
	note := fmt.Sprintf("%d growth signal(s)", len(hits))
	if len(hits) > 0 {
		note += " (" + strings.Join(hits, ", ") + ")"
	}
	if rec.IsStartup {
		v += 5
		note += ", early-stage"
	}
	if rec.IsEnterprise && len(hits) == 0 {
		v -= 3
		note += ", large enterprise without growth signals"
	}
	return v, note
}

func completeness(rec extraction.CompanyRecord) (int, string) {
	fields := []struct {
		value  string
		weight float64
	}{
		{rec.Category, 1},
		{rec.Description, 2},
		{rec.ContactFormURL, 1},
		{rec.Phone, 1},
		{rec.Email, 1},
		{strings.Join(rec.Features, ", "), 1},
	}
	points := 0.0
	populated := 0
	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		if v == "" {
			continue
		}
		populated++
		if len([]rune(v)) < 10 {
			points += f.weight / 2
		} else {
			points += f.weight
		}
	}
	points = math.Min(points, 5)
	return int(math.Round(points)), fmt.Sprintf("%d of %d fields populated", populated, len(fields))
}

// Explain renders one clause per factor.
func Explain(b Breakdown) string {
	clauses := make([]string, 0, len(Factors()))
	for _, f := range Factors() {
		clauses = append(clauses, fmt.Sprintf("%s %+d: %s", f, b.Components[f], b.Notes[f]))
	}
	return fmt.Sprintf("score %d = base %d; %s", b.Total, baseScore, strings.Join(clauses, "; "))
}

func firstHit(text string, keywords []string) string {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Scorer scores against the live scoring configuration.
type Scorer struct {
	holder *config.ScoringConfigHolder
}

func NewScorer(holder *config.ScoringConfigHolder) *Scorer {
	return &Scorer{holder: holder}
}

func (s *Scorer) Criteria() Criteria {
	return CriteriaFrom(s.holder.Get())
}

func (s *Scorer) Score(rec extraction.CompanyRecord) Breakdown {
	return Score(rec, s.Criteria())
}

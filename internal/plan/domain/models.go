package domain

import (
	"fmt"
	"strings"
	"time"

	usagedomain "github.com/smallbiznis/prospector/internal/usage/domain"
)

type Tier string

const (
	TierTrial    Tier = "trial"
	TierStarter  Tier = "starter"
	TierStandard Tier = "standard"
	TierPro      Tier = "pro"
)

// FallbackTier is the most restrictive paid tier. Expired trials and unknown
// tier identifiers resolve to it.
const FallbackTier = TierStarter

func KnownTiers() []Tier {
	return []Tier{TierTrial, TierStarter, TierStandard, TierPro}
}

func ParseTier(raw string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := catalog[t]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTier, raw)
}

type Feature string

const (
	FeatureSearch     Feature = "search"
	FeatureAIExtract  Feature = "ai_extract"
	FeatureAIProposal Feature = "ai_proposal"
)

// FeatureFor maps a metered operation to the flag that enables it.
func FeatureFor(op usagedomain.OperationType) Feature {
	return Feature(op)
}

// Limits is the immutable quota and feature set of one tier.
type Limits struct {
	Tier                Tier                                `json:"tier"`
	DailyQuota          map[usagedomain.OperationType]int64 `json:"daily_quota"`
	Features            map[Feature]bool                    `json:"features"`
	RequiresExternalKey bool                                `json:"requires_external_key"`
}

// QuotaFor returns the daily quota, or 0 when the tier has no entry.
func (l Limits) QuotaFor(op usagedomain.OperationType) int64 {
	return l.DailyQuota[op]
}

func (l Limits) Enabled(f Feature) bool {
	return l.Features[f]
}

var catalog = map[Tier]Limits{
	TierTrial: {
		Tier: TierTrial,
		DailyQuota: map[usagedomain.OperationType]int64{
			usagedomain.OperationSearch:     5,
			usagedomain.OperationAIExtract:  15,
			usagedomain.OperationAIProposal: 5,
		},
		Features: map[Feature]bool{
			FeatureSearch:     true,
			FeatureAIExtract:  true,
			FeatureAIProposal: true,
		},
	},
	TierStarter: {
		Tier: TierStarter,
		DailyQuota: map[usagedomain.OperationType]int64{
			usagedomain.OperationSearch:     10,
			usagedomain.OperationAIExtract:  20,
			usagedomain.OperationAIProposal: 0,
		},
		Features: map[Feature]bool{
			FeatureSearch:     true,
			FeatureAIExtract:  true,
			FeatureAIProposal: false,
		},
	},
	TierStandard: {
		Tier: TierStandard,
		DailyQuota: map[usagedomain.OperationType]int64{
			usagedomain.OperationSearch:     50,
			usagedomain.OperationAIExtract:  100,
			usagedomain.OperationAIProposal: 30,
		},
		Features: map[Feature]bool{
			FeatureSearch:     true,
			FeatureAIExtract:  true,
			FeatureAIProposal: true,
		},
	},
	TierPro: {
		Tier: TierPro,
		DailyQuota: map[usagedomain.OperationType]int64{
			usagedomain.OperationSearch:     200,
			usagedomain.OperationAIExtract:  500,
			usagedomain.OperationAIProposal: 150,
		},
		Features: map[Feature]bool{
			FeatureSearch:     true,
			FeatureAIExtract:  true,
			FeatureAIProposal: true,
		},
		RequiresExternalKey: true,
	},
}

// LimitsOf returns a copy of the tier's limits; unknown tiers get FallbackTier's.
func LimitsOf(t Tier) Limits {
	src, ok := catalog[t]
	if !ok {
		src = catalog[FallbackTier]
	}
	out := Limits{
		Tier:                src.Tier,
		DailyQuota:          make(map[usagedomain.OperationType]int64, len(src.DailyQuota)),
		Features:            make(map[Feature]bool, len(src.Features)),
		RequiresExternalKey: src.RequiresExternalKey,
	}
	for k, v := range src.DailyQuota {
		out.DailyQuota[k] = v
	}
	for k, v := range src.Features {
		out.Features[k] = v
	}
	return out
}

type TierState struct {
	Current        Tier       `json:"current"`
	Prior          *Tier      `json:"prior,omitempty"`
	OverrideActive bool       `json:"override_active"`
	TrialStartedAt *time.Time `json:"trial_started_at,omitempty"`
	TrialEndsAt    *time.Time `json:"trial_ends_at,omitempty"`
}

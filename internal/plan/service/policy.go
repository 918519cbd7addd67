package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/prospector/internal/clock"
	"github.com/smallbiznis/prospector/internal/config"
	plandomain "github.com/smallbiznis/prospector/internal/plan/domain"
	"github.com/smallbiznis/prospector/internal/providers/notify"
	"github.com/smallbiznis/prospector/internal/statestore"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyTier           = "plan:tier"
	keyOverridePrior  = "plan:override_prior"
	keyTrialStartedAt = "plan:trial_started_at"

	defaultTrialDays = 14
)

type PolicyParams struct {
	fx.In

	Store    statestore.Store
	Clock    clock.Clock
	Config   config.Config
	Log      *zap.Logger
	Notifier notify.Notifier `optional:"true"`
}

type Policy struct {
	store    statestore.Store
	clock    clock.Clock
	log      *zap.Logger
	notifier notify.Notifier
	trial    time.Duration
}

func NewPolicy(p PolicyParams) plandomain.Policy {
	days := p.Config.Plan.TrialDays
	if days <= 0 {
		days = defaultTrialDays
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notify.NoOp{}
	}
	return &Policy{
		store:    p.Store,
		clock:    p.Clock,
		log:      p.Log.Named("plan.service"),
		notifier: notifier,
		trial:    time.Duration(days) * 24 * time.Hour,
	}
}

func (s *Policy) ResolveTier(ctx context.Context) (plandomain.Tier, error) {
	raw, ok, err := s.store.Get(ctx, keyTier)
	if err != nil {
		return "", fmt.Errorf("read tier: %w", err)
	}

	if !ok || strings.TrimSpace(raw) == "" {
		now := s.clock.Now().UTC()
		if err := s.store.Set(ctx, keyTrialStartedAt, now.Format(time.RFC3339)); err != nil {
			return "", fmt.Errorf("record trial start: %w", err)
		}
		if err := s.store.Set(ctx, keyTier, string(plandomain.TierTrial)); err != nil {
			return "", fmt.Errorf("initialize tier: %w", err)
		}
		s.log.Info("trial started", zap.Time("trial_started_at", now))
		return plandomain.TierTrial, nil
	}

	tier := plandomain.Tier(strings.TrimSpace(raw))
	if tier != plandomain.TierTrial {
		return tier, nil
	}

	// An admin override onto the trial tier is left alone.
	if _, overridden, err := s.store.Get(ctx, keyOverridePrior); err == nil && overridden {
		return tier, nil
	}

	startedAt, ok := s.trialStartedAt(ctx)
	if !ok {
		now := s.clock.Now().UTC()
		if err := s.store.Set(ctx, keyTrialStartedAt, now.Format(time.RFC3339)); err != nil {
			return "", fmt.Errorf("record trial start: %w", err)
		}
		return tier, nil
	}

	if s.clock.Now().Before(startedAt.Add(s.trial)) {
		return tier, nil
	}

	if err := s.store.Set(ctx, keyTier, string(plandomain.FallbackTier)); err != nil {
		return "", fmt.Errorf("persist trial downgrade: %w", err)
	}
	s.log.Warn("trial expired, tier downgraded",
		zap.Time("trial_started_at", startedAt),
		zap.String("tier", string(plandomain.FallbackTier)),
	)
	_ = s.notifier.Notify(ctx, notify.Message{
		Title: "Trial expired",
		Body:  fmt.Sprintf("The trial ended and the account moved to the %s tier.", plandomain.FallbackTier),
		Level: notify.LevelWarning,
		Fields: map[string]string{
			"trial_started_at": startedAt.Format(time.RFC3339),
		},
	})
	return plandomain.FallbackTier, nil
}

func (s *Policy) trialStartedAt(ctx context.Context) (time.Time, bool) {
	raw, ok, err := s.store.Get(ctx, keyTrialStartedAt)
	if err != nil || !ok {
		return time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

func (s *Policy) LimitsFor(ctx context.Context, tier *plandomain.Tier) plandomain.Limits {
	if tier != nil {
		return plandomain.LimitsOf(*tier)
	}
	resolved, err := s.ResolveTier(ctx)
	if err != nil {
		s.log.Error("failed to resolve tier, applying fallback limits", zap.Error(err))
		return plandomain.LimitsOf(plandomain.FallbackTier)
	}
	return plandomain.LimitsOf(resolved)
}

func (s *Policy) SetTier(ctx context.Context, tier plandomain.Tier) error {
	if _, err := plandomain.ParseTier(string(tier)); err != nil {
		return err
	}
	if tier == plandomain.TierTrial {
		if _, ok := s.trialStartedAt(ctx); !ok {
			if err := s.store.Set(ctx, keyTrialStartedAt, s.clock.Now().UTC().Format(time.RFC3339)); err != nil {
				return err
			}
		}
	}
	if err := s.store.Set(ctx, keyTier, string(tier)); err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	s.log.Info("tier changed", zap.String("tier", string(tier)))
	return nil
}

func (s *Policy) PushTemporaryTier(ctx context.Context, tier plandomain.Tier) error {
	if _, err := plandomain.ParseTier(string(tier)); err != nil {
		return err
	}
	if _, ok, err := s.store.Get(ctx, keyOverridePrior); err != nil {
		return err
	} else if ok {
		return plandomain.ErrOverrideAlreadyActive
	}

	prior, err := s.ResolveTier(ctx)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, keyOverridePrior, string(prior)); err != nil {
		return fmt.Errorf("save prior tier: %w", err)
	}
	if err := s.store.Set(ctx, keyTier, string(tier)); err != nil {
		return fmt.Errorf("apply override: %w", err)
	}
	s.log.Info("temporary tier pushed", zap.String("tier", string(tier)), zap.String("prior", string(prior)))
	return nil
}

func (s *Policy) PopTemporaryTier(ctx context.Context) error {
	prior, ok, err := s.store.Get(ctx, keyOverridePrior)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := s.store.Set(ctx, keyTier, prior); err != nil {
		return fmt.Errorf("restore prior tier: %w", err)
	}
	if err := s.store.Delete(ctx, keyOverridePrior); err != nil {
		return fmt.Errorf("clear override: %w", err)
	}
	s.log.Info("temporary tier popped", zap.String("tier", prior))
	return nil
}

func (s *Policy) State(ctx context.Context) (plandomain.TierState, error) {
	current, err := s.ResolveTier(ctx)
	if err != nil {
		return plandomain.TierState{}, err
	}
	state := plandomain.TierState{Current: current}

	if raw, ok, err := s.store.Get(ctx, keyOverridePrior); err != nil {
		return plandomain.TierState{}, err
	} else if ok {
		prior := plandomain.Tier(raw)
		state.Prior = &prior
		state.OverrideActive = true
	}
	if started, ok := s.trialStartedAt(ctx); ok {
		ends := started.Add(s.trial)
		state.TrialStartedAt = &started
		state.TrialEndsAt = &ends
	}
	return state, nil
}

var _ plandomain.Policy = (*Policy)(nil)

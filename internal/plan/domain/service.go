package domain

import (
	"context"
	"errors"
)

type Policy interface {
	// ResolveTier initializes the trial on first use and downgrades an expired trial.
	ResolveTier(ctx context.Context) (Tier, error)
	// LimitsFor returns the limits of tier, or of the resolved tier when nil.
	LimitsFor(ctx context.Context, tier *Tier) Limits
	SetTier(ctx context.Context, tier Tier) error
	PushTemporaryTier(ctx context.Context, tier Tier) error
	// PopTemporaryTier restores the tier saved by the last push. Without a push it does nothing.
	PopTemporaryTier(ctx context.Context) error
	State(ctx context.Context) (TierState, error)
}

var (
	ErrUnknownTier           = errors.New("unknown_tier")
	ErrOverrideAlreadyActive = errors.New("override_already_active")
)

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/prospector/internal/clock"
	"github.com/smallbiznis/prospector/internal/config"
	plandomain "github.com/smallbiznis/prospector/internal/plan/domain"
	"github.com/smallbiznis/prospector/internal/providers/notify"
	"github.com/smallbiznis/prospector/internal/statestore"
	usagedomain "github.com/smallbiznis/prospector/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type notifierStub struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *notifierStub) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func setupPolicy(t *testing.T) (*Policy, *statestore.Memory, *clock.FakeClock, *notifierStub) {
	t.Helper()
	store := statestore.NewMemory()
	fake := clock.NewFakeClock(time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC))
	notifier := &notifierStub{}
	policy := NewPolicy(PolicyParams{
		Store:    store,
		Clock:    fake,
		Config:   config.Config{Plan: config.PlanConfig{TrialDays: 14}},
		Log:      zap.NewNop(),
		Notifier: notifier,
	})
	return policy.(*Policy), store, fake, notifier
}

func TestResolveTierStartsTrialOnFirstUse(t *testing.T) {
	ctx := context.Background()
	policy, store, _, _ := setupPolicy(t)

	tier, err := policy.ResolveTier(ctx)
	require.NoError(t, err)
	assert.Equal(t, plandomain.TierTrial, tier)

	started, ok, err := store.Get(ctx, keyTrialStartedAt)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2026-10-01T08:00:00Z", started)
}

func TestResolveTierDowngradesExpiredTrial(t *testing.T) {
	ctx := context.Background()
	policy, store, fake, notifier := setupPolicy(t)

	_, err := policy.ResolveTier(ctx)
	require.NoError(t, err)

	fake.Advance(13 * 24 * time.Hour)
	tier, err := policy.ResolveTier(ctx)
	require.NoError(t, err)
	assert.Equal(t, plandomain.TierTrial, tier)
	assert.Empty(t, notifier.msgs)

	fake.Advance(24 * time.Hour)
	tier, err = policy.ResolveTier(ctx)
	require.NoError(t, err)
	assert.Equal(t, plandomain.TierStarter, tier)

	persisted, _, _ := store.Get(ctx, keyTier)
	assert.Equal(t, "starter", persisted)
	require.Len(t, notifier.msgs, 1)
	assert.Equal(t, "Trial expired", notifier.msgs[0].Title)

	tier, err = policy.ResolveTier(ctx)
	require.NoError(t, err)
	assert.Equal(t, plandomain.TierStarter, tier)
	assert.Len(t, notifier.msgs, 1)
}

func TestLimitsForUnknownTierFallsBack(t *testing.T) {
	ctx := context.Background()
	policy, _, _, _ := setupPolicy(t)

	unknown := plandomain.Tier("platinum")
	limits := policy.LimitsFor(ctx, &unknown)
	assert.Equal(t, plandomain.TierStarter, limits.Tier)
	assert.False(t, limits.Enabled(plandomain.FeatureAIProposal))

	limits = policy.LimitsFor(ctx, nil)
	assert.Equal(t, plandomain.TierTrial, limits.Tier)
	assert.Equal(t, int64(5), limits.QuotaFor(usagedomain.OperationSearch))
	assert.Equal(t, int64(0), limits.QuotaFor(usagedomain.OperationType("unlisted")))
}

func TestLimitsOfReturnsCopy(t *testing.T) {
	limits := plandomain.LimitsOf(plandomain.TierPro)
	limits.DailyQuota[usagedomain.OperationSearch] = 1
	assert.Equal(t, int64(200), plandomain.LimitsOf(plandomain.TierPro).QuotaFor(usagedomain.OperationSearch))
	assert.True(t, plandomain.LimitsOf(plandomain.TierPro).RequiresExternalKey)
}

func TestSetTierRejectsUnknown(t *testing.T) {
	ctx := context.Background()
	policy, _, _, _ := setupPolicy(t)

	assert.ErrorIs(t, policy.SetTier(ctx, "gold"), plandomain.ErrUnknownTier)
	require.NoError(t, policy.SetTier(ctx, plandomain.TierStandard))

	tier, err := policy.ResolveTier(ctx)
	require.NoError(t, err)
	assert.Equal(t, plandomain.TierStandard, tier)
}

func TestPushPopTemporaryTier(t *testing.T) {
	ctx := context.Background()
	policy, _, _, _ := setupPolicy(t)
	require.NoError(t, policy.SetTier(ctx, plandomain.TierStarter))

	require.NoError(t, policy.PushTemporaryTier(ctx, plandomain.TierPro))
	state, err := policy.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, plandomain.TierPro, state.Current)
	require.NotNil(t, state.Prior)
	assert.Equal(t, plandomain.TierStarter, *state.Prior)
	assert.True(t, state.OverrideActive)

	assert.ErrorIs(t, policy.PushTemporaryTier(ctx, plandomain.TierStandard), plandomain.ErrOverrideAlreadyActive)

	require.NoError(t, policy.PopTemporaryTier(ctx))
	tier, err := policy.ResolveTier(ctx)
	require.NoError(t, err)
	assert.Equal(t, plandomain.TierStarter, tier)

	state, err = policy.State(ctx)
	require.NoError(t, err)
	assert.False(t, state.OverrideActive)
	assert.Nil(t, state.Prior)
}

func TestPopWithoutPushIsNoop(t *testing.T) {
	ctx := context.Background()
	policy, _, _, _ := setupPolicy(t)
	require.NoError(t, policy.SetTier(ctx, plandomain.TierStandard))

	require.NoError(t, policy.PopTemporaryTier(ctx))
	require.NoError(t, policy.PopTemporaryTier(ctx))

	tier, err := policy.ResolveTier(ctx)
	require.NoError(t, err)
	assert.Equal(t, plandomain.TierStandard, tier)
}

func TestOverrideOntoTrialIsNotDowngraded(t *testing.T) {
	ctx := context.Background()
	policy, _, fake, _ := setupPolicy(t)
	_, err := policy.ResolveTier(ctx)
	require.NoError(t, err)
	require.NoError(t, policy.SetTier(ctx, plandomain.TierPro))

	fake.Advance(30 * 24 * time.Hour)
	require.NoError(t, policy.PushTemporaryTier(ctx, plandomain.TierTrial))

	tier, err := policy.ResolveTier(ctx)
	require.NoError(t, err)
	assert.Equal(t, plandomain.TierTrial, tier)

	require.NoError(t, policy.PopTemporaryTier(ctx))
	tier, err = policy.ResolveTier(ctx)
	require.NoError(t, err)
	assert.Equal(t, plandomain.TierPro, tier)
}

func TestStateReportsTrialWindow(t *testing.T) {
	ctx := context.Background()
	policy, _, _, _ := setupPolicy(t)

	state, err := policy.State(ctx)
	require.NoError(t, err)
	require.NotNil(t, state.TrialStartedAt)
	require.NotNil(t, state.TrialEndsAt)
	assert.Equal(t, 14*24*time.Hour, state.TrialEndsAt.Sub(*state.TrialStartedAt))
}

// Package quota decides whether a metered operation may run and records its
// consumption.
//
// Check followed by Consume is not atomic. Two workers sharing a state store
// can overshoot a limit by up to workers-1 units; deployments run a single
// batch worker guarded by the scheduler lock.
package quota

import (
	"context"
	"fmt"
	"time"

	obsmetrics "github.com/smallbiznis/prospector/internal/observability/metrics"
	plandomain "github.com/smallbiznis/prospector/internal/plan/domain"
	usagedomain "github.com/smallbiznis/prospector/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Reason string

const (
	ReasonNone               Reason = ""
	ReasonFeatureDisabled    Reason = "FEATURE_DISABLED"
	ReasonDailyLimitExceeded Reason = "DAILY_LIMIT_EXCEEDED"
)

// Decision is the structured outcome of a quota check.
type Decision struct {
	Allowed      bool                      `json:"allowed"`
	Reason       Reason                    `json:"reason,omitempty"`
	Operation    usagedomain.OperationType `json:"operation"`
	Tier         plandomain.Tier           `json:"tier"`
	CurrentUsage int64                     `json:"current_usage"`
	Limit        int64                     `json:"limit"`
	Remaining    int64                     `json:"remaining"`
}

func (d Decision) Error() string {
	return fmt.Sprintf("quota denied for %s: %s (usage %d of %d)", d.Operation, d.Reason, d.CurrentUsage, d.Limit)
}

// ErrorType reports the taxonomy label used by job metrics.
func (d Decision) ErrorType() string { return "quota" }

type Params struct {
	fx.In

	Ledger  usagedomain.Ledger
	Policy  plandomain.Policy
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Gate struct {
	ledger  usagedomain.Ledger
	policy  plandomain.Policy
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

func NewGate(p Params) *Gate {
	return &Gate{
		ledger:  p.Ledger,
		policy:  p.Policy,
		log:     p.Log.Named("quota.gate"),
		metrics: p.Metrics,
	}
}

// Check reports whether amount more units of op fit today's limit. amount
// defaults to 1.
func (g *Gate) Check(ctx context.Context, op usagedomain.OperationType, amount int64) Decision {
	if amount <= 0 {
		amount = 1
	}
	limits := g.policy.LimitsFor(ctx, nil)
	current := g.ledger.Get(ctx, op, time.Time{})
	limit := limits.QuotaFor(op)

	d := Decision{
		Allowed:      true,
		Operation:    op,
		Tier:         limits.Tier,
		CurrentUsage: current,
		Limit:        limit,
		Remaining:    remaining(limit, current),
	}
	switch {
	case !limits.Enabled(plandomain.FeatureFor(op)):
		d.Allowed = false
		d.Reason = ReasonFeatureDisabled
	case current+amount > limit:
		d.Allowed = false
		d.Reason = ReasonDailyLimitExceeded
	}

	g.metrics.RecordQuotaDecision(ctx, string(op), string(d.Tier), d.Allowed, string(d.Reason))
	if !d.Allowed {
		g.log.Info("quota denied",
			zap.String("operation", string(op)),
			zap.String("tier", string(d.Tier)),
			zap.String("reason", string(d.Reason)),
			zap.Int64("current_usage", current),
			zap.Int64("limit", limit),
		)
	}
	return d
}

// Consume records amount units of op. Call it only after an allowing Check.
func (g *Gate) Consume(ctx context.Context, op usagedomain.OperationType, amount int64) int64 {
	return g.ledger.Increment(ctx, op, amount)
}

// Usage returns a fresh check for every known operation.
func (g *Gate) Usage(ctx context.Context) []Decision {
	out := make([]Decision, 0, len(usagedomain.KnownOperations()))
	for _, op := range usagedomain.KnownOperations() {
		out = append(out, g.Check(ctx, op, 1))
	}
	return out
}

// Guard checks, consumes and then invokes fn. A denial returns a non-nil
// Decision and fn is not called; fn's own error is returned unchanged.
func Guard[T any](ctx context.Context, g *Gate, op usagedomain.OperationType, amount int64, fn func(context.Context) (T, error)) (T, *Decision, error) {
	var zero T
	d := g.Check(ctx, op, amount)
	if !d.Allowed {
		return zero, &d, nil
	}
	g.Consume(ctx, op, amount)
	v, err := fn(ctx)
	return v, nil, err
}

func remaining(limit, current int64) int64 {
	if r := limit - current; r > 0 {
		return r
	}
	return 0
}

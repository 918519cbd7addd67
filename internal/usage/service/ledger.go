package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/prospector/internal/clock"
	"github.com/smallbiznis/prospector/internal/config"
	obsmetrics "github.com/smallbiznis/prospector/internal/observability/metrics"
	"github.com/smallbiznis/prospector/internal/statestore"
	usagedomain "github.com/smallbiznis/prospector/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyCounterPrefix = "usage:"
	keyAudit         = "usage:audit"
	keyHistory       = "usage:history"
	keyLastReset     = "usage:last_reset"

	defaultAuditCap   = 500
	defaultHistoryCap = 365
	maxStatisticsDays = 366
)

type LedgerParams struct {
	fx.In

	Store   statestore.Store
	Clock   clock.Clock
	Config  config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Ledger struct {
	store   statestore.Store
	clock   clock.Clock
	loc     *time.Location
	log     *zap.Logger
	metrics *obsmetrics.Metrics

	auditCap   int
	historyCap int
}

func NewLedger(p LedgerParams) (usagedomain.Ledger, error) {
	loc, err := loadLocation(p.Config.Usage.TimeZone)
	if err != nil {
		return nil, err
	}
	auditCap := p.Config.Usage.AuditCap
	if auditCap <= 0 {
		auditCap = defaultAuditCap
	}
	historyCap := p.Config.Usage.HistoryCap
	if historyCap <= 0 {
		historyCap = defaultHistoryCap
	}
	return &Ledger{
		store:      p.Store,
		clock:      p.Clock,
		loc:        loc,
		log:        p.Log.Named("usage.service"),
		metrics:    p.Metrics,
		auditCap:   auditCap,
		historyCap: historyCap,
	}, nil
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "utc") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("usage time zone %q: %w", name, err)
	}
	return loc, nil
}

func counterKey(day string, op usagedomain.OperationType) string {
	return keyCounterPrefix + day + ":" + string(op)
}

func (l *Ledger) Today() time.Time {
	now := l.clock.Now().In(l.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, l.loc)
}

func (l *Ledger) dayKey(day time.Time) string {
	if day.IsZero() {
		return l.Today().Format(usagedomain.DayLayout)
	}
	return day.In(l.loc).Format(usagedomain.DayLayout)
}

func (l *Ledger) Increment(ctx context.Context, op usagedomain.OperationType, amount int64) int64 {
	if amount <= 0 {
		amount = 1
	}
	key := counterKey(l.dayKey(time.Time{}), op)

	total, err := l.add(ctx, key, amount)
	if err != nil {
		l.log.Error("failed to increment usage counter",
			zap.String("operation", string(op)),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return 0
	}

	l.metrics.RecordUsageIncrement(ctx, string(op), amount)
	l.appendAudit(ctx, usagedomain.AuditEntry{
		At:        l.clock.Now().UTC(),
		Operation: op,
		Delta:     amount,
		Total:     total,
	})
	return total
}

func (l *Ledger) add(ctx context.Context, key string, amount int64) (int64, error) {
	if inc, ok := l.store.(statestore.Incrementer); ok {
		return inc.IncrBy(ctx, key, amount)
	}
	current, err := l.readCounter(ctx, key)
	if err != nil {
		return 0, err
	}
	next := current + amount
	if err := l.store.Set(ctx, key, strconv.FormatInt(next, 10)); err != nil {
		return 0, err
	}
	return next, nil
}

func (l *Ledger) readCounter(ctx context.Context, key string) (int64, error) {
	raw, ok, err := l.store.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s: %w", key, statestore.ErrNotInteger)
	}
	return v, nil
}

func (l *Ledger) Get(ctx context.Context, op usagedomain.OperationType, day time.Time) int64 {
	v, err := l.readCounter(ctx, counterKey(l.dayKey(day), op))
	if err != nil {
		l.log.Warn("failed to read usage counter", zap.String("operation", string(op)), zap.Error(err))
		return 0
	}
	return v
}

func (l *Ledger) GetAll(ctx context.Context, day time.Time) map[usagedomain.OperationType]int64 {
	counts := usagedomain.EmptyCounts()
	for op := range counts {
		counts[op] = l.Get(ctx, op, day)
	}
	return counts
}

func (l *Ledger) Reset(ctx context.Context, day time.Time) error {
	date := l.dayKey(day)
	counts := usagedomain.EmptyCounts()
	var active bool
	for op := range counts {
		v, err := l.readCounter(ctx, counterKey(date, op))
		if err != nil {
			return fmt.Errorf("read %s counters: %w", date, err)
		}
		counts[op] = v
		if v != 0 {
			active = true
		}
	}

	now := l.clock.Now().UTC()
	if active {
		if err := l.archive(ctx, date, counts, now); err != nil {
			return err
		}
		for op := range counts {
			if err := l.store.Delete(ctx, counterKey(date, op)); err != nil {
				return fmt.Errorf("clear %s counters: %w", date, err)
			}
		}
	}

	if err := l.store.Set(ctx, keyLastReset, now.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("record reset: %w", err)
	}
	l.log.Info("usage counters reset", zap.String("date", date), zap.Bool("archived", active))
	return nil
}

// archive merges counts into the day's snapshot so a second reset of the same
// day never duplicates it.
func (l *Ledger) archive(ctx context.Context, date string, counts map[usagedomain.OperationType]int64, at time.Time) error {
	history, err := l.readHistory(ctx)
	if err != nil {
		l.log.Warn("usage history unreadable, starting a new one", zap.Error(err))
		history = nil
	}

	merged := false
	for i := range history {
		if history[i].Date != date {
			continue
		}
		if history[i].Counts == nil {
			history[i].Counts = usagedomain.EmptyCounts()
		}
		for op, v := range counts {
			history[i].Counts[op] += v
		}
		history[i].ResetAt = at
		merged = true
		break
	}
	if !merged {
		history = append(history, usagedomain.DailySnapshot{Date: date, Counts: counts, ResetAt: at})
	}
	if len(history) > l.historyCap {
		history = history[len(history)-l.historyCap:]
	}

	raw, err := json.Marshal(history)
	if err != nil {
		return err
	}
	if err := l.store.Set(ctx, keyHistory, string(raw)); err != nil {
		return fmt.Errorf("archive %s: %w", date, err)
	}
	return nil
}

func (l *Ledger) readHistory(ctx context.Context) ([]usagedomain.DailySnapshot, error) {
	raw, ok, err := l.store.Get(ctx, keyHistory)
	if err != nil || !ok || strings.TrimSpace(raw) == "" {
		return nil, err
	}
	var history []usagedomain.DailySnapshot
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (l *Ledger) appendAudit(ctx context.Context, entry usagedomain.AuditEntry) {
	trail := l.AuditTrail(ctx)
	trail = append(trail, entry)
	if len(trail) > l.auditCap {
		trail = trail[len(trail)-l.auditCap:]
	}
	raw, err := json.Marshal(trail)
	if err == nil {
		err = l.store.Set(ctx, keyAudit, string(raw))
	}
	if err != nil {
		l.log.Warn("failed to append usage audit entry", zap.Error(err))
	}
}

func (l *Ledger) AuditTrail(ctx context.Context) []usagedomain.AuditEntry {
	raw, ok, err := l.store.Get(ctx, keyAudit)
	if err != nil {
		l.log.Warn("failed to read usage audit trail", zap.Error(err))
		return []usagedomain.AuditEntry{}
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return []usagedomain.AuditEntry{}
	}
	var trail []usagedomain.AuditEntry
	if err := json.Unmarshal([]byte(raw), &trail); err != nil {
		l.log.Warn("usage audit trail is corrupt, ignoring", zap.Error(err))
		return []usagedomain.AuditEntry{}
	}
	return trail
}

func (l *Ledger) History(ctx context.Context) []usagedomain.DailySnapshot {
	history, err := l.readHistory(ctx)
	if err != nil {
		l.log.Warn("failed to read usage history", zap.Error(err))
	}
	if history == nil {
		return []usagedomain.DailySnapshot{}
	}
	return history
}

func (l *Ledger) LastReset(ctx context.Context) (time.Time, bool) {
	raw, ok, err := l.store.Get(ctx, keyLastReset)
	if err != nil || !ok {
		return time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

// Statistics covers the last days days including today. Archived snapshots
// are added to live counters so reset days still report their activity.
func (l *Ledger) Statistics(ctx context.Context, days int) usagedomain.Statistics {
	if days <= 0 {
		days = 7
	}
	if days > maxStatisticsDays {
		days = maxStatisticsDays
	}

	archived := make(map[string]map[usagedomain.OperationType]int64)
	for _, snap := range l.History(ctx) {
		archived[snap.Date] = snap.Counts
	}

	stats := usagedomain.Statistics{
		Days:      days,
		DailyData: make([]usagedomain.DayUsage, 0, days),
		Totals:    usagedomain.EmptyCounts(),
		Averages:  make(map[usagedomain.OperationType]float64, len(usagedomain.KnownOperations())),
	}

	today := l.Today()
	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		date := day.Format(usagedomain.DayLayout)
		counts := l.GetAll(ctx, day)
		for op, v := range archived[date] {
			if _, known := counts[op]; known {
				counts[op] += v
			}
		}
		for op, v := range counts {
			stats.Totals[op] += v
		}
		stats.DailyData = append(stats.DailyData, usagedomain.DayUsage{Date: date, Counts: counts})
	}
	for op, total := range stats.Totals {
		stats.Averages[op] = float64(total) / float64(days)
	}
	return stats
}

func (l *Ledger) StaleDays(ctx context.Context) ([]time.Time, error) {
	lister, ok := l.store.(statestore.Lister)
	if !ok {
		return []time.Time{l.Today().AddDate(0, 0, -1)}, nil
	}
	keys, err := lister.Keys(ctx, keyCounterPrefix)
	if err != nil {
		return nil, err
	}

	today := l.Today()
	seen := make(map[string]time.Time)
	for _, key := range keys {
		parts := strings.Split(strings.TrimPrefix(key, keyCounterPrefix), ":")
		if len(parts) != 2 {
			continue
		}
		day, err := time.ParseInLocation(usagedomain.DayLayout, parts[0], l.loc)
		if err != nil || !day.Before(today) {
			continue
		}
		seen[parts[0]] = day
	}

	out := make([]time.Time, 0, len(seen))
	for _, day := range seen {
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

var _ usagedomain.Ledger = (*Ledger)(nil)

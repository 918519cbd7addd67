package domain

import (
	"context"
	"errors"
	"time"
)

// Ledger tracks per-day, per-operation counters. Reads never fail: storage
// errors are logged and reported as zero.
type Ledger interface {
	// Increment adds amount (1 when amount <= 0) to today's counter and returns the new total.
	Increment(ctx context.Context, op OperationType, amount int64) int64
	Get(ctx context.Context, op OperationType, day time.Time) int64
	GetAll(ctx context.Context, day time.Time) map[OperationType]int64
	// Reset archives the day's counters and clears them. A zero day means today.
	Reset(ctx context.Context, day time.Time) error
	Statistics(ctx context.Context, days int) Statistics
	AuditTrail(ctx context.Context) []AuditEntry
	History(ctx context.Context) []DailySnapshot
	LastReset(ctx context.Context) (time.Time, bool)
	// StaleDays lists days before today that still hold live counters.
	StaleDays(ctx context.Context) ([]time.Time, error)
	Today() time.Time
}

var (
	ErrUnknownOperation = errors.New("unknown_operation")
	ErrInvalidDays      = errors.New("invalid_days")
)

package domain

import (
	"fmt"
	"strings"
	"time"
)

// OperationType is a billable action metered per calendar day.
type OperationType string

const (
	OperationSearch     OperationType = "search"
	OperationAIExtract  OperationType = "ai_extract"
	OperationAIProposal OperationType = "ai_proposal"
)

// KnownOperations lists every metered operation in display order.
func KnownOperations() []OperationType {
	return []OperationType{OperationSearch, OperationAIExtract, OperationAIProposal}
}

func ParseOperation(raw string) (OperationType, error) {
	op := OperationType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range KnownOperations() {
		if op == known {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, raw)
}

const DayLayout = "2006-01-02"

// AuditEntry is one increment in the rolling audit history.
type AuditEntry struct {
	At        time.Time     `json:"at"`
	Operation OperationType `json:"operation"`
	Delta     int64         `json:"delta"`
	Total     int64         `json:"total"`
}

// DailySnapshot archives a day's counters at reset time.
type DailySnapshot struct {
	Date    string                  `json:"date"`
	Counts  map[OperationType]int64 `json:"counts"`
	ResetAt time.Time               `json:"reset_at"`
}

type DayUsage struct {
	Date   string                  `json:"date"`
	Counts map[OperationType]int64 `json:"counts"`
}

type Statistics struct {
	Days      int                       `json:"days"`
	DailyData []DayUsage                `json:"daily_data"`
	Totals    map[OperationType]int64   `json:"totals"`
	Averages  map[OperationType]float64 `json:"averages"`
}

// EmptyCounts returns a map holding zero for every known operation.
func EmptyCounts() map[OperationType]int64 {
	counts := make(map[OperationType]int64, len(KnownOperations()))
	for _, op := range KnownOperations() {
		counts[op] = 0
	}
	return counts
}

package domain

import (
	"context"
	"errors"
)

type Entry struct {
	RunID     string
	Level     Level
	Stage     string
	Term      string
	Message   string
	ErrorKind string
	Metadata  map[string]any
}

type Service interface {
	Append(ctx context.Context, entry Entry) error
	ListByRun(ctx context.Context, runID string) ([]ActivityLog, error)
}

var (
	ErrInvalidRunID   = errors.New("invalid_run_id")
	ErrInvalidMessage = errors.New("invalid_message")
)

package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	activitydomain "github.com/smallbiznis/prospector/internal/activitylog/domain"
	"github.com/smallbiznis/prospector/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) activitydomain.Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&activitydomain.ActivityLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)),
	})
}

func TestAppendAndListByRun(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)

	require.NoError(t, svc.Append(ctx, activitydomain.Entry{
		RunID:   "run-a",
		Stage:   "search",
		Term:    "bakery",
		Message: "search failed",
		Level:   activitydomain.LevelError,
		Metadata: map[string]any{
			"status":  503,
			"api_key": "sk_abcdef1234",
		},
	}))
	require.NoError(t, svc.Append(ctx, activitydomain.Entry{RunID: "run-a", Message: "batch finished"}))
	require.NoError(t, svc.Append(ctx, activitydomain.Entry{RunID: "run-b", Message: "other run"}))

	logs, err := svc.ListByRun(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "search failed", logs[0].Message)
	assert.Equal(t, "sk_****1234", logs[0].Metadata["api_key"])
	assert.Equal(t, activitydomain.LevelInfo, logs[1].Level)
	assert.Equal(t, "batch", logs[1].Stage)
}

func TestAppendValidation(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t)

	assert.ErrorIs(t, svc.Append(ctx, activitydomain.Entry{Message: "x"}), activitydomain.ErrInvalidRunID)
	assert.ErrorIs(t, svc.Append(ctx, activitydomain.Entry{RunID: "r", Message: "  "}), activitydomain.ErrInvalidMessage)

	_, err := svc.ListByRun(ctx, "")
	assert.ErrorIs(t, err, activitydomain.ErrInvalidRunID)
}

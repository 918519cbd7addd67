package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/prospector/internal/clock"
	"github.com/smallbiznis/prospector/internal/keyword/domain"
	"github.com/smallbiznis/prospector/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Keyword{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	return New(Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: fake}), fake
}

func TestCreateDedupesAndSkipsBlanks(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	created, err := svc.Create(ctx, []string{"  bakery  tokyo ", "Bakery Tokyo", "", "cafe osaka"})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "bakery tokyo", created[0].Term)
	assert.Equal(t, domain.StatusPending, created[0].Status)

	again, err := svc.Create(ctx, []string{"cafe osaka", "ramen kyoto"})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "ramen kyoto", again[0].Term)

	_, err = svc.Create(ctx, []string{" ", ""})
	assert.ErrorIs(t, err, domain.ErrEmptyTerms)
}

func TestListPendingOldestFirst(t *testing.T) {
	ctx := context.Background()
	svc, fake := setupService(t)

	_, err := svc.Create(ctx, []string{"first"})
	require.NoError(t, err)
	fake.Advance(time.Minute)
	_, err = svc.Create(ctx, []string{"second"})
	require.NoError(t, err)
	fake.Advance(time.Minute)
	_, err = svc.Create(ctx, []string{"third"})
	require.NoError(t, err)

	pending, err := svc.ListPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "first", pending[0].Term)
	assert.Equal(t, "second", pending[1].Term)

	none, err := svc.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMarkDoneAndFailed(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	created, err := svc.Create(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)

	require.NoError(t, svc.MarkDone(ctx, created[0].ID, 7))
	require.NoError(t, svc.MarkFailed(ctx, created[1].ID, "search: rate_limited"))
	assert.ErrorIs(t, svc.MarkDone(ctx, 42, 1), domain.ErrNotFound)

	pending, err := svc.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c", pending[0].Term)

	done, err := svc.List(ctx, domain.ListRequest{Status: domain.StatusDone})
	require.NoError(t, err)
	require.Len(t, done.Keywords, 1)
	assert.Equal(t, 7, done.Keywords[0].ResultCount)
	assert.NotNil(t, done.Keywords[0].ProcessedAt)

	failed, err := svc.List(ctx, domain.ListRequest{Status: domain.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed.Keywords, 1)
	assert.Equal(t, "search: rate_limited", failed.Keywords[0].FailureReason)
}

func TestListPaginates(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	_, err := svc.Create(ctx, []string{"k1", "k2", "k3"})
	require.NoError(t, err)

	page, err := svc.List(ctx, domain.ListRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, page.Keywords, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "k3", page.Keywords[0].Term)

	next, err := svc.List(ctx, domain.ListRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, next.Keywords, 1)
	assert.False(t, next.HasMore)
	assert.Equal(t, "k1", next.Keywords[0].Term)

	_, err = svc.List(ctx, domain.ListRequest{Status: "archived"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	_, err = svc.List(ctx, domain.ListRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

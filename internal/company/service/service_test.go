package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/prospector/internal/clock"
	"github.com/smallbiznis/prospector/internal/company/domain"
	"github.com/smallbiznis/prospector/internal/company/repository"
	"github.com/smallbiznis/prospector/internal/extraction"
	"github.com/smallbiznis/prospector/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Company{}))
	require.NoError(t, db.Exec(`CREATE TABLE IF NOT EXISTS proposals (id INTEGER PRIMARY KEY, company_id INTEGER)`).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	svc := New(Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: fake, Repo: repository.Provide()})
	return svc, db
}

func create(t *testing.T, svc domain.Service, name string, score int) *domain.Company {
	t.Helper()
	c, err := svc.Create(context.Background(), domain.CreateRequest{
		Record: extraction.CompanyRecord{
			Name:          name,
			Category:      "bakery",
			Features:      []string{"delivery"},
			DiscoveryTerm: "bakery tokyo",
			SourceURL:     "https://example.test/" + name,
		},
		Breakdown: scoring.Breakdown{Total: score, Components: map[scoring.Factor]int{scoring.FactorSize: 10}},
		RunID:     "run-1",
	})
	require.NoError(t, err)
	return c
}

func TestCreateStoresScoreAndProvenance(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	c := create(t, svc, "  Sakura   Bakery ", 72)
	assert.Equal(t, "Sakura Bakery", c.Name)
	assert.Equal(t, "sakura bakery", c.NameKey)
	assert.Equal(t, 72, c.Score)
	assert.Contains(t, c.Explanation, "score 72")

	got, err := svc.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "bakery tokyo", got.DiscoveryTerm)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, []string{"delivery"}, []string(got.Features))
	assert.Equal(t, 10, got.ScoreBreakdown.Data().Components[scoring.FactorSize])
	assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC), got.CreatedAt.UTC())
}

func TestCreateRejectsDuplicateNames(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)
	create(t, svc, "Sakura Bakery", 60)

	_, err := svc.Create(ctx, domain.CreateRequest{Record: extraction.CompanyRecord{Name: "SAKURA  bakery"}})
	assert.ErrorIs(t, err, domain.ErrDuplicateName)

	exists, err := svc.ExistsByName(ctx, "sakura bakery")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = svc.ExistsByName(ctx, "Ume Cafe")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateRejectsBlankName(t *testing.T) {
	svc, _ := setupService(t)
	_, err := svc.Create(context.Background(), domain.CreateRequest{Record: extraction.CompanyRecord{Name: "   "}})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestFindByIDNotFound(t *testing.T) {
	svc, _ := setupService(t)
	_, err := svc.FindByID(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListOrdersByScoreAndFilters(t *testing.T) {
	ctx := context.Background()
	svc, db := setupService(t)
	create(t, svc, "Low Co", 30)
	mid := create(t, svc, "Mid Co", 60)
	high := create(t, svc, "High Co", 90)

	all, err := svc.List(ctx, domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"High Co", "Mid Co", "Low Co"}, []string{all[0].Name, all[1].Name, all[2].Name})

	above, err := svc.List(ctx, domain.ListRequest{MinScore: 50})
	require.NoError(t, err)
	assert.Len(t, above, 2)

	require.NoError(t, db.Exec(`INSERT INTO proposals (id, company_id) VALUES (1, ?)`, high.ID).Error)
	pending, err := svc.List(ctx, domain.ListRequest{MinScore: 50, WithoutProposal: true})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, mid.ID, pending[0].ID)

	limited, err := svc.List(ctx, domain.ListRequest{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestNameKeyCollapsesCaseAndSpace(t *testing.T) {
	assert.Equal(t, "acme foods", domain.NameKey("  ACME \t Foods "))
	assert.Equal(t, "", domain.NameKey("   "))
}

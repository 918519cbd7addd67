package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type widget struct {
	ID     int64 `gorm:"primaryKey"`
	Name   string
	Status string
}

func setupStore(t *testing.T) Repository[widget] {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))
	return ProvideStore[widget](db)
}

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	repo := setupStore(t)

	require.NoError(t, repo.BatchCreate(ctx, []*widget{
		{ID: 1, Name: "a", Status: "pending"},
		{ID: 2, Name: "b", Status: "pending"},
		{ID: 3, Name: "c", Status: "done"},
	}))

	pending, err := repo.Find(ctx, &widget{Status: "pending"}, OrderBy("id desc"))
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, int64(2), pending[0].ID)

	page, err := repo.Find(ctx, nil, OrderBy("id desc"), After(3), Limit(1))
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(2), page[0].ID)

	require.NoError(t, repo.Update(ctx, 1, map[string]any{"status": "done"}))
	count, err := repo.Count(ctx, &widget{Status: "done"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	missing, err := repo.FindOne(ctx, &widget{Name: "zzz"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	found, err := repo.FindOne(ctx, nil, Where("name = ?", "c"))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, int64(3), found.ID)
}

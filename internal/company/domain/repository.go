package domain

import (
	"context"

	"gorm.io/gorm"
)

type ListFilter struct {
	MinScore        int
	WithoutProposal bool
	Limit           int
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, company *Company) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Company, error)
	ExistsByNameKey(ctx context.Context, db *gorm.DB, nameKey string) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Company, error)
}

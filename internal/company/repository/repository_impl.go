package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/prospector/internal/company/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, company *domain.Company) error {
	return db.WithContext(ctx).Create(company).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Company, error) {
	var c domain.Company
	err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repo) ExistsByNameKey(ctx context.Context, db *gorm.DB, nameKey string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM companies WHERE name_key = ?`,
		nameKey,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Company, error) {
	var items []domain.Company
	stmt := db.WithContext(ctx).Model(&domain.Company{})

	if filter.MinScore > 0 {
		stmt = stmt.Where("score >= ?", filter.MinScore)
	}
	if filter.WithoutProposal {
		stmt = stmt.Where("NOT EXISTS (SELECT 1 FROM proposals WHERE proposals.company_id = companies.id)")
	}
	stmt = stmt.Order("score desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

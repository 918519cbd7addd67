package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/prospector/internal/extraction"
	"github.com/smallbiznis/prospector/internal/scoring"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Company, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	FindByID(ctx context.Context, id int64) (*Company, error)
	List(ctx context.Context, req ListRequest) ([]Company, error)
}

type CreateRequest struct {
	Record    extraction.CompanyRecord
	Breakdown scoring.Breakdown
	RunID     string
}

type ListRequest struct {
	MinScore        int  `form:"min_score"`
	WithoutProposal bool `form:"without_proposal"`
	Limit           int  `form:"limit"`
}

var (
	ErrInvalidName   = errors.New("invalid_name")
	ErrDuplicateName = errors.New("duplicate_company")
	ErrNotFound      = errors.New("not_found")
)

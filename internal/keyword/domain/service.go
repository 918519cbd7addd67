package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/prospector/pkg/db/pagination"
)

type Service interface {
	// Create stores new pending terms, skipping blanks and terms already pending.
	Create(ctx context.Context, terms []string) ([]Keyword, error)
	// ListPending returns up to limit pending keywords, oldest first.
	ListPending(ctx context.Context, limit int) ([]Keyword, error)
	MarkDone(ctx context.Context, id int64, results int) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

type ListRequest struct {
	pagination.Pagination
	Status Status `form:"status"`
}

type ListResponse struct {
	pagination.PageInfo
	Keywords []Keyword `json:"keywords"`
}

var (
	ErrEmptyTerms       = errors.New("empty_terms")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrNotFound         = errors.New("not_found")
)

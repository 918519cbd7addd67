package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/prospector/internal/clock"
	"github.com/smallbiznis/prospector/internal/keyword/domain"
	"github.com/smallbiznis/prospector/pkg/db/pagination"
	"github.com/smallbiznis/prospector/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxFailureReason = 500

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  repository.Repository[domain.Keyword]
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("keyword.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  repository.ProvideStore[domain.Keyword](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, terms []string) ([]domain.Keyword, error) {
	seen := make(map[string]struct{}, len(terms))
	cleaned := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.Join(strings.Fields(term), " ")
		if term == "" {
			continue
		}
		key := strings.ToLower(term)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, term)
	}
	if len(cleaned) == 0 {
		return nil, domain.ErrEmptyTerms
	}

	pending, err := s.repo.Find(ctx, &domain.Keyword{Status: domain.StatusPending})
	if err != nil {
		return nil, err
	}
	for _, k := range pending {
		delete(seen, strings.ToLower(k.Term))
	}

	now := s.clock.Now().UTC()
	rows := make([]*domain.Keyword, 0, len(cleaned))
	for _, term := range cleaned {
		if _, ok := seen[strings.ToLower(term)]; !ok {
			continue
		}
		rows = append(rows, &domain.Keyword{
			ID:        s.genID.Generate().Int64(),
			Term:      term,
			Status:    domain.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.WithTrx(tx).BatchCreate(ctx, rows)
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Keyword, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	s.log.Info("keywords queued", zap.Int("requested", len(terms)), zap.Int("created", len(out)))
	return out, nil
}

func (s *Service) ListPending(ctx context.Context, limit int) ([]domain.Keyword, error) {
	if limit <= 0 {
		return []domain.Keyword{}, nil
	}
	items, err := s.repo.Find(ctx, &domain.Keyword{Status: domain.StatusPending},
		repository.OrderBy("created_at asc, id asc"),
		repository.Limit(limit),
	)
	if err != nil {
		return nil, err
	}
	return deref(items), nil
}

func (s *Service) MarkDone(ctx context.Context, id int64, results int) error {
	now := s.clock.Now().UTC()
	return s.update(ctx, id, map[string]any{
		"status":         domain.StatusDone,
		"result_count":   results,
		"failure_reason": "",
		"processed_at":   now,
		"updated_at":     now,
	})
}

func (s *Service) MarkFailed(ctx context.Context, id int64, reason string) error {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxFailureReason {
		reason = reason[:maxFailureReason]
	}
	now := s.clock.Now().UTC()
	return s.update(ctx, id, map[string]any{
		"status":         domain.StatusFailed,
		"failure_reason": reason,
		"processed_at":   now,
		"updated_at":     now,
	})
}

func (s *Service) update(ctx context.Context, id int64, fields map[string]any) error {
	existing, err := s.repo.FindOne(ctx, &domain.Keyword{ID: id})
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrNotFound
	}
	return s.repo.Update(ctx, id, fields)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	var filter *domain.Keyword
	switch req.Status {
	case "":
	case domain.StatusPending, domain.StatusDone, domain.StatusFailed:
		filter = &domain.Keyword{Status: req.Status}
	default:
		return domain.ListResponse{}, domain.ErrInvalidStatus
	}

	after, err := pagination.AfterID(strings.TrimSpace(req.PageToken))
	if err != nil {
		return domain.ListResponse{}, domain.ErrInvalidPageToken
	}

	size := req.Size()
	items, err := s.repo.Find(ctx, filter,
		repository.After(after),
		repository.OrderBy("id desc"),
		repository.Limit(size+1),
	)
	if err != nil {
		return domain.ListResponse{}, err
	}

	items, pageInfo := pagination.BuildPageInfo(items, size, func(k *domain.Keyword) int64 { return k.ID })
	return domain.ListResponse{PageInfo: *pageInfo, Keywords: deref(items)}, nil
}

func deref(items []*domain.Keyword) []domain.Keyword {
	out := make([]domain.Keyword, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out
}

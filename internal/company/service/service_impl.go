package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/prospector/internal/clock"
	"github.com/smallbiznis/prospector/internal/company/domain"
	"github.com/smallbiznis/prospector/internal/scoring"
	"github.com/smallbiznis/prospector/pkg/db"
	"github.com/smallbiznis/prospector/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("company.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Company, error) {
	rec := req.Record
	name := strings.Join(strings.Fields(rec.Name), " ")
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}

	c := &domain.Company{
		ID:             s.genID.Generate().Int64(),
		Name:           name,
		NameKey:        domain.NameKey(name),
		Category:       strings.TrimSpace(rec.Category),
		SizeClass:      rec.SizeClass,
		ContactFormURL: strings.TrimSpace(rec.ContactFormURL),
		Phone:          strings.TrimSpace(rec.Phone),
		Email:          strings.TrimSpace(rec.Email),
		IsListed:       rec.IsListed,
		Description:    strings.TrimSpace(rec.Description),
		Features:       datatypes.JSONSlice[string](rec.Features),
		IsStartup:      rec.IsStartup,
		IsEnterprise:   rec.IsEnterprise,
		Score:          req.Breakdown.Total,
		ScoreBreakdown: datatypes.NewJSONType(req.Breakdown),
		Explanation:    scoring.Explain(req.Breakdown),
		DiscoveryTerm:  rec.DiscoveryTerm,
		SourceURL:      rec.SourceURL,
		RunID:          req.RunID,
		CreatedAt:      createdAt.UTC(),
	}

	if err := s.repo.Create(ctx, s.db, c); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, err
	}
	s.log.Debug("company stored",
		zap.Int64("company_id", c.ID),
		zap.String("name", c.Name),
		zap.Int("score", c.Score),
	)
	return c, nil
}

func (s *Service) ExistsByName(ctx context.Context, name string) (bool, error) {
	key := domain.NameKey(name)
	if key == "" {
		return false, domain.ErrInvalidName
	}
	return s.repo.ExistsByNameKey(ctx, s.db, key)
}

func (s *Service) FindByID(ctx context.Context, id int64) (*domain.Company, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Company, error) {
	limit := pagination.Pagination{PageSize: req.Limit}.Size()
	return s.repo.List(ctx, s.db, domain.ListFilter{
		MinScore:        req.MinScore,
		WithoutProposal: req.WithoutProposal,
		Limit:           limit,
	})
}

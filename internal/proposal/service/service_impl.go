package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/prospector/internal/clock"
	companydomain "github.com/smallbiznis/prospector/internal/company/domain"
	"github.com/smallbiznis/prospector/internal/executor"
	"github.com/smallbiznis/prospector/internal/extraction"
	"github.com/smallbiznis/prospector/internal/proposal/domain"
	"github.com/smallbiznis/prospector/internal/providers/llm"
	"github.com/smallbiznis/prospector/internal/quota"
	"github.com/smallbiznis/prospector/internal/ratelimit"
	usagedomain "github.com/smallbiznis/prospector/internal/usage/domain"
	"github.com/smallbiznis/prospector/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	callProposal     = "ai_proposal"
	defaultTopLimit  = 10
	maxTopLimit      = 100
	modelNameMaxSize = 64
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Companies companydomain.Service
	Gate      *quota.Gate
	Executor  *executor.Executor
	Completer llm.Completer
	Pacer     ratelimit.Pacer `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	companies companydomain.Service
	gate      *quota.Gate
	exec      *executor.Executor
	completer llm.Completer
	pacer     ratelimit.Pacer
	repo      repository.Repository[domain.Proposal]
}

func New(p Params) domain.Service {
	pacer := p.Pacer
	if pacer == nil {
		pacer = ratelimit.NewLocalPacer(0)
	}
	return &Service{
		log:       p.Log.Named("proposal.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		companies: p.Companies,
		gate:      p.Gate,
		exec:      p.Executor,
		completer: p.Completer,
		pacer:     pacer,
		repo:      repository.ProvideStore[domain.Proposal](p.DB),
	}
}

// Generate returns a quota.Decision as the error when ai_proposal is denied.
func (s *Service) Generate(ctx context.Context, companyID int64) (*domain.Proposal, error) {
	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		if errors.Is(err, companydomain.ErrNotFound) {
			return nil, domain.ErrCompanyNotFound
		}
		return nil, err
	}

	prompt := llm.ProposalPrompt(llm.ProposalSubject{
		Name:           company.Name,
		Category:       company.Category,
		Description:    company.Description,
		Features:       []string(company.Features),
		ContactFormURL: company.ContactFormURL,
		Explanation:    company.Explanation,
	})

	text, denial, err := quota.Guard(ctx, s.gate, usagedomain.OperationAIProposal, 1, func(ctx context.Context) (string, error) {
		if err := s.pacer.Wait(ctx); err != nil {
			return "", err
		}
		out := executor.Execute(ctx, s.exec, callProposal, func(ctx context.Context) (string, error) {
			return s.completer.Complete(ctx, prompt)
		})
		return out.Value, out.AsError(callProposal)
	})
	if denial != nil {
		s.log.Info("proposal denied by quota",
			zap.Int64("company_id", companyID),
			zap.String("reason", string(denial.Reason)),
		)
		return nil, *denial
	}
	if err != nil {
		return nil, err
	}

	res := extraction.ValidateProposal(text)
	if !res.OK {
		return nil, &domain.InvalidProposalError{Kind: res.Kind, Detail: res.Diagnostics.String()}
	}

	p := &domain.Proposal{
		ID:              s.genID.Generate().Int64(),
		CompanyID:       company.ID,
		VariantASubject: res.Record.VariantA.Subject,
		VariantABody:    res.Record.VariantA.Body,
		VariantBSubject: res.Record.VariantB.Subject,
		VariantBBody:    res.Record.VariantB.Body,
		ContactFormText: res.Record.ContactFormText,
		Model:           s.modelName(),
		CreatedAt:       s.clock.Now().UTC(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("proposal generated", zap.Int64("company_id", company.ID), zap.Int64("proposal_id", p.ID))
	return p, nil
}

func (s *Service) GenerateTop(ctx context.Context, req domain.GenerateTopRequest) (domain.GenerateTopResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}

	candidates, err := s.companies.List(ctx, companydomain.ListRequest{
		MinScore:        req.MinScore,
		WithoutProposal: true,
		Limit:           limit,
	})
	if err != nil {
		return domain.GenerateTopResult{}, err
	}

	result := domain.GenerateTopResult{Generated: []domain.Proposal{}}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		p, err := s.Generate(ctx, c.ID)
		if err == nil {
			result.Generated = append(result.Generated, *p)
			continue
		}

		var denial quota.Decision
		if errors.As(err, &denial) {
			result.Denied = &denial
			break
		}

		kind := errorKind(err)
		result.Failures = append(result.Failures, domain.Failure{
			CompanyID: c.ID,
			Name:      c.Name,
			ErrorKind: string(kind),
			Error:     err.Error(),
		})
		s.log.Warn("proposal generation failed",
			zap.Int64("company_id", c.ID),
			zap.String("error_kind", string(kind)),
			zap.Error(err),
		)
		if kind == executor.KindAuthOrConfig {
			break
		}
	}
	return result, nil
}

func (s *Service) ListByCompany(ctx context.Context, companyID int64) ([]domain.Proposal, error) {
	items, err := s.repo.Find(ctx, &domain.Proposal{CompanyID: companyID}, repository.OrderBy("id desc"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Proposal, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *Service) modelName() string {
	m, ok := s.completer.(interface{ Model() string })
	if !ok {
		return ""
	}
	name := strings.TrimSpace(m.Model())
	if len(name) > modelNameMaxSize {
		name = name[:modelNameMaxSize]
	}
	return name
}

func errorKind(err error) executor.ErrorKind {
	var callErr *executor.CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}
	var invalid *domain.InvalidProposalError
	if errors.As(err, &invalid) {
		return invalid.Kind.Category()
	}
	return executor.Classify(err)
}

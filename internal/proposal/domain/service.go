package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/prospector/internal/extraction"
	"github.com/smallbiznis/prospector/internal/quota"
)

type Service interface {
	// Generate writes and stores a proposal for one company.
	Generate(ctx context.Context, companyID int64) (*Proposal, error)
	// GenerateTop covers the best-scored companies that have no proposal yet.
	GenerateTop(ctx context.Context, req GenerateTopRequest) (GenerateTopResult, error)
	ListByCompany(ctx context.Context, companyID int64) ([]Proposal, error)
}

type GenerateTopRequest struct {
	Limit    int `json:"limit"`
	MinScore int `json:"min_score"`
}

type Failure struct {
	CompanyID int64  `json:"company_id,string"`
	Name      string `json:"name"`
	ErrorKind string `json:"error_kind"`
	Error     string `json:"error"`
}

type GenerateTopResult struct {
	Generated []Proposal      `json:"generated"`
	Failures  []Failure       `json:"failures,omitempty"`
	Denied    *quota.Decision `json:"denied,omitempty"`
}

var (
	ErrCompanyNotFound = errors.New("company_not_found")
	ErrInvalidProposal = errors.New("invalid_proposal")
)

// InvalidProposalError reports a completion that failed proposal validation.
type InvalidProposalError struct {
	Kind   extraction.Kind
	Detail string
}

func (e *InvalidProposalError) Error() string {
	return fmt.Sprintf("invalid proposal: %s: %s", e.Kind, e.Detail)
}

func (e *InvalidProposalError) Unwrap() error { return ErrInvalidProposal }

func (e *InvalidProposalError) ErrorType() string { return string(e.Kind.Category()) }

package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	companydomain "github.com/smallbiznis/prospector/internal/company/domain"
	proposaldomain "github.com/smallbiznis/prospector/internal/proposal/domain"
)

func (s *Server) ListCompanies(c *gin.Context) {
	minScore, err := parseOptionalInt(c.Query("min_score"))
	if err != nil {
		AbortWithError(c, newValidationError("min_score", "invalid_min_score", "invalid min_score"))
		return
	}
	withoutProposal, err := parseOptionalBool(c.Query("without_proposal"))
	if err != nil {
		AbortWithError(c, newValidationError("without_proposal", "invalid_without_proposal", "invalid without_proposal"))
		return
	}
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil || (limit != nil && *limit < 0) {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	req := companydomain.ListRequest{}
	if minScore != nil {
		req.MinScore = *minScore
	}
	if withoutProposal != nil {
		req.WithoutProposal = *withoutProposal
	}
	if limit != nil {
		req.Limit = *limit
	}

	companies, err := s.companies.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": companies})
}

func (s *Server) GetCompanyByID(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	company, err := s.companies.FindByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": company})
}

func (s *Server) ListProposals(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if _, err := s.companies.FindByID(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	proposals, err := s.proposals.ListByCompany(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": proposals})
}

func (s *Server) GenerateProposal(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	proposal, err := s.proposals.Generate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": proposal})
}

func (s *Server) GenerateTopProposals(c *gin.Context) {
	var req proposaldomain.GenerateTopRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.proposals.GenerateTop(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetScoringCriteria(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.scorer.Criteria()})
}

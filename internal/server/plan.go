package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	plandomain "github.com/smallbiznis/prospector/internal/plan/domain"
	"go.uber.org/zap"
)

type tierRequest struct {
	Tier string `json:"tier"`
}

type planResponse struct {
	plandomain.TierState
	Limits plandomain.Limits `json:"limits"`
}

func (s *Server) GetPlan(c *gin.Context) {
	ctx := c.Request.Context()

	state, err := s.policy.State(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": planResponse{
		TierState: state,
		Limits:    s.policy.LimitsFor(ctx, &state.Current),
	}})
}

func (s *Server) SetTier(c *gin.Context) {
	tier, ok := bindTier(c)
	if !ok {
		return
	}
	if err := s.policy.SetTier(c.Request.Context(), tier); err != nil {
		AbortWithError(c, err)
		return
	}
	s.log.Info("tier changed", zap.String("tier", string(tier)))
	s.GetPlan(c)
}

func (s *Server) PushOverride(c *gin.Context) {
	tier, ok := bindTier(c)
	if !ok {
		return
	}
	if err := s.policy.PushTemporaryTier(c.Request.Context(), tier); err != nil {
		AbortWithError(c, err)
		return
	}
	s.log.Info("temporary tier pushed", zap.String("tier", string(tier)))
	s.GetPlan(c)
}

func (s *Server) PopOverride(c *gin.Context) {
	if err := s.policy.PopTemporaryTier(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	s.GetPlan(c)
}

func bindTier(c *gin.Context) (plandomain.Tier, bool) {
	var req tierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return "", false
	}
	tier, err := plandomain.ParseTier(req.Tier)
	if err != nil {
		AbortWithError(c, err)
		return "", false
	}
	return tier, true
}

package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/prospector/internal/quota"
	usagedomain "github.com/smallbiznis/prospector/internal/usage/domain"
)

const defaultStatsDays = 7

type usageResponse struct {
	Date       string           `json:"date"`
	Tier       string           `json:"tier"`
	Operations []quota.Decision `json:"operations"`
	LastReset  *time.Time       `json:"last_reset,omitempty"`
}

func (s *Server) GetUsage(c *gin.Context) {
	ctx := c.Request.Context()

	ops := s.gate.Usage(ctx)
	resp := usageResponse{
		Date:       s.ledger.Today().Format(usagedomain.DayLayout),
		Operations: ops,
	}
	if len(ops) > 0 {
		resp.Tier = string(ops[0].Tier)
	}
	if at, ok := s.ledger.LastReset(ctx); ok {
		resp.LastReset = &at
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetUsageStats(c *gin.Context) {
	days, err := parseOptionalInt(c.Query("days"))
	if err != nil {
		AbortWithError(c, newValidationError("days", "invalid_days", "days must be a positive integer"))
		return
	}
	n := defaultStatsDays
	if days != nil {
		if *days < 1 {
			AbortWithError(c, usagedomain.ErrInvalidDays)
			return
		}
		n = *days
	}

	c.JSON(http.StatusOK, gin.H{"data": s.ledger.Statistics(c.Request.Context(), n)})
}

func (s *Server) GetUsageAudit(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.ledger.AuditTrail(c.Request.Context())})
}

func (s *Server) GetUsageHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.ledger.History(c.Request.Context())})
}

package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/prospector/internal/enrichment"
	"github.com/smallbiznis/prospector/internal/ratelimit"
	"go.uber.org/zap"
)

const defaultBatchLockTTL = 30 * time.Minute

func (s *Server) RunBatch(c *gin.Context) {
	if s.batches == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var req enrichment.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.MaxTerms < 0 || req.MaxAccepted < 0 {
		AbortWithError(c, newValidationError("request", "invalid_limits", "max_terms and max_accepted must not be negative"))
		return
	}

	if !s.batchMu.TryLock() {
		AbortWithError(c, ErrConflict)
		return
	}
	defer s.batchMu.Unlock()

	ctx := c.Request.Context()
	if s.locker != nil {
		key := s.cfg.Redis.Prefix + ratelimit.BatchLockKey
		token, ok, err := s.locker.TryLock(ctx, key, s.batchLockTTL())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !ok {
			AbortWithError(c, ErrConflict)
			return
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				s.log.Warn("batch unlock failed", zap.Error(err))
			}
		}()
	}

	result, err := s.batches.RunBatch(ctx, req)
	if err != nil {
		if errors.Is(err, enrichment.ErrProviderConfig) {
			s.log.Warn("batch aborted on provider configuration", zap.String("run_id", result.RunID), zap.Error(err))
			status, payload := mapError(err)
			c.JSON(status, gin.H{"data": result, "error": payload})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) batchLockTTL() time.Duration {
	if ttl := s.cfg.Scheduler.BatchLockTTL; ttl > 0 {
		return ttl
	}
	return defaultBatchLockTTL
}

func (s *Server) ListBatchActivity(c *gin.Context) {
	runID := strings.TrimSpace(c.Param("runId"))
	logs, err := s.activity.ListByRun(c.Request.Context(), runID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}

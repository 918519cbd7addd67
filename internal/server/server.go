package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/prospector/internal/activitylog"
	activitydomain "github.com/smallbiznis/prospector/internal/activitylog/domain"
	"github.com/smallbiznis/prospector/internal/company"
	companydomain "github.com/smallbiznis/prospector/internal/company/domain"
	"github.com/smallbiznis/prospector/internal/config"
	"github.com/smallbiznis/prospector/internal/enrichment"
	"github.com/smallbiznis/prospector/internal/executor"
	"github.com/smallbiznis/prospector/internal/keyword"
	keyworddomain "github.com/smallbiznis/prospector/internal/keyword/domain"
	"github.com/smallbiznis/prospector/internal/observability"
	obsmiddleware "github.com/smallbiznis/prospector/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/prospector/internal/observability/metrics"
	obstracing "github.com/smallbiznis/prospector/internal/observability/tracing"
	"github.com/smallbiznis/prospector/internal/plan"
	plandomain "github.com/smallbiznis/prospector/internal/plan/domain"
	"github.com/smallbiznis/prospector/internal/proposal"
	proposaldomain "github.com/smallbiznis/prospector/internal/proposal/domain"
	"github.com/smallbiznis/prospector/internal/providers"
	"github.com/smallbiznis/prospector/internal/quota"
	"github.com/smallbiznis/prospector/internal/ratelimit"
	"github.com/smallbiznis/prospector/internal/scoring"
	"github.com/smallbiznis/prospector/internal/usage"
	usagedomain "github.com/smallbiznis/prospector/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DomainModules wires every service the API and the CLI share.
var DomainModules = fx.Options(
	usage.Module,
	plan.Module,
	quota.Module,
	executor.Module,
	ratelimit.Module,
	providers.Module,
	scoring.Module,
	keyword.Module,
	company.Module,
	activitylog.Module,
	proposal.Module,
	enrichment.Module,
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// BatchRunner is satisfied by *enrichment.Workflow.
type BatchRunner interface {
	RunBatch(ctx context.Context, req enrichment.BatchRequest) (enrichment.BatchResult, error)
}

// BatchLocker is satisfied by *ratelimit.Locker.
type BatchLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	log       *zap.Logger
	ledger    usagedomain.Ledger
	policy    plandomain.Policy
	gate      *quota.Gate
	keywords  keyworddomain.Service
	companies companydomain.Service
	proposals proposaldomain.Service
	activity  activitydomain.Service
	scorer    *scoring.Scorer
	batches   BatchRunner
	locker    BatchLocker

	// one batch per process; locker extends this across processes
	batchMu sync.Mutex
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Log       *zap.Logger
	Ledger    usagedomain.Ledger
	Policy    plandomain.Policy
	Gate      *quota.Gate
	Keywords  keyworddomain.Service
	Companies companydomain.Service
	Proposals proposaldomain.Service
	Activity  activitydomain.Service
	Scorer    *scoring.Scorer
	Workflow  *enrichment.Workflow
	Locker    *ratelimit.Locker `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		log:       p.Log.Named("http.server"),
		ledger:    p.Ledger,
		policy:    p.Policy,
		gate:      p.Gate,
		keywords:  p.Keywords,
		companies: p.Companies,
		proposals: p.Proposals,
		activity:  p.Activity,
		scorer:    p.Scorer,
	}
	if p.Workflow != nil {
		svc.batches = p.Workflow
	}
	if p.Locker != nil {
		svc.locker = p.Locker
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/usage", s.GetUsage)
	api.GET("/usage/stats", s.GetUsageStats)
	api.GET("/usage/audit", s.GetUsageAudit)
	api.GET("/usage/history", s.GetUsageHistory)

	api.GET("/plan", s.GetPlan)
	api.PUT("/plan/tier", s.SetTier)
	api.POST("/plan/override", s.PushOverride)
	api.DELETE("/plan/override", s.PopOverride)

	api.GET("/keywords", s.ListKeywords)
	api.POST("/keywords", s.CreateKeywords)

	api.POST("/batches", s.RunBatch)
	api.GET("/batches/:runId/activity", s.ListBatchActivity)

	api.GET("/scoring", s.GetScoringCriteria)

	api.GET("/companies", s.ListCompanies)
	api.GET("/companies/:id", s.GetCompanyByID)
	api.GET("/companies/:id/proposals", s.ListProposals)
	api.POST("/companies/:id/proposals", s.GenerateProposal)
	api.POST("/proposals/top", s.GenerateTopProposals)
}

func classifyErrorForLog(err error) (string, string) {
	var d quota.Decision
	if errors.As(err, &d) {
		return "quota", string(d.Reason)
	}
	var callErr *executor.CallError
	if errors.As(err, &callErr) {
		return "provider", string(callErr.Kind)
	}
	_, payload := mapError(err)
	return payload.Type, err.Error()
}

package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	activitydomain "github.com/smallbiznis/prospector/internal/activitylog/domain"
	"github.com/smallbiznis/prospector/internal/activitylog/masking"
	"github.com/smallbiznis/prospector/internal/clock"
	"github.com/smallbiznis/prospector/pkg/repository"
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
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  repository.Repository[activitydomain.ActivityLog]
}

func NewService(p Params) activitydomain.Service {
	return &Service{
		log:   p.Log.Named("activitylog.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  repository.ProvideStore[activitydomain.ActivityLog](p.DB),
	}
}

func (s *Service) Append(ctx context.Context, entry activitydomain.Entry) error {
	runID := strings.TrimSpace(entry.RunID)
	if runID == "" {
		return activitydomain.ErrInvalidRunID
	}
	message := strings.TrimSpace(entry.Message)
	if message == "" {
		return activitydomain.ErrInvalidMessage
	}
	level := entry.Level
	if level == "" {
		level = activitydomain.LevelInfo
	}
	stage := strings.TrimSpace(entry.Stage)
	if stage == "" {
		stage = "batch"
	}

	row := activitydomain.ActivityLog{
		ID:        s.genID.Generate(),
		RunID:     runID,
		Level:     level,
		Stage:     stage,
		Term:      strings.TrimSpace(entry.Term),
		Message:   message,
		ErrorKind: entry.ErrorKind,
		CreatedAt: s.clock.Now().UTC(),
	}
	if masked := masking.MaskSensitive(entry.Metadata); masked != nil {
		row.Metadata = datatypes.JSONMap(masked)
	}

	if err := s.repo.Create(ctx, &row); err != nil {
		s.log.Warn("failed to write activity log",
			zap.String("run_id", runID),
			zap.String("stage", stage),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) ListByRun(ctx context.Context, runID string) ([]activitydomain.ActivityLog, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, activitydomain.ErrInvalidRunID
	}
	items, err := s.repo.Find(ctx, &activitydomain.ActivityLog{RunID: runID}, repository.OrderBy("id asc"))
	if err != nil {
		return nil, err
	}
	logs := make([]activitydomain.ActivityLog, 0, len(items))
	for _, item := range items {
		if item != nil {
			logs = append(logs, *item)
		}
	}
	return logs, nil
}

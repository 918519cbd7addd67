package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/smallbiznis/prospector/internal/clock"
	"github.com/smallbiznis/prospector/internal/config"
	"github.com/smallbiznis/prospector/internal/migration"
	"github.com/smallbiznis/prospector/internal/observability"
	"github.com/smallbiznis/prospector/internal/scheduler"
	"github.com/smallbiznis/prospector/internal/server"
	"github.com/smallbiznis/prospector/internal/statestore"
	"github.com/smallbiznis/prospector/pkg/db"
	"go.uber.org/fx"
)

func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		statestore.Module,
		migration.Module,
		server.DomainModules,
	)
}

func newServeApp() *fx.App {
	return fx.New(
		coreModules(),
		server.Module,
		scheduler.Module,
	)
}

// runOneShot starts the domain graph without the HTTP server or the
// scheduler, populates targets and runs fn.
func runOneShot(ctx context.Context, fn func(ctx context.Context) error, targets ...any) error {
	app := fx.New(
		coreModules(),
		fx.NopLogger,
		fx.Populate(targets...),
	)

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(ctx)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package providers

import (
	"context"

	"github.com/smallbiznis/prospector/internal/cache"
	"github.com/smallbiznis/prospector/internal/config"
	"github.com/smallbiznis/prospector/internal/providers/fetch"
	"github.com/smallbiznis/prospector/internal/providers/llm"
	"github.com/smallbiznis/prospector/internal/providers/notify"
	"github.com/smallbiznis/prospector/internal/providers/search"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers",
	notify.Module,
	fx.Provide(
		NewSearcher,
		NewCompleter,
		NewFetcher,
	),
)

func NewSearcher(cfg config.Config, log *zap.Logger) search.Searcher {
	if cfg.Search.APIKey == "" || cfg.Search.EngineID == "" {
		log.Named("providers").Warn("search provider has no credentials; search calls will fail as auth_or_config")
	}
	return search.NewClient(cfg.Search, nil)
}

func NewCompleter(cfg config.Config, log *zap.Logger) llm.Completer {
	if cfg.LLM.APIKey == "" {
		log.Named("providers").Warn("LLM provider has no API key; AI calls will fail as auth_or_config")
	}
	return llm.NewClient(cfg.LLM, nil)
}

func NewFetcher(lc fx.Lifecycle, cfg config.Config) (fetch.Fetcher, error) {
	client := fetch.NewClient(nil, cfg.Workflow.ContentBudgetBytes)
	if cfg.Workflow.PageCacheTTL <= 0 {
		return client, nil
	}
	pages, err := cache.NewPageCache(client, cfg.Workflow.PageCacheTTL)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pages.Close()
			return nil
		},
	})
	return pages, nil
}

package notify

import (
	"context"
	"strings"

	"github.com/smallbiznis/prospector/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.notify",
	fx.Provide(NewFromConfig),
)

// NewFromConfig posts to the configured webhook, or logs when none is set.
// Delivery always runs off the caller's goroutine.
func NewFromConfig(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Notifier {
	var sink Notifier = NewLogNotifier(log)
	if url := strings.TrimSpace(cfg.Notify.WebhookURL); url != "" {
		sink = NewWebhookNotifier(url, cfg.Notify.Channel, nil)
	}
	async := NewAsync(sink, log, 64)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return async.Close(ctx)
		},
	})
	return async
}

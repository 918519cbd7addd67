package scoring

import "go.uber.org/fx"

var Module = fx.Module("scoring",
	fx.Provide(NewScorer),
)

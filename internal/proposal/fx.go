package proposal

import (
	"github.com/smallbiznis/prospector/internal/proposal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("proposal.service",
	fx.Provide(service.New),
)

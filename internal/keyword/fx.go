package keyword

import (
	"github.com/smallbiznis/prospector/internal/keyword/service"
	"go.uber.org/fx"
)

var Module = fx.Module("keyword.service",
	fx.Provide(service.New),
)

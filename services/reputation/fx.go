package reputation

import "go.uber.org/fx"

var Module = fx.Module("reputation.service",
	fx.Provide(
		PointTableFromConfig,
		NewService,
	),
)

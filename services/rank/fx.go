package rank

import "go.uber.org/fx"

var Module = fx.Module("rank",
	fx.Provide(Default),
)

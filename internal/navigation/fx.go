package navigation

import "go.uber.org/fx"

var Module = fx.Module("navigation",
	fx.Provide(NewSynchronizer),
)

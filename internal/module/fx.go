package module

import "go.uber.org/fx"

var FxModule = fx.Module("module.registry",
	fx.Provide(NewRegistry),
)

package pos

import (
	"github.com/sokosuite/soko/internal/module"
	"go.uber.org/fx"
)

var Module = fx.Module("modules.pos",
	fx.Invoke(func(registry *module.Registry, m *posModule) error {
		return registry.Register(m)
	}),
	fx.Provide(New),
)

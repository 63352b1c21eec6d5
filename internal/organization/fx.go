package organization

import (
	"github.com/sokosuite/soko/internal/organization/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.directory",
	fx.Provide(repository.NewDirectory),
)

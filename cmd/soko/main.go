package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/sokosuite/soko/internal/config"
	"github.com/sokosuite/soko/internal/isolation"
	"github.com/sokosuite/soko/internal/migration"
	"github.com/sokosuite/soko/internal/module"
	"github.com/sokosuite/soko/internal/modules/pos"
	"github.com/sokosuite/soko/internal/navigation"
	"github.com/sokosuite/soko/internal/observability"
	"github.com/sokosuite/soko/internal/organization"
	"github.com/sokosuite/soko/internal/server"
	"github.com/sokosuite/soko/internal/tenant"
	"github.com/sokosuite/soko/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,

		// Tenant pipeline
		organization.Module,
		isolation.Module,
		tenant.Module,
		migration.Module,
		navigation.Module,
		module.FxModule,

		// Built-in business modules
		pos.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/coldline/internal/archiver"
	"github.com/smallbiznis/coldline/internal/blobstore"
	"github.com/smallbiznis/coldline/internal/clock"
	"github.com/smallbiznis/coldline/internal/config"
	"github.com/smallbiznis/coldline/internal/migration"
	"github.com/smallbiznis/coldline/internal/observability"
	"github.com/smallbiznis/coldline/internal/ratelimit"
	"github.com/smallbiznis/coldline/internal/record"
	"github.com/smallbiznis/coldline/internal/seed"
	"github.com/smallbiznis/coldline/internal/server"
	"github.com/smallbiznis/coldline/internal/tierstate"
	"github.com/smallbiznis/coldline/pkg/db"
	"go.uber.org/fx"
)

// The monolith: HTTP API and the background migration loop in one process.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		seed.Module,

		blobstore.Module,
		tierstate.Module,
		record.Module,
		ratelimit.Module,
		archiver.Module,
		server.Module,

		fx.Invoke(archiver.StartLoop),
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

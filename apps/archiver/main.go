package main

import (
	"github.com/smallbiznis/coldline/internal/archiver"
	"github.com/smallbiznis/coldline/internal/blobstore"
	"github.com/smallbiznis/coldline/internal/clock"
	"github.com/smallbiznis/coldline/internal/config"
	"github.com/smallbiznis/coldline/internal/migration"
	"github.com/smallbiznis/coldline/internal/observability"
	"github.com/smallbiznis/coldline/internal/record"
	"github.com/smallbiznis/coldline/internal/tierstate"
	"github.com/smallbiznis/coldline/pkg/db"
	"go.uber.org/fx"
)

// Headless migration worker. No HTTP surface; it shares the cycle lock
// with any API instances so manual triggers and the loop never overlap.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		migration.Module,

		blobstore.Module,
		tierstate.Module,
		record.Module,
		archiver.Module,

		fx.Invoke(archiver.StartLoop),
	)
	app.Run()
}

package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"reputation-engine/pkg/config"
	"reputation-engine/pkg/db"
	"reputation-engine/pkg/logger"
	"reputation-engine/pkg/task"
	"reputation-engine/services/badge"
	"reputation-engine/services/rank"
	"reputation-engine/services/reputation"
)

// The worker drains deferred badge checks enqueued by the award path.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		rank.Module,
		reputation.Module,
		badge.Module,
		badge.TaskModule,
		task.Server,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"reputation-engine/internal/httpapi"
	"reputation-engine/internal/server"
	"reputation-engine/pkg/config"
	"reputation-engine/pkg/db"
	"reputation-engine/pkg/logger"
	"reputation-engine/pkg/redis"
	"reputation-engine/pkg/task"
	"reputation-engine/services/badge"
	"reputation-engine/services/rank"
	"reputation-engine/services/reputation"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		fx.Provide(
			provideSnowflakeNode,
		),
		rank.Module,
		reputation.Module,
		badge.Module,
		httpapi.Module,
		server.Module,
		fx.Invoke(migrate),
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

func migrate(gdb *gorm.DB, cfg *config.Config) error {
	if err := db.Otel(gdb); err != nil {
		return err
	}
	if err := db.Metric(gdb, cfg); err != nil {
		return err
	}
	if err := reputation.Migrate(gdb); err != nil {
		return err
	}
	return badge.Migrate(gdb)
}

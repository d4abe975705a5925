package main

import (
	"context"
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"reputation-engine/pkg/config"
	"reputation-engine/pkg/db"
	"reputation-engine/pkg/logger"
	"reputation-engine/services/badge"
	"reputation-engine/services/rank"
	"reputation-engine/services/reputation"
)

// Seeds the default badge catalog. Safe to re-run.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		fx.Provide(func() (*snowflake.Node, error) {
			return snowflake.NewNode(1)
		}),
		rank.Module,
		reputation.Module,
		badge.Module,
		fx.Invoke(seedBadges),
		fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
			return fxevent.NopLogger
		}),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

func seedBadges(lc fx.Lifecycle, gdb *gorm.DB, badges *badge.Service, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := badge.Migrate(gdb); err != nil {
				return err
			}
			if err := badges.Seed(ctx); err != nil {
				return err
			}
			zap.L().Info("badge catalog seeded")
			return shutdowner.Shutdown()
		},
	})
}

package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"rewardengine/pkg/cache"
	"rewardengine/pkg/config"
	"rewardengine/pkg/db"
	"rewardengine/pkg/lock"
	"rewardengine/pkg/logger"
	"rewardengine/pkg/redis"
	"rewardengine/services/claim"
	"rewardengine/services/eligibility"
	"rewardengine/services/event"
	"rewardengine/services/ledger"
	"rewardengine/services/reward"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		cache.Module,
		lock.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		event.Module,
		reward.Module,
		ledger.Module,
		eligibility.Module,
		claim.Module,
		fx.Invoke(func(*claim.Service) {}),
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

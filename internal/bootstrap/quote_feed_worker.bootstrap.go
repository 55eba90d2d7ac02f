package bootstrap

import (
	"context"

	"github.com/krobus00/fx-stream-service/internal/config"
	"github.com/krobus00/fx-stream-service/internal/infrastructure"
	"github.com/krobus00/fx-stream-service/internal/repository"
	"github.com/krobus00/fx-stream-service/internal/service/feed"
	"github.com/krobus00/fx-stream-service/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartQuoteFeedWorker(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := infrastructure.NewPostgresConnection(ctx, config.Env.Database["quotes"])
	util.ContinueOrFatal(err)
	infrastructure.StartPostgresHealthCheck(ctx, db, config.Env.Database["quotes"].PingInterval)

	redisClient, err := infrastructure.NewRedisClient(ctx, config.Env.Redis["quotes"])
	util.ContinueOrFatal(err)

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	instrumentRepo := repository.NewInstrumentRepository(db)
	catalog, err := instrumentRepo.GetAllActive(ctx)
	util.ContinueOrFatal(err)
	logrus.Infof("loaded %d active instruments", len(catalog))

	rawQuoteRepo := repository.NewRawQuoteRepository(redisClient, config.Env.Redis["quotes"].RawQuoteTTL)

	feedService := feed.NewService(js, rawQuoteRepo, catalog)
	err = feedService.JetstreamEventSubscribe(ctx)
	util.ContinueOrFatal(err)

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"database": func(ctx context.Context) error {
			cancel()
			return db.Close()
		},
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
		"redis connection": func(ctx context.Context) error {
			return redisClient.Close()
		},
	})

	<-wait
}

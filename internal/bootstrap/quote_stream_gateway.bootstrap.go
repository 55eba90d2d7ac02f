package bootstrap

import (
	"context"
	"net/http"

	"github.com/krobus00/fx-stream-service/internal/config"
	"github.com/krobus00/fx-stream-service/internal/entity"
	"github.com/krobus00/fx-stream-service/internal/handler/ws"
	"github.com/krobus00/fx-stream-service/internal/infrastructure"
	"github.com/krobus00/fx-stream-service/internal/repository"
	"github.com/krobus00/fx-stream-service/internal/service/aggregator"
	"github.com/krobus00/fx-stream-service/internal/service/registry"
	"github.com/krobus00/fx-stream-service/internal/service/stream"
	"github.com/krobus00/fx-stream-service/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartQuoteStreamGateway(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := infrastructure.NewPostgresConnection(ctx, config.Env.Database["quotes"])
	util.ContinueOrFatal(err)
	infrastructure.StartPostgresHealthCheck(ctx, db, config.Env.Database["quotes"].PingInterval)

	redisClient, err := infrastructure.NewRedisClient(ctx, config.Env.Redis["quotes"])
	util.ContinueOrFatal(err)

	instrumentRepo := repository.NewInstrumentRepository(db)
	catalog, err := instrumentRepo.GetAllActive(ctx)
	util.ContinueOrFatal(err)
	logrus.Infof("loaded %d active instruments", len(catalog))

	rawQuoteRepo := repository.NewRawQuoteRepository(redisClient, config.Env.Redis["quotes"].RawQuoteTTL)

	hub := ws.NewHub(catalog, config.Env.Stream.SessionSendBuffer)

	streamService := stream.NewService(
		registry.New(),
		rawQuoteRepo,
		aggregator.New(config.Env.Stream.StalenessCutoff),
		hub,
		stream.Config{
			Interval:       config.Env.Stream.Interval,
			FetchTimeout:   config.Env.Stream.FetchTimeout,
			WorkerPoolSize: config.Env.Stream.WorkerPoolSize,
			ForwardTenor:   entity.ForwardTenor(config.Env.Stream.ForwardTenorCode, config.Env.Stream.ForwardNotionalBand),
		},
	)
	hub.BindEngine(streamService)

	streamService.Start()

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpServer := infrastructure.NewHTTPServerWithConfig(infrastructure.DefaultHTTPServerConfig(), mux)
	go func() {
		if err := httpServer.Start(); err != nil {
			logrus.Fatalf("http server failed: %v", err)
		}
	}()

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"stream service": func(ctx context.Context) error {
			streamService.Stop()
			return nil
		},
		"http server": func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
		"websocket sessions": func(ctx context.Context) error {
			return hub.Close()
		},
		"database": func(ctx context.Context) error {
			cancel()
			return db.Close()
		},
		"redis connection": func(ctx context.Context) error {
			return redisClient.Close()
		},
	})

	<-wait
}

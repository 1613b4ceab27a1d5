package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/sms-relay/internal/config"
	"github.com/jmehdipour/sms-relay/internal/db"
	"github.com/jmehdipour/sms-relay/internal/events"
	"github.com/jmehdipour/sms-relay/internal/export"
	httpSrv "github.com/jmehdipour/sms-relay/internal/http"
	"github.com/jmehdipour/sms-relay/internal/kafka"
	"github.com/jmehdipour/sms-relay/internal/logger"
	"github.com/jmehdipour/sms-relay/internal/repository"
	"github.com/jmehdipour/sms-relay/internal/service/mailbox"
	"github.com/jmehdipour/sms-relay/internal/service/relay"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		log, err := logger.Init(cfg.Log)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer func() { _ = log.Sync() }()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		var redisClient *redis.Client
		if cfg.Redis.Addr != "" {
			redisClient, err = db.NewRedisClient(db.RedisOpts{
				Addr:        cfg.Redis.Addr,
				Password:    cfg.Redis.Password,
				DB:          cfg.Redis.DB,
				DialTimeout: cfg.Redis.DialTimeout,
			})
			if err != nil {
				return fmt.Errorf("redis connect: %w", err)
			}
			defer func() { _ = redisClient.Close() }()
		}

		var reports repository.ArchiveRepository
		if cfg.ClickHouse.DSN != "" {
			chDB, err := db.NewClickHouseConnection(cfg.ClickHouse.DSN, sqlOpts(cfg.ClickHouse))
			if err != nil {
				return fmt.Errorf("clickhouse connect: %w", err)
			}
			defer func() { _ = chDB.Close() }()
			reports = repository.NewCHArchiveRepository(chDB)
		}

		var publisher events.Publisher = events.Nop{}
		if cfg.Kafka.Enabled() {
			producer := kafka.NewProducer(kafka.ProducerConfig{
				Brokers:      cfg.Kafka.Brokers,
				Topic:        cfg.Kafka.Topic,
				WriteTimeout: cfg.Kafka.WriteTimeout,
			})
			defer func() { _ = producer.Close() }()
			publisher = events.NewGuarded(producer, events.NewBreaker(cfg.Kafka.BreakerThreshold, cfg.Kafka.BreakerOpenFor))
		}
		emitter := events.NewEmitter(publisher, log)

		// services
		mbOpts := mailbox.Options{
			MaxBodyRunes: cfg.Relay.MaxBodyRunes,
			Events:       emitter,
			Log:          log.Named("mailbox"),
		}
		deps := httpSrv.Deps{
			Log:     log,
			Relay:   relay.New(store, store, emitter, log.Named("relay")),
			Reports: reports,
			Redis:   redisClient,
		}
		switch cfg.Mailbox.Mode {
		case config.MailboxQueue:
			deps.Queue = mailbox.NewQueue(store, store, mbOpts)
		default:
			var slot repository.CommandSlotRepository = store
			if cfg.Mailbox.Backend == config.MailboxBackendRedis {
				slot = repository.NewRedisCommandSlot(redisClient, cfg.Mailbox.RedisKey)
			}
			deps.Slot = mailbox.NewSlot(slot, store, mbOpts)
		}

		deps.Exports, err = export.NewStore(cfg.Export.Dir, cfg.Export.Prefix, cfg.Export.MaxUploadBytes)
		if err != nil {
			return fmt.Errorf("export store: %w", err)
		}

		server := httpSrv.NewServer(cfg, deps)

		errCh := make(chan error, 1)
		go func() {
			log.Info("starting http",
				zap.String("addr", cfg.HTTP.Addr),
				zap.String("store", cfg.Store.Backend),
				zap.String("mailbox", cfg.Mailbox.Mode),
			)
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server exited", zap.Error(err))
				return err
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)

		return nil
	},
}

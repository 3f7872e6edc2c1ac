package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/stindem/adapters/events"
	"github.com/layer-3/stindem/adapters/ledger"
	"github.com/layer-3/stindem/adapters/store"
	"github.com/layer-3/stindem/adapters/tokenizer"
	"github.com/layer-3/stindem/config"
	"github.com/layer-3/stindem/metrics"
	"github.com/layer-3/stindem/ports"
	"github.com/layer-3/stindem/service"
	transport "github.com/layer-3/stindem/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// memoryBackend runs without Redis: nonces in process memory, events on an in-process channel
const memoryBackend = "memory"

func main() {
	configPath := flag.String("config", "", "path to the server YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadServer(configPath)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	signKey, err := loadSigningKey(cfg.SigningKeyPath)
	if err != nil {
		return err
	}
	if cfg.SigningKeyPath == "" {
		logger.Warn("no signing key configured, sessions will not survive a restart")
	}

	nonceStore, publisher, closeInfra, err := openInfra(cfg, logger)
	if err != nil {
		return err
	}
	defer closeInfra()

	db, err := ledger.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	repo := ledger.NewRepository(db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewPrometheusRecorder(reg)

	eventPub := events.NewWatermillPublisher(publisher)
	tok := tokenizer.NewJWTTokenizer(signKey, tokenizer.Domain{AppName: cfg.AppName, ChainID: cfg.ChainID})
	authService := service.NewAuthService(tok, nonceStore, eventPub, repo,
		service.WithAuthLogger(logger),
		service.WithTTLs(cfg.NonceTTL, cfg.AccessTTL, cfg.RefreshTTL))
	settlements := service.NewSettlementService(repo, eventPub, logger)

	router := transport.SetupRouter(authService, settlements, transport.RouterConfig{
		Logger:       logger,
		Metrics:      rec,
		Gatherer:     reg,
		SecureCookie: cfg.SecureCookie,
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("stindemd listening", zap.String("addr", cfg.Listen), zap.String("chain_id", cfg.ChainID))
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// openInfra connects the nonce store and the event publisher
func openInfra(cfg config.Server, logger *zap.Logger) (ports.Store, message.Publisher, func(), error) {
	wmLogger := watermill.NewStdLogger(false, false)

	if cfg.RedisURL == memoryBackend {
		logger.Warn("running without redis, nonces are local to this process")
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		return store.NewMemoryStore(), pubSub, func() { _ = pubSub.Close() }, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(opts)

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		wmLogger,
	)
	if err != nil {
		_ = redisClient.Close()
		return nil, nil, nil, fmt.Errorf("create redis publisher: %w", err)
	}

	closeAll := func() {
		_ = publisher.Close()
		_ = redisClient.Close()
	}
	return store.NewRedisStore(redisClient), publisher, closeAll, nil
}

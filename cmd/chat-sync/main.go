package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clippy-oss/homie/chat-sync/internal/app"
	"github.com/clippy-oss/homie/chat-sync/internal/broker"
	"github.com/clippy-oss/homie/chat-sync/internal/cli"
	"github.com/clippy-oss/homie/chat-sync/internal/config"
	"github.com/clippy-oss/homie/chat-sync/internal/domain"
	"github.com/clippy-oss/homie/chat-sync/internal/encryption"
	"github.com/clippy-oss/homie/chat-sync/internal/logger"
	"github.com/clippy-oss/homie/chat-sync/internal/push"
	"github.com/clippy-oss/homie/chat-sync/internal/realtime"
	"github.com/clippy-oss/homie/chat-sync/internal/repository"
	"github.com/clippy-oss/homie/chat-sync/internal/service"
	grpcTransport "github.com/clippy-oss/homie/chat-sync/internal/transport/grpc"
	mcpTransport "github.com/clippy-oss/homie/chat-sync/internal/transport/mcp"
	wsTransport "github.com/clippy-oss/homie/chat-sync/internal/transport/ws"
)

// RunMode defines how the application runs
type RunMode string

const (
	RunModeServer      RunMode = "server"
	RunModeInteractive RunMode = "interactive"
	RunModeHeadless    RunMode = "headless"
)

func main() {
	cfg := config.Load()
	mode := RunMode(cfg.Mode)

	// Headless mode speaks JSON on stdout, so logs go to stderr in CLI modes.
	if mode == RunModeServer {
		logger.Init(cfg.LogLevel)
	} else {
		logger.InitOutput(cfg.LogLevel, os.Stderr)
	}
	log := logger.Module("main")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	db, err := initDatabase(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	cipher, err := encryption.NewAESGCM(cfg.Secret, encryption.DefaultKDFParams)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption")
	}

	store := realtime.NewMemoryStore(realtime.WithLogger(logger.Module("realtime")))
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Broker is optional; without it messages are not announced outside
	// the realtime store.
	var (
		rmq      *broker.RabbitMQClient
		notifier service.Notifier
	)
	if cfg.AMQPURL != "" {
		rmq, err = broker.NewRabbitMQClient(cfg.AMQPURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
		}
		defer rmq.Close()
		notifier = broker.NewNotifier(rmq, logger.Module("notifier"))
	}

	identity := domain.Identity{UserID: cfg.UserID, Name: cfg.UserName, Phone: cfg.UserPhone}
	a, err := app.New(ctx, app.Options{
		Identity:       identity,
		Store:          store,
		Cipher:         cipher,
		DB:             db,
		Notifier:       notifier,
		PageSize:       cfg.PageSize,
		CacheRetention: cfg.CacheRetention,
		Log:            logger.Log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start chat services")
	}
	defer a.Close()

	if rmq != nil {
		startBrokerConsumers(ctx, cfg, rmq, identity)
	}

	switch mode {
	case RunModeInteractive:
		runCLI(ctx, cancel, cli.NewInteractiveCLI(cli.NewCommandHandler(a.Chat), os.Stdin, os.Stdout))
	case RunModeHeadless:
		runCLI(ctx, cancel, cli.NewHeadlessCLI(cli.NewCommandHandler(a.Chat), os.Stdin, os.Stdout))
	default:
		runServerMode(ctx, cfg, a)
	}
}

func startBrokerConsumers(ctx context.Context, cfg *config.Config, rmq *broker.RabbitMQClient, identity domain.Identity) {
	log := logger.Module("broker")

	presence := broker.NewPresence(rmq, identity.UserID, log)
	go func() {
		if err := presence.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Notification consumer stopped")
		}
	}()

	if cfg.PushWorker {
		pushLog := logger.Module("push")
		worker := push.NewWorker(rmq, push.LogSender{Log: pushLog}, pushLog)
		go func() {
			if err := worker.Run(ctx); err != nil {
				pushLog.Error().Err(err).Msg("Push worker stopped")
			}
		}()
	}
}

func runServerMode(ctx context.Context, cfg *config.Config, a *app.App) {
	log := logger.Module("server")
	log.Info().
		Str("user", cfg.UserID).
		Str("database", cfg.DatabasePath).
		Str("grpc", cfg.GRPCAddress).
		Str("mcp", cfg.MCPAddress).
		Str("ws", cfg.WSAddress).
		Msg("Chat sync starting")

	grpcServer := grpcTransport.NewServer(a.Chat, grpcTransport.ServerConfig{Address: cfg.GRPCAddress}, logger.Module("grpc"))
	mcpServer := mcpTransport.NewServer(a.Chat, mcpTransport.ServerConfig{Address: cfg.MCPAddress}, logger.Module("mcp"))

	hub := wsTransport.NewHub(a.Bus, logger.Module("ws"))
	go hub.Run(ctx)
	wsServer := wsTransport.NewServer(hub, wsTransport.ServerConfig{Address: cfg.WSAddress}, logger.Module("ws"))

	errCh := make(chan error, 3)

	go func() {
		if err := grpcServer.Start(); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		if err := mcpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("MCP server error: %w", err)
		}
	}()

	go func() {
		if err := wsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("WebSocket server error: %w", err)
		}
	}()

	// Print ready message for subprocess coordination
	fmt.Println("ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("Server error")
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Stop()
	if err := mcpServer.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("MCP server stop error")
	}
	if err := wsServer.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("WebSocket server stop error")
	}

	log.Info().Msg("Shutdown complete")
}

type runner interface {
	Run(ctx context.Context) error
}

func runCLI(ctx context.Context, cancel context.CancelFunc, r runner) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cliLog := logger.Module("cli")
		cliLog.Error().Err(err).Msg("CLI error")
	}
}

func initDatabase(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.NewGormLogger("gorm"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	db.Exec("PRAGMA journal_mode=WAL")

	if err := db.AutoMigrate(repository.AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

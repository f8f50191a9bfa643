package main

import (
	"context"
	"dm-relay/auth"
	"dm-relay/contract"
	"dm-relay/dedup"
	"dm-relay/infrastructure/grpc/server"
	"dm-relay/infrastructure/httpapi"
	"dm-relay/internal"
	"dm-relay/moderation"
	"dm-relay/repositories"
	"dm-relay/runtime"
	"dm-relay/runtime/workers"
	"dm-relay/services"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// stores groups what the relay needs from its persistence backend.
type stores struct {
	identity  contract.IIdentityStore
	history   contract.IHistoryStore
	words     []string
	inspector http.Handler
	close     func()
}

func run() (int, error) {
	// 1. Configuration & Logger
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return exitConfig, fmt.Errorf("dotenv error: %w", err)
	}
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Persistence
	var words []string
	if config.CensoredWordsPath != "" {
		if words, err = moderation.LoadWordsFile(config.CensoredWordsPath); err != nil {
			return exitConfig, err
		}
	}

	var st stores
	switch config.Store {
	case internal.StorePostgres:
		st, err = openPostgres(ctx, config, words)
	default:
		st, err = openBadger(ctx, config, logger, words)
	}
	if err != nil {
		return exitRuntime, err
	}
	defer st.close()

	// 4. Dedup window
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	var window contract.IDedupWindow
	switch config.DedupBackend {
	case internal.DedupRedis:
		redisWindow, err := dedup.NewRedisWindow(ctx, config.RedisURL, config.DedupWindow)
		if err != nil {
			return exitRuntime, fmt.Errorf("redis opening failed: %w", err)
		}
		defer func() { _ = redisWindow.Close() }()
		window = redisWindow
	default:
		memoryWindow := dedup.NewWindow(config.DedupWindow)
		sup.Add(workers.NewDedupSweeperWorker(logger, memoryWindow, config.SweepInterval))
		window = memoryWindow
	}

	// 5. Delivery engine
	engineConfig := runtime.EngineConfig{EchoToSender: config.EchoToSender}
	if len(st.words) > 0 {
		moderator, err := moderation.NewModerator(st.words, charReplacement, logger)
		if err != nil {
			return exitConfig, err
		}
		engineConfig.Moderator = moderator
		logger.Info("Moderation enabled", "words", len(st.words))
	}
	registry := runtime.NewRegistry(logger, config.DeliveryTimeout)
	engine := runtime.NewEngine(logger, st.identity, st.history, window, registry, engineConfig)
	sup.Add(workers.NewPresenceReporterWorker(logger, registry, config.MetricInterval))

	secret := config.JWTSecret
	if secret == "" {
		// Ephemeral secret: tokens die with the process
		secret = uuid.NewString()
	}
	tokens := auth.NewTokenIssuer(secret, config.AuthTokenDuration)
	chatService := services.NewChatService(logger, engine, registry, st.history)
	authService := services.NewAuthService(st.identity, tokens)

	// 6. Transports
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GRPCPort)
	grpcListener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	httpAddress := fmt.Sprintf("%s:%d", config.Host, config.HTTPPort)
	httpListener, err := net.Listen("tcp", httpAddress)
	if err != nil {
		_ = grpcListener.Close()
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", httpAddress, err)
	}

	chatServer := server.NewChatServer(logger, chatService, config.ConnectionBufferSize, config.RequestTimeout)
	grpcServer := server.NewGRPCServer(logger, chatServer, tokens, config.AuthEnabled)
	app := httpapi.NewApp(httpapi.NewHandlers(logger, authService, chatService), config.CorsOrigins, st.inspector)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting gRPC server", "address", grpcAddress, "auth", config.AuthEnabled)
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting HTTP API", "address", httpAddress)
		if err := app.Listener(httpListener); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sup.Run(gctx)
		return nil
	})

	// 7. Wait for Stop or Error, then shut down gracefully
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		grpcServer.GracefulStop()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Warn("HTTP shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return exitRuntime, err
	}
	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func openBadger(ctx context.Context, config internal.Config, logger *slog.Logger, words []string) (stores, error) {
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return stores{}, fmt.Errorf("database opening failed: %w", err)
	}
	users, err := repositories.NewUserRepository(db)
	if err != nil {
		_ = db.Close()
		return stores{}, err
	}
	messages, err := repositories.NewMessageRepository(db, logger, config.LimitMessages)
	if err != nil {
		_ = users.Close()
		_ = db.Close()
		return stores{}, err
	}

	// Seeded words accumulate across restarts
	if len(words) > 0 {
		if err := moderation.SeedBlacklist(db, words); err != nil {
			logger.Warn("Blacklist seeding failed", "error", err)
		}
	}
	blacklist, err := moderation.LoadBlacklist(db)
	if err != nil {
		logger.Warn("Blacklist loading failed", "error", err)
		blacklist = words
	}

	st := stores{
		identity: users,
		history:  messages,
		words:    blacklist,
		close: func() {
			logger.Info("Closing BadgerDB...")
			_ = messages.Close()
			_ = users.Close()
			_ = db.Close()
		},
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		logger.Info("Debug Badger inspector available", "path", "/debug/inspect")
		st.inspector = internal.InspectHandler(db, internal.DefaultMapper, nil)
	}
	return st, nil
}

func openPostgres(ctx context.Context, config internal.Config, words []string) (stores, error) {
	store, err := repositories.NewPostgresStore(ctx, config.DatabaseURL, config.LimitMessages)
	if err != nil {
		return stores{}, fmt.Errorf("database opening failed: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return stores{}, fmt.Errorf("migration failed: %w", err)
	}
	return stores{identity: store, history: store, words: words, close: store.Close}, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}

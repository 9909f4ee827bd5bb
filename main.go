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

	"battlebots/auth"
	"battlebots/database"
	"battlebots/handlers"
	"battlebots/internal/events"
	"battlebots/internal/game"
	"battlebots/internal/lock"
	"battlebots/internal/store"
	"battlebots/internal/upload"
	"battlebots/internal/websocket"
	"battlebots/internal/worker"
	"battlebots/migrations"
	"battlebots/models"
	"battlebots/utils"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "battlebots",
		Short:        "Game orchestration service for robot battles",
		SilenceUsage: true,
		RunE:         func(cmd *cobra.Command, args []string) error { return serve(cmd.Context()) },
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the JSON config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket hub",
		RunE:  func(cmd *cobra.Command, args []string) error { return serve(cmd.Context()) },
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE:  func(cmd *cobra.Command, args []string) error { return migrate() },
	})
	root.AddCommand(tokenCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setup() (models.Config, *zap.Logger, error) {
	config, err := database.LoadConfig(configPath)
	if err != nil {
		return config, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.InitLogger(config)
	if err != nil {
		return config, nil, fmt.Errorf("init logger: %w", err)
	}
	return config, logger, nil
}

func migrate() error {
	config, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.Open(config, logger)
	if err != nil {
		return err
	}
	applied, err := migrations.Run(db, logger)
	if err != nil {
		return err
	}
	logger.Info("Migrations done", zap.Strings("applied", applied))
	return nil
}

func tokenCommand() *cobra.Command {
	var role string
	var playerID uint
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed API token, e.g. for the match worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := database.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if config.JWTSecret == "" {
				return errors.New("jwt_secret is not configured")
			}
			token, err := auth.NewSigner(config.JWTSecret, ttl).GenerateToken(playerID, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", auth.RoleWorker, "token role (worker|player)")
	cmd.Flags().UintVar(&playerID, "player", 0, "player id carried by the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}

func serve(ctx context.Context) error {
	config, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if config.JWTSecret == "" {
		return errors.New("jwt_secret is not configured")
	}

	// Database and Redis come up in parallel.
	var db *gorm.DB
	var rdb *redis.Client
	var g errgroup.Group
	g.Go(func() error {
		var err error
		db, err = database.Open(config, logger)
		return err
	})
	if database.NeedsRedis(config) {
		g.Go(func() error {
			var err error
			rdb, err = database.InitRedis(config, logger)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("Failed to initialize storage", zap.Error(err))
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}
	if _, err := migrations.Run(db, logger); err != nil {
		return err
	}

	sink, err := upload.OpenBlobSink(ctx, config.StorageURL, config.StorageBucket, config.StoragePublicURL)
	if err != nil {
		logger.Error("Failed to open stream bucket", zap.String("url", config.StorageURL), zap.Error(err))
		return err
	}
	defer sink.Close()

	var locker lock.Locker = lock.NewKeyedMutex(config.LockWait)
	if config.LockDriver == "redis" {
		locker = lock.NewRedisLocker(rdb, config.LockTTL, config.LockWait, logger)
	}

	hub := websocket.NewHub(logger)
	publisher := events.Multi{events.NewFromConfig(config, rdb, logger), hub}
	defer publisher.Close()

	st := store.New(db)
	orchestrator := game.New(game.Deps{
		Store:   st,
		Worker:  worker.NewHTTPClient(config.WorkerURL, config.WorkerTimeout),
		Uploads: upload.NewCoordinator(sink, config.UploadTimeout, logger),
		Locker:  locker,
		Events:  publisher,
		Logger:  logger,
		LiveURL: config.LiveStreamURL,
	})

	cleaner, err := utils.CronCleaner(orchestrator, config.CleanupSchedule, config.StaleGameAge, logger)
	if err != nil {
		logger.Error("Invalid cleanup schedule", zap.String("schedule", config.CleanupSchedule), zap.Error(err))
		return err
	}
	defer cleaner.Stop()

	router := handlers.SetupRouter(handlers.RouterDeps{
		Games:        orchestrator,
		Players:      st,
		Catalog:      st,
		Hub:          hub,
		Signer:       auth.NewSigner(config.JWTSecret, 0),
		Logger:       logger,
		AllowOrigins: config.AllowOrigins,
	})

	srv := &http.Server{Addr: config.HTTPAddr, Handler: router}
	errc := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", config.HTTPAddr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebk/treino-bot/internal/bot"
	"github.com/glebk/treino-bot/internal/httpapi"
	"github.com/glebk/treino-bot/internal/notify"
	"github.com/glebk/treino-bot/internal/repository/sqldb"
	"github.com/glebk/treino-bot/internal/service"
	"github.com/glebk/treino-bot/internal/snapshot"
	"github.com/glebk/treino-bot/internal/tracker"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.TelegramToken == "" && cfg.HTTPAddr == "" {
			return errors.New("nothing to serve: set TELEGRAM_BOT_TOKEN or HTTP_ADDR")
		}
		if cfg.HTTPAddr != "" && cfg.APIToken == "" {
			return errors.New("API_TOKEN is required when HTTP_ADDR is set")
		}

		// Initialize database
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		// Initialize local snapshot cache
		kv, err := snapshot.OpenFileKV(cfg.SnapshotPath)
		if err != nil {
			return fmt.Errorf("failed to open snapshot cache: %w", err)
		}
		log.Printf("Snapshot cache at: %s", cfg.SnapshotPath)

		// Initialize repositories
		userRepo := sqldb.NewUserRepository(db)
		dayRepo := sqldb.NewWorkoutDayRepository(db)
		sessionRepo := sqldb.NewSessionRepository(db)
		notificationRepo := sqldb.NewNotificationRepository(db)

		// Initialize notifications
		var sender notify.Sender = notify.NewNoopSender()
		if cfg.ResendAPIKey != "" {
			sender = notify.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom)
		}
		dispatcher := notify.NewDispatcher(notificationRepo, userRepo, sender)

		// Initialize service
		workoutService := service.NewWorkoutService(
			userRepo,
			dayRepo,
			sessionRepo,
			notificationRepo,
			snapshot.NewStore(kv),
			dispatcher,
			service.Options{
				Timer: tracker.Options{
					TickInterval: cfg.Tracker.TickInterval.Duration,
					FlushEvery:   cfg.Tracker.FlushEvery,
				},
				SnapshotMaxAge: cfg.Tracker.SnapshotMaxAge.Duration,
			},
		)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Initialize bot
		if cfg.TelegramToken != "" {
			telegramBot, err := bot.New(cfg.TelegramToken, workoutService, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize bot: %w", err)
			}
			dispatcher.SetPusher(telegramBot)

			go func() {
				log.Println("Bot started. Press Ctrl+C to stop.")
				if err := telegramBot.Start(ctx); err != nil {
					log.Printf("Bot stopped with error: %v", err)
					stop()
				}
			}()
		}

		// Initialize API
		var server *http.Server
		if cfg.HTTPAddr != "" {
			server = &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           httpapi.NewRouter(workoutService, cfg.APIToken),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				log.Printf("API listening on %s", cfg.HTTPAddr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Printf("API stopped with error: %v", err)
					stop()
				}
			}()
		}

		// Wait for stop signal
		<-ctx.Done()
		log.Println("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Tracker.ShutdownFlushTimeout.Duration)
		defer cancel()

		if server != nil {
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error shutting down API: %v", err)
			}
		}

		workoutService.Shutdown(shutdownCtx)
		return nil
	},
}

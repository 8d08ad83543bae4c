package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"incidentmap/internal/config"
	"incidentmap/internal/expiry"
	"incidentmap/internal/repository"
	"incidentmap/internal/server"
	"incidentmap/internal/service"
	"incidentmap/internal/telegram_bot"
)

func main() {
	cfgPath := pflag.StringP("config", "c", "configs/config.yml", "path to the YAML config file")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	hashPassword := pflag.String("hash-password", "", "print the argon2id hash of a password for admin.password_hash and exit")
	pflag.Parse()

	if *hashPassword != "" {
		hash, err := service.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to hash password:", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// Load configuration
	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync() // Flushes buffer, if any
	}()

	// Database connection
	db, err := repository.NewDB(cfg.Database.Driver, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if err := repository.MigrateDB(db, logger); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	if *migrateOnly {
		logger.Info("Migrations applied, exiting (--migrate-only)")
		return
	}

	// Initialize repositories
	reportRepo := repository.NewReportRepository(db, logger)
	voteRepo := repository.NewVoteRepository(db, logger)
	messageRepo := repository.NewMessageRepository(db, logger)
	sourceRepo := repository.NewSourceRepository(db, logger)
	tx := repository.NewTransactor(db)

	// Initialize Telegram bot for confirmed-report announcements
	bot, err := telegram_bot.NewBot(cfg, logger)
	if err != nil {
		logger.Warn("Failed to initialize Telegram bot, continuing without it", zap.Error(err))
		bot = nil
	}
	var notifier service.Notifier
	if bot != nil {
		notifier = bot
	}

	reportService := service.NewReportService(reportRepo, voteRepo, tx, service.ReportServiceConfig{
		ExpiryWindow: cfg.ExpiryWindow(),
		Notifier:     notifier,
	}, logger)
	chatService := service.NewChatService(reportRepo, messageRepo, tx, service.ChatServiceConfig{
		ExpiryWindow: cfg.ExpiryWindow(),
		Cooldown:     cfg.ChatCooldown(),
		MaxLength:    cfg.Chat.MaxLength,
	}, logger)
	sourceService := service.NewSourceService(reportRepo, sourceRepo, tx, cfg.ExpiryWindow(), nil, logger)
	adminService, err := service.NewAdminService(service.AdminConfig{
		Password:     cfg.Admin.Password,
		PasswordHash: cfg.Admin.PasswordHash,
		JWTSecret:    cfg.Admin.JWTSecret,
		TokenTTL:     cfg.TokenTTL(),
	}, nil, logger)
	if err != nil {
		logger.Fatal("Failed to initialize admin service", zap.Error(err))
	}

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run Telegram bot in a goroutine (if enabled)
	if bot != nil {
		go func() {
			if err := bot.Start(ctx); err != nil {
				logger.Error("Telegram bot failed", zap.Error(err))
			}
		}()
	}

	// Background sweep is optional; List always sweeps on read
	if interval := cfg.SweepInterval(); interval > 0 {
		go expiry.NewSweeper(reportService.SweepExpired, interval, logger).Run(ctx)
	}

	gin.SetMode(cfg.Server.Mode)
	srv := server.NewServer(server.Services{
		Reports: reportService,
		Chat:    chatService,
		Sources: sourceService,
		Admin:   adminService,
	}, logger)
	if err := srv.Run(ctx, ":"+cfg.Server.Port); err != nil {
		logger.Error("Server failed", zap.Error(err))
	}

	bot.Wait()
	logger.Info("Application stopped.")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Log.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

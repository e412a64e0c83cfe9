package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mrvasilyev/pixel-pop-v2/internal/auth"
	"github.com/mrvasilyev/pixel-pop-v2/internal/config"
	"github.com/mrvasilyev/pixel-pop-v2/internal/database"
	"github.com/mrvasilyev/pixel-pop-v2/internal/imagegen"
	"github.com/mrvasilyev/pixel-pop-v2/internal/jobs"
	"github.com/mrvasilyev/pixel-pop-v2/internal/repository"
	"github.com/mrvasilyev/pixel-pop-v2/internal/server"
	"github.com/mrvasilyev/pixel-pop-v2/internal/storage"
	"github.com/mrvasilyev/pixel-pop-v2/internal/telegram"
	"github.com/mrvasilyev/pixel-pop-v2/internal/worker"
	"github.com/mrvasilyev/pixel-pop-v2/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	uploader, err := storage.NewUploader(storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
		UsePathStyle:  cfg.S3UsePathStyle,
		Prefix:        cfg.S3Prefix,
	})
	if err != nil {
		log.Fatalf("storage uploader: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	generationRepo := repository.NewGenerationRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	jobManager := jobs.NewManager(cfg.RedisURL, logr)
	defer jobManager.Close()

	validator := auth.NewValidator(cfg.BotToken, cfg.JWTSecret, cfg.MockAuth, cfg.MockUser)
	modelClient := imagegen.NewClient(cfg.ModelAPIKey, cfg.ModelBaseURL, cfg.ModelName, cfg.RequestTimeout, logr)

	gen := worker.New(jobManager, modelClient, uploader, userRepo, generationRepo, logr)
	go gen.Run(ctx)

	var invoices server.InvoiceCreator
	if cfg.BotToken != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			log.Fatalf("telegram bot: %v", err)
		}
		payments := telegram.NewPayments(botAPI, userRepo, paymentRepo, logr)
		invoices = payments

		bot := telegram.NewBot(botAPI, payments, logr)
		go func() {
			if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logr.Error("bot stopped", "err", err)
			}
		}()
	} else {
		logr.Warn("no bot token configured, payments disabled")
	}

	srv := server.NewServer(cfg.ListenAddr, logr, validator, userRepo, generationRepo, jobManager, uploader, invoices, cfg.GalleryPageLimit)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("server stopped", "err", err)
	}
}

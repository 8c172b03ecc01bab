package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/creatorlink/internal/config"
	"github.com/tjfontaine/creatorlink/internal/identity"
	"github.com/tjfontaine/creatorlink/internal/mockapi"
	"github.com/tjfontaine/creatorlink/internal/telemetry"
)

const (
	demoEmail    = "demo@creatorlink.dev"
	demoPassword = "demo1234"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load(config.DefaultFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	shutdown, err := telemetry.InitTracer("creatorlink-mockapi", cfg.Telemetry.Traces, os.Stderr, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	srv := mockapi.New(mockapi.Options{
		Port:      cfg.MockAPI.Port,
		JWTSecret: cfg.MockAPI.JWTSecret,
		TokenTTL:  cfg.MockAPI.TokenTTL,
		Timeout:   cfg.API.Timeout,
		Logger:    logger,
	})

	if _, err := srv.Store.AddUser(mockapi.User{
		Email:       demoEmail,
		FullName:    "Demo Brand",
		CompanyName: "Demo Co",
		Kind:        identity.KindBrand,
	}, demoPassword); err != nil {
		log.Fatalf("Failed to seed demo user: %v", err)
	}
	logger.Info("demo account ready",
		slog.String("email", demoEmail),
		slog.String("password", demoPassword),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("mock backend stopped")
}

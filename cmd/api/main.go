package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/credport/reset-service/internal/config"
	"github.com/credport/reset-service/internal/logging"
	"github.com/credport/reset-service/internal/repository/postgres"
	"github.com/credport/reset-service/internal/service"
	transporthttp "github.com/credport/reset-service/internal/transport/http"
	"github.com/credport/reset-service/internal/transport/mail"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.AppEnv)

	db, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	accountRepo := postgres.NewAccountRepo(db)
	resetRepo := postgres.NewResetRequestRepo(db)

	var mailer service.ResetMailer
	if cfg.SMTPHost != "" {
		mailer = mail.NewResetMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	}

	resetService := service.NewResetService(accountRepo, resetRepo, mailer, cfg.ResetTokenTTL)

	e := transporthttp.NewRouter(cfg.AllowOrigins)
	transporthttp.NewResetHandler(resetService).Register(e)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
}

package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ventia.app/internal/audit"
	"ventia.app/internal/config"
	"ventia.app/internal/httpapi"
	"ventia.app/internal/identity"
	"ventia.app/internal/mail"
	"ventia.app/internal/obs"
	"ventia.app/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("VENTIA_CONFIG"), "Path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := obs.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)
	audit.Init(logger)

	store, err := pg.Open(cfg.Database.DSN)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer store.Close()
	store.DB().SetMaxOpenConns(cfg.Database.MaxOpenConns)
	store.DB().SetMaxIdleConns(cfg.Database.MaxIdleConns)
	store.DB().SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	var sender identity.ResetSender
	if cfg.SMTP.Host != "" {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			ResetURL: cfg.SMTP.ResetURL,
		}, logger)
	} else {
		logger.Warn("smtp host not configured, reset links go to the log")
		sender = mail.LogSender{Log: logger}
	}

	svc, err := identity.NewService(store, cfg.JWT.Secret, logger,
		identity.WithIssuer(cfg.JWT.Issuer),
		identity.WithAccessTTL(cfg.JWT.AccessTTL),
		identity.WithRefreshTTL(cfg.JWT.RefreshTTL),
		identity.WithResetTTL(cfg.JWT.ResetTTL),
		identity.WithResetSender(sender),
	)
	if err != nil {
		logger.Fatal("init identity service", zap.Error(err))
	}

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: store.DB()}, version, logger)

	handler := api.Handler()
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.RateLimit(handler, cfg.Server.RateBurst, cfg.Server.RatePerSecond)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.RequestTimeout,
		ReadHeaderTimeout: cfg.Server.RequestTimeout,
		WriteTimeout:      cfg.Server.RequestTimeout,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting ventia-api",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	logger.Info("stopped")
}

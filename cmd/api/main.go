package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"planhub/api/internal/app"
	"planhub/api/internal/audit"
	"planhub/api/internal/auth"
	"planhub/api/internal/config"
	"planhub/api/internal/email"
	"planhub/api/internal/otp"
	"planhub/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Strings("versions", applied))
	}

	dataStore := store.NewPostgresStore(db)

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	var challenges otp.ChallengeStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for otp challenges")
		redisStore, err := otp.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisStore.Close()
		challenges = redisStore
	} else {
		logger.Info("using postgres for otp challenges")
		challenges = otp.NewPostgresStore(db)
	}
	provider := otp.NewEmailProvider(challenges, mailer, cfg.OTPTTL)

	node := app.NodeInfo{
		HealthID:   uuid.New(),
		APIName:    cfg.APIName,
		APIVersion: cfg.APIVersion,
		EnvName:    cfg.EnvName,
		IP:         nodeIP(),
		Name:       nodeName(),
	}
	if err := dataStore.InsertHealth(ctx, store.Health{
		ID:         node.HealthID,
		APIName:    node.APIName,
		APIVersion: node.APIVersion,
		EnvName:    node.EnvName,
		NodeIP:     node.IP,
		NodeName:   node.Name,
	}); err != nil {
		logger.Fatal("health row insert failed", zap.Error(err))
	}

	recorder := audit.NewRecorder(dataStore, logger, node.HealthID, node.IP, 1024)
	defer recorder.Close()

	pulse := cron.New()
	if _, err := pulse.AddFunc("@every 1m", func() {
		pulseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dataStore.UpdateHealthPulse(pulseCtx, node.HealthID); err != nil {
			logger.Warn("health pulse failed", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("pulse schedule failed", zap.Error(err))
	}
	pulse.Start()
	defer pulse.Stop()

	tokens := auth.NewTokens(cfg.JWTSecret)
	service := app.NewService(cfg, dataStore, tokens, provider, logger, node, recorder)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("planhub api listening", zap.String("addr", cfg.Addr), zap.String("node", node.Name))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	if err := dataStore.UpdateHealthStopped(shutdownCtx, node.HealthID); err != nil {
		logger.Warn("health stop stamp failed", zap.Error(err))
	}
}

// nodeIP finds the outbound interface address without sending anything.
func nodeIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "unknown"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

func nodeName() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}

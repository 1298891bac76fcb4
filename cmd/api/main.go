package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/app/apiapp"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/config"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/logger"
	authsvc "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/auth"
)

func main() {
	issueFor := flag.String("issue-token", "", "print a dashboard token for this operator id and exit")
	issueRole := flag.String("role", string(authsvc.RoleOperator), "role of the issued token (admin|operator)")
	flag.Parse()

	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, "api")
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()

	if *issueFor != "" {
		role, ok := authsvc.ParseRole(*issueRole)
		if !ok {
			log.Fatal("unknown role", zap.String("role", *issueRole))
		}
		jwtManager := authsvc.NewJWTManager(cfg.Dashboard.JWTSecret, cfg.Dashboard.TokenTTL, authsvc.WithIssuer(cfg.Dashboard.Issuer))
		issued, err := authsvc.NewService(jwtManager, nil).Issue(context.Background(), *issueFor, role)
		if err != nil {
			log.Fatal("issue dashboard token", zap.Error(err))
		}
		fmt.Println(issued.AccessToken)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := apiapp.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("create api app", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Run()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown api app", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api server failed", zap.Error(err))
		}
	}
}

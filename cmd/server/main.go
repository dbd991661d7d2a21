package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"davinci-agent/config"
	"davinci-agent/internal/auth"
	"davinci-agent/internal/client/brave"
	"davinci-agent/internal/client/google"
	"davinci-agent/internal/client/llm"
	"davinci-agent/internal/client/microsoft"
	"davinci-agent/internal/dialogue"
	"davinci-agent/internal/handler"
	"davinci-agent/internal/service"
	"davinci-agent/internal/service/executor"
	servicellm "davinci-agent/internal/service/llm"
	"davinci-agent/internal/session"
	"davinci-agent/internal/slot"
)

// backend 会话状态、会话记录与令牌共用一个存储
type backend interface {
	session.Store
	session.Transcript
	session.TokenStore
}

func main() {
	// 按环境加载配置（APP_ENV=local|dev|prod）
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := config.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(log)

	ginMode := cfg.Server.Mode
	if os.Getenv("GIN_MODE") != "" {
		ginMode = os.Getenv("GIN_MODE")
	}
	gin.SetMode(ginMode)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	authManager := auth.NewManager(
		auth.ProviderConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
			Enabled:      cfg.Google.Enabled,
		},
		auth.ProviderConfig{
			ClientID:     cfg.Microsoft.ClientID,
			ClientSecret: cfg.Microsoft.ClientSecret,
			RedirectURL:  cfg.Microsoft.RedirectURL,
			Tenant:       cfg.Microsoft.Tenant,
			Enabled:      cfg.Microsoft.Enabled,
		},
		store, log,
	)

	// 构建 LLM 客户端
	llmClient, err := llm.NewClient(ctx, llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout(),
	})
	if err != nil {
		return fmt.Errorf("init llm client: %w", err)
	}

	// 外部服务客户端
	braveCfg := brave.Config{APIKey: cfg.Brave.APIKey, Enabled: cfg.Brave.Enabled}
	exec := executor.NewExecutor(
		google.NewClient(google.Config{}),
		microsoft.NewClient(microsoft.Config{}, log),
		brave.NewClient(braveCfg),
		braveCfg,
	)
	reg, err := exec.Registry()
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	if err := slot.DefaultAliases.ValidateTargets(reg.HasField); err != nil {
		return fmt.Errorf("validate aliases: %w", err)
	}

	ctrl := dialogue.NewController(dialogue.Options{
		Store:       store,
		Registry:    reg,
		Aliases:     slot.DefaultAliases,
		Classifier:  servicellm.NewClassifier(llmClient, log),
		Extractor:   servicellm.NewExtractor(llmClient, log),
		Credentials: authManager,
		Fallback:    servicellm.NewFallback(llmClient, time.Now),
		Transcript:  store,
		Logger:      log,
	})
	chatSvc := service.NewChatService(ctrl, store, store, log)

	// 路由
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.Router(chatSvc, authManager, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			"addr", srv.Addr,
			"env", config.Env(),
			"store", cfg.Store.Driver,
			"intents", reg.Names(),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(cfg config.StoreConfig) (backend, func(), error) {
	if cfg.Driver != "sqlite" {
		return session.NewMemoryStore(), func() {}, nil
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	s, err := session.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return s, func() { _ = s.Close() }, nil
}

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"robogarage/internal/api"
	"robogarage/internal/api/auth"
	"robogarage/internal/config"
	"robogarage/internal/federation"
	"robogarage/internal/garage"
	"robogarage/internal/identity"
	"robogarage/internal/notify"
	"robogarage/internal/storage"
	"robogarage/internal/telegram/handlers"
	"robogarage/pkg/services/coordinator"
	"robogarage/pkg/services/telegram"
)

func main() {
	// Конфигурация slog для вывода в файл и stdout
	logFile, err := os.OpenFile(config.LogFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		log.Fatal("Failed to open log file:", err)
	}
	defer logFile.Close()

	// Pretty handler для stdout с цветами
	prettyHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen, // "3:04PM"
		AddSource:  false,
		NoColor:    false,
	})

	// Обычный текстовый handler для файла
	fileHandler := slog.NewTextHandler(logFile, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	// Мультиплексируем логи в оба handler'а
	logger := slog.New(&multiHandler{
		handlers: []slog.Handler{prettyHandler, fileHandler},
	})

	logger.Info("=== Robot Garage ===")

	cfg := config.Load(logger)

	// Инициализация БД
	store, err := storage.New(cfg.DBPath, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	fed := federation.New(cfg.Coordinators, cfg.Network, coordinator.NewTransport(logger), logger)
	identityClient := identity.NewClient(cfg.AvatarDir, logger)

	g := garage.New(fed, store, identityClient, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := g.Load(ctx); err != nil {
		logger.Error("Failed to load garage", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Token != "" {
		if _, err := g.UpsertSlot(ctx, cfg.Token); err != nil {
			logger.Error("Failed to open slot from GARAGE_TOKEN", slog.Any("error", err))
		}
	}

	// Telegram: уведомления и команды (опционально)
	var sender notify.Sender
	if cfg.TelegramToken != "" {
		tgService, err := telegram.New(cfg.TelegramToken, logger)
		if err != nil {
			logger.Error("Failed to initialize Telegram service", slog.Any("error", err))
		} else {
			sender = tgService

			botHandler := handlers.New(g, store, identityClient, tgService, cfg.TelegramChatID, logger)
			go botHandler.Run(ctx, tgService.GetUpdatesChan())
			defer tgService.StopReceivingUpdates()

			logger.Info("🤖 Telegram bot started", slog.Int64("chat_id", cfg.TelegramChatID))
		}
	}

	notifier := notify.New(g, sender, cfg.TelegramChatID, store, logger)
	g.Subscribe(notifier.HandleSlotUpdate)

	// Инициализация API handler
	authService := auth.NewService(cfg.JWTSecret, 24*time.Hour) // Токен действителен 24 часа
	apiHandler := api.New(g, fed, store, identityClient, authService, logger)
	g.Subscribe(apiHandler.SlotUpdated)

	// HTTP сервер
	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      apiHandler.SetupRouter(cfg.CORSOrigins...),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("🚀 Server starting...", slog.String("address", cfg.Address))
		logger.Info(fmt.Sprintf("📡 API available at http://%s/api", cfg.Address))
		logger.Info(fmt.Sprintf("🏥 Health check at http://%s/health", cfg.Address))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	go g.Run(ctx, cfg.RefreshInterval)

	// Graceful shutdown
	<-ctx.Done()

	logger.Info("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	apiHandler.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", slog.Any("error", err))
	}

	for _, slot := range g.Slots() {
		slot.Wait()
	}

	logger.Info("✅ Server stopped")
}

// multiHandler отправляет логи в несколько handlers одновременно
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (m *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range m.handlers {
		if err := h.Handle(ctx, record); err != nil {
			return err
		}
	}

	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}

	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}

	return &multiHandler{handlers: handlers}
}

package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"conversekit/core"
	"conversekit/factories"
	"conversekit/gateway"
)

func main() {
	var listenAddr string
	flag.StringVar(&listenAddr, "listen", "", "HTTP listen address (e.g. :8787)")
	flag.Parse()

	logger := core.GetLogger()

	if err := godotenv.Load(".env.local"); err != nil {
		logger.With(map[string]any{"error": err}).Warn("No .env.local file found or failed to load")
	}

	settings := loadSettingsFromEnv(logger)
	settings.InjectAPIKeys(factories.APIKeysFromEnv())

	build, err := factories.NewSessionBuilder(settings, logger)
	if err != nil {
		logger.With(map[string]any{"error": err}).Fatal("failed to build session factory")
	}

	if listenAddr == "" {
		listenAddr = getEnv("LISTEN_ADDR", ":8787")
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway.NewGateway(build, settings.Gateway, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{Addr: listenAddr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", "addr", listenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.With(map[string]any{"error": err}).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.With(map[string]any{"error": err}).Warn("shutdown incomplete")
	}
}

// loadSettingsFromEnv loads Settings from SETTINGS_JSON_B64 or from the
// SETTINGS_PATH file, falling back to defaults on failure.
func loadSettingsFromEnv(logger *core.Logger) factories.Settings {
	if b64 := os.Getenv("SETTINGS_JSON_B64"); b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			logger.With(map[string]any{"error": err}).Error("failed to decode SETTINGS_JSON_B64")
			return factories.DefaultSettings()
		}
		settings, err := factories.SettingsFromJSON(data)
		if err != nil {
			logger.With(map[string]any{"error": err}).Error("failed to parse SETTINGS_JSON_B64")
			return factories.DefaultSettings()
		}
		logger.Info("loaded settings from SETTINGS_JSON_B64")
		return settings
	}

	settingsPath := getEnv("SETTINGS_PATH", "./settings.json")
	settings, err := factories.SettingsFromFile(settingsPath)
	if err != nil {
		logger.With(map[string]any{"path": settingsPath, "error": err}).Warn("failed to load settings, using defaults")
		return factories.DefaultSettings()
	}
	return settings
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	appgen "github.com/fjgonzalezmgt/cv-maker/application/generation"
	"github.com/fjgonzalezmgt/cv-maker/infrastructure/normalize"
	"github.com/fjgonzalezmgt/cv-maker/infrastructure/openai"
	"github.com/fjgonzalezmgt/cv-maker/infrastructure/store"
	httpiface "github.com/fjgonzalezmgt/cv-maker/interfaces/http"
	"github.com/fjgonzalezmgt/cv-maker/internal/config"
)

func main() {
	cfg, err := config.LoadYAML("")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// Configure logging level
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	// Configure logging formatter per environment
	switch cfg.Logging.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.SetReportCaller(cfg.Logging.ReportCaller)

	logrus.WithFields(logrus.Fields{
		"port":   cfg.Server.Port,
		"host":   cfg.Server.Host,
		"models": cfg.OpenAI.AllowedModels,
	}).Info("Starting CV maker")

	systemPrompt, err := loadSystemPrompt(cfg.Generation.SystemPromptPath)
	if err != nil {
		logrus.WithError(err).WithField("path", cfg.Generation.SystemPromptPath).
			Fatal("Failed to load system prompt")
	}

	client := openai.NewClient(openai.Settings{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Timeout:     cfg.OpenAI.Timeout,
		MaxRetries:  cfg.OpenAI.MaxRetries,
		BackoffBase: cfg.OpenAI.BackoffBase,
	})

	// Wrap with circuit breaker for resilience
	breakerConfig := openai.BreakerConfig{
		Enabled:          cfg.CircuitBreaker.Enabled,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout,
		MaxRequests:      cfg.CircuitBreaker.MaxRequests,
	}
	breaker := openai.NewBreakerClient(client, client, breakerConfig)

	logrus.WithFields(logrus.Fields{
		"enabled":           breakerConfig.Enabled,
		"failure_threshold": breakerConfig.FailureThreshold,
		"timeout":           breakerConfig.Timeout,
	}).Info("Circuit breaker configured")

	normalizer := normalize.New(cfg.Files.MaxImageSide, cfg.Files.JPEGQuality)

	documents, err := store.New(cfg.Generation.StoreSize)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create document store")
	}

	service := appgen.NewService(breaker, breaker, normalizer, documents, cfg, systemPrompt)
	router := httpiface.NewRouter(service, documents, cfg.Server.CorsOrigins).
		WithBreakerMonitor(breaker)

	ginRouter := router.SetupRoutes()

	address := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           ginRouter,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Generations can take minutes; the write timeout must outlast
		// the upstream call budget including retries.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for interrupt signal to trigger shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		logrus.WithField("address", address).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Block until signal is received
	<-c
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	} else {
		logrus.Info("Server shutdown complete")
	}
}

// loadSystemPrompt reads the model instructions from disk. An empty or
// missing prompt file is a startup error: generations without the
// document instructions produce unusable output.
func loadSystemPrompt(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	prompt := strings.TrimSpace(string(raw))
	if prompt == "" {
		return "", fmt.Errorf("system prompt file %s is empty", path)
	}
	return prompt, nil
}

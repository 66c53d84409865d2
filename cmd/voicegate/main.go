package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sebas/voicegate/internal/banner"
	"github.com/sebas/voicegate/internal/bridge"
	"github.com/sebas/voicegate/internal/config"
	"github.com/sebas/voicegate/internal/events"
	"github.com/sebas/voicegate/internal/gateway"
	"github.com/sebas/voicegate/internal/logger"
	"github.com/sebas/voicegate/internal/recording"
)

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	if err := config.Validate(cfg); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	banner.Print("VoiceGate - realtime call bridge", []banner.ConfigLine{
		{Label: "Listen", Value: cfg.ListenAddr()},
		{Label: "Stream path", Value: cfg.StreamPath},
		{Label: "Model", Value: cfg.Model},
		{Label: "Voice", Value: cfg.Voice},
		{Label: "Commit policy", Value: commitPolicyLine(cfg)},
		{Label: "Recordings", Value: fmt.Sprintf("%t", cfg.RecordingEnabled())},
		{Label: "Log level", Value: cfg.LogLevel},
	})

	sessions := bridge.NewManager()
	publisher := events.NewLogPublisher()

	var pipeline *recording.Pipeline
	if cfg.RecordingEnabled() {
		pipeline = recording.NewPipeline(cfg)
	} else {
		slog.Info("Recording workflow disabled (provider credentials or webhook not set)")
	}

	srv := gateway.NewServer(cfg, sessions, publisher, pipeline)

	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, shutting down", "signal", sig, "active_calls", sessions.Count())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("Shutdown incomplete", "error", err)
	}
	_ = publisher.Close()
	slog.Info("VoiceGate stopped")
}

func commitPolicyLine(cfg *config.Config) string {
	if cfg.CommitPolicy == config.CommitThreshold {
		return fmt.Sprintf("threshold (%d bytes)", cfg.CommitThresholdBytes)
	}
	return fmt.Sprintf("cadence (%s)", cfg.CommitInterval)
}

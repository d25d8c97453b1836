// Package main is the entry point for the browser automation
// orchestration server. The server exposes the extension WebSocket
// endpoint and bridges it to the task manager, conversation manager,
// and event stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/config"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/httpmw"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/logger"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/tracing"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/conversation"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/engine"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/engine/scripted"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/events/bus"
	gateway "github.com/Sathursan-S/Browser.AI-sub001/internal/gateway/websocket"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/logstream"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/stuck"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/task"
)

func main() {
	root := &cobra.Command{
		Use:          "browserai",
		Short:        "Browser automation orchestration server",
		SilenceUsage: true,
	}
	root.AddCommand(newWebCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newWebCmd() *cobra.Command {
	var port int
	var configPath string
	var engineKind string

	cmd := &cobra.Command{
		Use:   "web",
		Short: "Run the WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithPath(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("engine") {
				cfg.Engine.Kind = engineKind
			}
			return runWeb(cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 5000, "port to listen on")
	cmd.Flags().StringVar(&configPath, "config", "", "path to the config directory")
	cmd.Flags().StringVar(&engineKind, "engine", "none", "automation engine: none or scripted")
	return cmd
}

func runWeb(cfg *config.Config) error {
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting browserai server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event bus: in-memory by default, NATS when configured.
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		log.Info("Connecting to NATS...", zap.String("url", cfg.NATS.URL))
		natsEventBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		eventBus = natsEventBus
	} else {
		eventBus = bus.NewMemoryEventBus(log)
	}
	defer eventBus.Close()

	ring := logstream.NewRing(cfg.Bus.RingSize)
	capture := logstream.NewCapture(ring, eventBus, log)

	detector := stuck.New(
		stuck.WithWindowSize(cfg.Detector.WindowSize),
		stuck.WithRepeatWindow(cfg.Detector.RepeatWindow),
		stuck.WithCheckInterval(cfg.Detector.CheckInterval),
		stuck.WithStepTimeout(cfg.Detector.StepTimeout()),
		stuck.WithNoProgressTimeout(cfg.Detector.NoProgressTimeout()),
		stuck.WithCooldown(cfg.Detector.Cooldown()),
		stuck.WithSimilarityThreshold(cfg.Detector.SimilarityThreshold),
	)

	var factory engine.Factory
	switch cfg.Engine.Kind {
	case "scripted":
		factory = scripted.NewFactory(scripted.DefaultScript(), log)
	default:
		log.Warn("No automation engine configured; start_task will be rejected")
		factory = engine.Unavailable("no automation engine configured")
	}

	if cfg.LLM.APIKey == "" {
		log.Warn("OPENAI_API_KEY is not set; chat clarification is disabled")
	}

	tasks := task.NewManager(factory, eventBus, capture, detector, cfg.Task, cfg.Engine, log)
	conv := conversation.NewManager(conversation.NewChatClient(cfg.LLM), cfg.LLM, log)

	gw := gateway.NewGateway(cfg.Bus, tasks, conv, capture, eventBus, log)
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}
	defer gw.Stop()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.RequestLogger(log, "browserai"))
	router.Use(httpmw.OtelTracing("browserai"))
	gw.SetupRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"clients": gw.Hub.ClientCount(),
			"bus":     eventBus.IsConnected(),
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("Server shutdown error", zap.Error(err))
		}
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("Tracing shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Server exited with error", zap.Error(err))
		return err
	}
	log.Info("Server stopped")
	return nil
}

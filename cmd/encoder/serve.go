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

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/syborg2290/video-encoder/internal/config"
	"github.com/syborg2290/video-encoder/internal/logger"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule"
)

func serve(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "path to a YAML or JSON config file")
	_ = fs.Parse(args)

	cm, appLogger, closer, err := bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	defer closer.Close()

	cfg := cm.GetConfig()
	logger.RedirectStdLog(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	module := encodermodule.NewModule(moduleOptions(cfg, true), appLogger)
	if err := module.Init(ctx); err != nil {
		appLogger.Error("failed to initialize encoder module", "error", err)
		return 1
	}

	// Only the log level is applied live; other settings need a restart
	cm.AddWatcher(func(oldConfig, newConfig *config.Config) {
		if oldConfig.Logging.Level != newConfig.Logging.Level {
			module.SetLogLevel(logger.ParseLevel(newConfig.Logging.Level))
			appLogger.Info("log level changed", "from", oldConfig.Logging.Level, "to", newConfig.Logging.Level)
		}
	})
	if *configPath != "" {
		go func() {
			if err := cm.Watch(ctx); err != nil {
				appLogger.Warn("configuration hot-reload disabled", "error", err)
			}
		}()
	}

	if !appLogger.IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.StandardWriter(appLogger.Named("http"))), gin.Recovery())
	module.RegisterRoutes(router)

	var handler http.Handler = router
	if cfg.Server.EnableCORS {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		}).Handler(router)
	}

	// No write timeout: control channel websockets stay open for a whole job
	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     handler,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info("starting encoder server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		appLogger.Info("shutting down gracefully")
	case err := <-errCh:
		appLogger.Error("failed to start server", "error", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown error", "error", err)
	}
	if err := module.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("encoder module shutdown error", "error", err)
		exitCode = 1
	}

	appLogger.Info("server shutdown complete")
	return exitCode
}

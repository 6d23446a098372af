// Package main runs a small resource server demonstrating the bearer
// token authentication middleware.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/avauthmw/internal/auth"
	"github.com/vyrodovalexey/avauthmw/internal/auth/jwt"
	"github.com/vyrodovalexey/avauthmw/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	listenAddr  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(flags.configPath, logger)
	authenticator := initAuthenticator(cfg, logger)

	runServer(flags.listenAddr, cfg, authenticator, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("AUTHGW_CONFIG_PATH", "configs/auth.yaml"),
		"Path to configuration file")
	listenAddr := flag.String("listen", getEnvOrDefault("AUTHGW_LISTEN_ADDR", ":8080"),
		"Listen address")
	logLevel := flag.String("log-level", getEnvOrDefault("AUTHGW_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("AUTHGW_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		listenAddr:  *listenAddr,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("avauthmw version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadConfig loads and validates the authentication configuration.
func loadConfig(configPath string, logger observability.Logger) *auth.Config {
	logger.Info("starting avauthmw",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := auth.LoadConfig(configPath)
	if err != nil {
		logger.Error("failed to load configuration", observability.Error(err))
		os.Exit(1)
	}

	return cfg
}

// initAuthenticator wires the key provider, validator, and gate.
func initAuthenticator(cfg *auth.Config, logger observability.Logger) *auth.Authenticator {
	keys, err := auth.NewKeyProvider(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize key provider", observability.Error(err))
		os.Exit(1)
	}

	validator, err := jwt.NewValidator(keys,
		jwt.WithAlgorithms(cfg.Algorithms...),
		jwt.WithValidatorLogger(logger),
	)
	if err != nil {
		logger.Error("failed to initialize token validator", observability.Error(err))
		os.Exit(1)
	}

	authenticator, err := auth.NewAuthenticator(validator,
		auth.WithLogger(logger),
		auth.WithMetrics(auth.NewMetrics("avauthmw")),
		auth.WithClockSkew(cfg.ClockSkew.Duration()),
		auth.WithSessionHeader(cfg.SessionHeader),
	)
	if err != nil {
		logger.Error("failed to initialize authenticator", observability.Error(err))
		os.Exit(1)
	}

	return authenticator
}

// runServer starts the HTTP server and blocks until shutdown.
func runServer(addr string, cfg *auth.Config, authenticator *auth.Authenticator, logger observability.Logger) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(auth.RequestIDMiddleware())
	router.Use(authenticator.GinMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Demonstrates the anonymous pass-through: without credentials the
	// request reaches the handler with no principal.
	router.GET("/api/profile", func(c *gin.Context) {
		principal, ok := auth.GinPrincipal(c)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"authenticated": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"authenticated": true,
			"principal":     principal,
		})
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening",
			observability.String("addr", addr),
			observability.Strings("algorithms", cfg.Algorithms),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", observability.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", observability.Error(err))
	}
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Package main is the entry point for the connectrunner application.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/connectrunner/connectrunner/pkg/automation"
	"github.com/connectrunner/connectrunner/pkg/config"
	"github.com/connectrunner/connectrunner/pkg/services"
)

// Version information
const (
	AppVersion = "0.1.0"
	AppName    = "connectrunner"
)

var configPath string

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   AppName,
		Short: "Browser automation runner with a control dashboard",
		Long:  "connectrunner drives a scripted browser workflow and exposes an HTTP API for starting, stopping, and observing runs.",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and wait for runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a single automation run and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce()
		},
	}

	hashCmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Produce a bcrypt hash for the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := services.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", AppName, AppVersion)
		},
	}

	rootCmd.AddCommand(serveCmd, runCmd, hashCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app, err := NewApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	// Handle graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
		log.Println("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.Stop(ctx)
	}
}

func runOnce() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app, err := NewApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	// Cancel the run on interrupt.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		app.controller.Stop()
	}()

	result, err := app.controller.Start(context.Background())
	if err != nil {
		return err
	}

	if !result.Success {
		return fmt.Errorf("run %s failed: %s", result.RunID, result.State.LastError)
	}

	fmt.Printf("run %s completed: %d connections sent, %d skipped\n",
		result.RunID,
		result.State.Progress.ConnectionsSent,
		result.State.Progress.Skipped)
	return nil
}

// loadConfig loads the configuration from the specified path or standard
// locations, then applies environment overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config

	if configPath != "" {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		locations := []string{
			"./config.json",
			"./configs/config.json",
			filepath.Join(os.Getenv("HOME"), ".connectrunner", "config.json"),
			"/etc/connectrunner/config.json",
		}

		for _, path := range locations {
			if loadedCfg, err := config.LoadConfig(path); err == nil {
				cfg = loadedCfg
				break
			}
		}

		if cfg == nil {
			cfg = config.DefaultConfig()

			defaultPath := filepath.Join(os.Getenv("HOME"), ".connectrunner", "config.json")
			if err := config.SaveConfig(cfg, defaultPath); err != nil {
				return nil, fmt.Errorf("failed to save default config: %w", err)
			}

			fmt.Printf("Created default configuration at %s\n", defaultPath)
		}
	}

	overrideConfigFromEnv(cfg)

	// A missing JWT secret gets a random one; tokens then expire on restart.
	if cfg.Auth.JWTSecret == "" {
		secret, err := generateRandomKey(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		cfg.Auth.JWTSecret = secret
	}

	return cfg, nil
}

// overrideConfigFromEnv overrides configuration values from environment variables
func overrideConfigFromEnv(cfg *config.Config) {
	// Server configuration
	if host := os.Getenv("CONNECTRUNNER_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("CONNECTRUNNER_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	// Storage configuration
	if storageType := os.Getenv("CONNECTRUNNER_STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}

	// PostgreSQL configuration
	if host := os.Getenv("CONNECTRUNNER_POSTGRES_HOST"); host != "" {
		cfg.Storage.Postgres.Host = host
	}
	if port := os.Getenv("CONNECTRUNNER_POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Storage.Postgres.Port = p
		}
	}
	if database := os.Getenv("CONNECTRUNNER_POSTGRES_DATABASE"); database != "" {
		cfg.Storage.Postgres.Database = database
	}
	if user := os.Getenv("CONNECTRUNNER_POSTGRES_USER"); user != "" {
		cfg.Storage.Postgres.User = user
	}
	if password := os.Getenv("CONNECTRUNNER_POSTGRES_PASSWORD"); password != "" {
		cfg.Storage.Postgres.Password = password
	}
	if sslMode := os.Getenv("CONNECTRUNNER_POSTGRES_SSL_MODE"); sslMode != "" {
		cfg.Storage.Postgres.SSLMode = sslMode
	}

	// Auth configuration
	if username := os.Getenv("CONNECTRUNNER_AUTH_USERNAME"); username != "" {
		cfg.Auth.Username = username
	}
	if hash := os.Getenv("CONNECTRUNNER_AUTH_PASSWORD_HASH"); hash != "" {
		cfg.Auth.PasswordHash = hash
	}
	if jwtSecret := os.Getenv("CONNECTRUNNER_JWT_SECRET"); jwtSecret != "" {
		cfg.Auth.JWTSecret = jwtSecret
	}
	if tokenExpiration := os.Getenv("CONNECTRUNNER_TOKEN_EXPIRATION"); tokenExpiration != "" {
		if exp, err := strconv.Atoi(tokenExpiration); err == nil {
			cfg.Auth.TokenExpiration = exp
		}
	}

	// Automation configuration
	if target := os.Getenv("CONNECTRUNNER_TARGET_URL"); target != "" {
		cfg.Automation.TargetURL = target
	}
}

// loginCredentials reads the target-site credentials from the environment.
// They are never read from the config file.
func loginCredentials() automation.Credentials {
	return automation.Credentials{
		Email:    os.Getenv("CONNECTRUNNER_LOGIN_EMAIL"),
		Password: os.Getenv("CONNECTRUNNER_LOGIN_PASSWORD"),
	}
}

// generateRandomKey generates a random key of the specified length
func generateRandomKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

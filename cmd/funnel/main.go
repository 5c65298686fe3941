// Command funnel runs the meal-plan marketing funnel backend.
//
//	@title						Meal Plan Funnel API
//	@version					1.0
//	@description				Quiz funnel, checkout, billing webhooks and meal plan generation.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/mealplan-funnel/internal/config"
	"github.com/tbourn/mealplan-funnel/internal/sysutil"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var envFile string

func main() {
	rootCmd := &cobra.Command{
		Use:          "funnel",
		Short:        "Meal plan funnel backend",
		Version:      Version,
		SilenceUsage: true,
		// Bare `funnel` serves, so container images need no arguments.
		RunE: runServe,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment (default .env)")

	rootCmd.AddCommand(serveCmd, migrateCmd, adminTokenCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the dotenv file (missing is fine), parses the
// environment and installs the global logger.
func loadConfig() (config.Config, error) {
	path := sysutil.FirstNonEmpty(envFile, os.Getenv("FUNNEL_ENV_FILE"), ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	cfg, err := config.Load()
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	sysutil.ConfigureLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	log.Debug().Str("env_file", path).Str("version", Version).Msg("config loaded")
	return cfg, nil
}

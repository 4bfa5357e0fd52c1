package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/recurrent/internal/cli"
	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/config"
)

var (
	cfgFile string
	envFile string
	version = "dev"
	rootCmd = &cobra.Command{
		Use:   "recur",
		Short: "📅 Recurring transaction engine",
		Long: `recur tracks recurring bills, subscriptions and income for your bank accounts.

It keeps each account's scheduled inflows and outflows in step with the series
you define, and can detect new series from imported OFX statements.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/recur/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment (default: .env)")
	rootCmd.PersistentFlags().String("database", "", "path to the SQLite database")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().StringP("user", "u", "", "acting user id (or RECUR_USER)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format (table, json, yaml)")

	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("database"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(accountsCmd())
	rootCmd.AddCommand(importOFXCmd())
	rootCmd.AddCommand(detectCmd())
	rootCmd.AddCommand(recurringCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(describeError(err)))
		os.Exit(exitCode(err))
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	if cfgFile != "" {
		viper.SetConfigFile(config.ExpandPath(cfgFile))
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		viper.AddConfigPath(filepath.Join(home, ".config", "recur"))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("RECUR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	level, err := common.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if err := common.SetupLogger(level, cfg.LogFormat); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	loadedConfig = cfg
	return nil
}

// describeError turns the error taxonomy into a one-line message for the terminal.
func describeError(err error) string {
	var userErr *common.UserError
	switch {
	case errors.As(err, &userErr):
		return userErr.Error()
	case errors.Is(err, common.ErrForbidden):
		return "not allowed: " + err.Error()
	case errors.Is(err, common.ErrInternal):
		return "storage failure (nothing was changed): " + err.Error()
	default:
		return err.Error()
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation):
		return 2
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrForbidden):
		return 3
	case errors.Is(err, common.ErrConflict), errors.Is(err, common.ErrLimitExceeded):
		return 4
	default:
		return 1
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "recur %s\n", version)
			return err
		},
	}
}

package cli

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/NDI05/ums-dental-platform-sub001/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfigPath = "config/config.yaml"

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "quiz-service",
		Short:        "Live quiz sessions for the dental-health education platform",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", defaultConfigPath, "path to YAML config")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	cmd.PersistentFlags().String("auth-secret", "", "HS256 secret shared with the auth service")
	cmd.PersistentFlags().String("postgres-url", "", "Postgres DSN (overrides postgres.url)")

	cmd.AddCommand(NewStartCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewTokenCmd())
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and QUIZ_* environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads the YAML file and layers flag/env overrides on top. A missing
// file at the default path is not an error.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (config.Config, error) {
	path := v.GetString("config")
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") && path == defaultConfigPath {
		slog.Warn("config file not found, using flags and environment", "path", path)
		cfg, err = config.Config{}, nil
	}
	if err != nil {
		return cfg, err
	}

	if s := v.GetString("auth-secret"); s != "" {
		cfg.Auth.Secret = s
	}
	if s := v.GetString("postgres-url"); s != "" {
		cfg.Postgres.URL = s
	}
	if s := v.GetString("port"); s != "" {
		cfg.Server.Port = s
	}
	if s := v.GetString("redis-addr"); s != "" {
		cfg.Redis.Addr = s
	}
	if s := v.GetString("seed-file"); s != "" {
		cfg.Questions.SeedFile = s
	}
	if s := v.GetString("store"); s != "" {
		cfg.Session.Store = s
	}
	return cfg, nil
}

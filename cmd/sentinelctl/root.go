package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sentinel/internal/app"
	"sentinel/internal/config"
	"sentinel/internal/logging"
)

// newRootCmd builds the command tree with its own viper instance so tests
// do not share flag state.
func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "sentinelctl",
		Short:         "Scan URLs for threats and inspect local scan history",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().String("config", "", "YAML config file (default $CONFIG_FILE)")
	root.PersistentFlags().String("provider", "", "analysis provider (gemini, fake)")
	root.PersistentFlags().String("store", "", "slot store (auto, postgres, sqlite, memory)")
	root.PersistentFlags().String("sqlite-path", "", "SQLite file for the sqlite store")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	for _, name := range []string{"config", "provider", "store", "sqlite-path", "verbose"} {
		_ = v.BindPFlag(name, root.PersistentFlags().Lookup(name))
	}
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root.AddCommand(
		newScanCmd(v),
		newHistoryCmd(v),
		newStatsCmd(v),
	)
	return root
}

// loadConfig applies flag and SENTINEL_* values on top of config.LoadFile.
func loadConfig(v *viper.Viper) (config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return config.Config{}, fmt.Errorf("load .env: %w", err)
	}
	path := v.GetString("config")
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	return config.LoadFile(path, func(c *config.Config) {
		if p := v.GetString("provider"); p != "" {
			c.Provider = strings.ToLower(p)
		}
		if s := v.GetString("store"); s != "" {
			c.Store = strings.ToLower(s)
		}
		if p := v.GetString("sqlite-path"); p != "" {
			c.SQLitePath = p
		}
		if v.GetBool("verbose") {
			c.LogLevel = "debug"
		}
	})
}

// withApp loads config, builds the scanner and runs fn against it.
func withApp(cmd *cobra.Command, v *viper.Viper, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	if v.GetBool("verbose") {
		log = logging.Setup(cfg.LogLevel, cfg.LogFormat)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

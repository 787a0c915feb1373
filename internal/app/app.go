// Package app wires configuration, logging, classifiers, history and the
// Slack bot behind the ticketclassifier command line.
package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ticketclassifier/internal/config"
	"ticketclassifier/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

func Main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type cli struct {
	load func() (config.Config, error)

	configPath string
	mode       string
	logLevel   string
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(config.Load)
}

func newRootCommand(load func() (config.Config, error)) *cobra.Command {
	c := &cli{load: load}

	root := &cobra.Command{
		Use:   "ticketclassifier",
		Short: "Classify IT support tickets into categories",
		Long: `ticketclassifier assigns support tickets to categories using keyword and
regex rules, a language model, or both.

Configuration is read from config.yaml (or $CONFIG_PATH) and environment
variables; flags override both.`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}

	f := root.PersistentFlags()
	f.StringVar(&c.configPath, "config", "", "Config file path (default: $CONFIG_PATH or config.yaml)")
	f.StringVar(&c.mode, "mode", "", "Classification mode: rules, llm or hybrid (default from config)")
	f.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn or error (default from config)")

	root.AddCommand(
		newClassifyCommand(c),
		newBatchCommand(c),
		newCategoriesCommand(c),
		newServeCommand(c),
	)
	return root
}

// config loads configuration and applies the global flag overrides, then
// any command-specific ones.
func (c *cli) config(overrides ...func(*config.Config)) (config.Config, error) {
	if c.configPath != "" {
		if err := os.Setenv("CONFIG_PATH", c.configPath); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := c.load()
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	if c.mode != "" {
		cfg.ClassificationMode = strings.ToLower(c.mode)
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	for _, o := range overrides {
		o(&cfg)
	}
	return cfg, nil
}

func (c *cli) runtime(overrides ...func(*config.Config)) (*runtime, error) {
	cfg, err := c.config(overrides...)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	rt, err := build(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	logger.Debug("config loaded",
		zap.String("mode", cfg.ClassificationMode),
		zap.String("categories_path", cfg.CategoriesPath),
		zap.String("timezone", cfg.Timezone),
	)
	return rt, nil
}

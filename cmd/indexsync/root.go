package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/app"
	"github.com/kailas-cloud/indexsync/internal/config"
	logpkg "github.com/kailas-cloud/indexsync/internal/logger"
	"github.com/kailas-cloud/indexsync/internal/version"
)

// cli carries the state shared by every subcommand.
type cli struct {
	configPath string
	env        string
	logLevel   string
	logFormat  string
	noColor    bool

	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:   "indexsync",
		Short: "Keep search indexes in sync with the system of record",
		Long: `indexsync projects entities from a relational store into search documents,
applies incremental updates from mutation hooks, and rebuilds indexes with a
zero-downtime alias swap.`,
		Version:           version.Version,
		SilenceUsage:      true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return c.load() },
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	cmd.SetVersionTemplate(version.String() + "\n")

	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Config file (default: config/<env>.yaml)")
	cmd.PersistentFlags().StringVar(&c.env, "env", config.GetEnv(), "Environment: local, dev, prod, test")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override the log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "Force the log format: json, console")
	cmd.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(
		newServeCmd(c),
		newReindexCmd(c),
		newShowCmd(c),
		newIndexesCmd(c),
		newSearchCmd(c),
		newTouchCmd(c),
	)
	return cmd
}

func (c *cli) load() error {
	var err error
	if c.configPath != "" {
		c.cfg, err = config.LoadFile(c.configPath)
	} else {
		c.cfg, err = config.Load(c.env)
	}
	if err != nil {
		return err
	}

	level := c.logLevel
	if level == "" {
		level = c.cfg.Logging.Level
	}
	c.logger, err = logpkg.NewLogger(c.env, logpkg.Options{Level: level, Format: c.logFormat})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	return nil
}

func (c *cli) open(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, fmt.Errorf("startup: %w", err)
	}
	return a, nil
}

// withApp runs fn against a freshly assembled application and closes it afterwards.
func (c *cli) withApp(ctx context.Context, fn func(*app.App) error) (err error) {
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = fmt.Errorf("shutdown: %w", cerr)
		}
	}()
	return fn(a)
}

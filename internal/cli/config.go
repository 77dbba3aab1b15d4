package cli

import (
	"context"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"rag-memory/internal/config"
	"rag-memory/internal/logging"
	"rag-memory/internal/service"
)

// options holds flags shared by every command.
type options struct {
	configPath string
	logLevel   string
}

func globalFlags(opts *options) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML config (default ./config.yaml, then ~/.config/rag/config.yaml)",
			Sources:     cli.EnvVars("RAG_CONFIG"),
			Destination: &opts.configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "debug, info, warn or error (overrides log.level)",
			Sources:     cli.EnvVars("RAG_LOG_LEVEL"),
			Destination: &opts.logLevel,
		},
	}
}

func (o *options) loadConfig() (*config.AppConfig, error) {
	if o.configPath != "" {
		return config.Load(o.configPath)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

// setupLogger installs the process logger. When the config names a log
// file, output goes there instead of w.
func (o *options) setupLogger(ctx context.Context, cfg *config.AppConfig, w io.Writer) (context.Context, func(), error) {
	level := cfg.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	cleanup := func() {}
	logger := logging.New(level, w)
	if cfg.Log.File != "" {
		fl, closer, err := logging.NewFile(level, cfg.Log.File)
		if err != nil {
			return ctx, cleanup, goerr.Wrap(err, "failed to open log file", goerr.V("path", cfg.Log.File))
		}
		logger = fl
		cleanup = func() { _ = closer.Close() }
	}
	logging.SetDefault(logger)
	return logging.With(ctx, logger), cleanup, nil
}

// open loads config, installs logging and builds the service. The returned
// function releases everything.
func (o *options) open(ctx context.Context, c *cli.Command) (context.Context, *service.RAGService, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return ctx, nil, nil, err
	}
	return o.openWith(ctx, c, cfg)
}

func (o *options) openWith(ctx context.Context, c *cli.Command, cfg *config.AppConfig) (context.Context, *service.RAGService, func(), error) {
	ctx, closeLog, err := o.setupLogger(ctx, cfg, c.Root().ErrWriter)
	if err != nil {
		return ctx, nil, nil, err
	}
	svc, err := service.New(ctx, cfg)
	if err != nil {
		closeLog()
		return ctx, nil, nil, err
	}
	return ctx, svc, func() {
		if err := svc.Close(); err != nil {
			logging.From(ctx).Warn("failed to close service", "error", err)
		}
		closeLog()
	}, nil
}

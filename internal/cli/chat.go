package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"rag-memory/internal/logging"
	"rag-memory/internal/tui"
)

func chatCommand() *cli.Command {
	var (
		opts options
		sf   sessionFlags
	)
	flags := append(sf.flags(), globalFlags(&opts)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive chat over your memory",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			// The TUI owns the terminal. Without a log file only errors
			// are printed.
			if cfg.Log.File == "" && opts.logLevel == "" {
				cfg.Log.Level = "error"
			}

			ctx, svc, closeFn, err := opts.openWith(ctx, c, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			sess, profile, err := sf.resolve(ctx, svc)
			if err != nil {
				return err
			}
			o, err := svc.Orchestrator(ctx)
			if err != nil {
				return err
			}

			m := tui.New(ctx, o, sess, profile)
			if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
				return goerr.Wrap(err, "chat UI failed")
			}
			logging.From(ctx).Info("chat closed", "session", sess.ID)
			return nil
		},
	}
}

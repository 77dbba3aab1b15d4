package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"rag-memory/internal/session"
)

func validateProject(p string) error {
	return session.ValidateName("project", p)
}

func sessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Manage saved chat sessions",
		Commands: []*cli.Command{
			sessionsListCommand(),
			sessionsNewCommand(),
			sessionsShowCommand(),
			sessionsRenameCommand(),
			sessionsMoveCommand(),
			sessionsProjectsCommand(),
		},
	}
}

func sessionsListCommand() *cli.Command {
	var (
		opts    options
		project string
	)
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Only sessions of this project",
			Destination: &project,
		},
	}, globalFlags(&opts)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List sessions, most recent first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, svc, closeFn, err := opts.open(ctx, c)
			if err != nil {
				return err
			}
			defer closeFn()

			list, err := svc.Sessions().List(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to list sessions")
			}
			for _, s := range list {
				if project != "" && s.ProjectName() != project {
					continue
				}
				p := s.ProjectName()
				if p == "" {
					p = "-"
				}
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\t%s\t%d turns\n",
					s.ID, s.Name, p, s.LastUpdated.Format("2006-01-02 15:04"), len(s.History))
			}
			return nil
		},
	}
}

func sessionsNewCommand() *cli.Command {
	var (
		opts    options
		project string
		name    string
	)
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Project to create the session in",
			Destination: &project,
		},
		&cli.StringFlag{
			Name:        "name",
			Aliases:     []string{"n"},
			Usage:       "Display name (default Chat_<timestamp>)",
			Destination: &name,
		},
	}, globalFlags(&opts)...)

	return &cli.Command{
		Name:  "new",
		Usage: "Create an empty session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, svc, closeFn, err := opts.open(ctx, c)
			if err != nil {
				return err
			}
			defer closeFn()

			sess, err := svc.Sessions().Create(ctx, project)
			if err != nil {
				return err
			}
			if name != "" {
				if err := svc.Sessions().Rename(ctx, sess, name); err != nil {
					return err
				}
			}
			fmt.Fprintf(c.Root().Writer, "%s\t%s\n", sess.ID, sess.Name)
			return nil
		},
	}
}

func sessionsShowCommand() *cli.Command {
	var opts options
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a session transcript",
		ArgsUsage: "<session-id>",
		Flags:     globalFlags(&opts),
		Action: func(ctx context.Context, c *cli.Command) error {
			id := c.Args().First()
			if id == "" {
				return goerr.New("session id is required")
			}
			ctx, svc, closeFn, err := opts.open(ctx, c)
			if err != nil {
				return err
			}
			defer closeFn()

			sess, err := svc.Sessions().Load(ctx, id)
			if err != nil {
				return err
			}
			w := c.Root().Writer
			fmt.Fprintf(w, "# %s (%s)\n", sess.Name, sess.ID)
			if p := sess.ProjectName(); p != "" {
				fmt.Fprintf(w, "project: %s\n", p)
			}
			for _, t := range sess.History {
				fmt.Fprintf(w, "\n[%s]", t.Role)
				if !t.Timestamp.IsZero() {
					fmt.Fprintf(w, " %s", t.Timestamp.Format("2006-01-02 15:04:05"))
				}
				fmt.Fprintf(w, "\n%s\n", t.Content)
			}
			return nil
		},
	}
}

func sessionsRenameCommand() *cli.Command {
	var opts options
	return &cli.Command{
		Name:      "rename",
		Usage:     "Change a session's display name",
		ArgsUsage: "<session-id> <name>",
		Flags:     globalFlags(&opts),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() < 2 {
				return goerr.New("session id and name are required")
			}
			id := c.Args().First()
			name := strings.Join(c.Args().Tail(), " ")

			ctx, svc, closeFn, err := opts.open(ctx, c)
			if err != nil {
				return err
			}
			defer closeFn()

			sess, err := svc.Sessions().Load(ctx, id)
			if err != nil {
				return err
			}
			return svc.Sessions().Rename(ctx, sess, name)
		},
	}
}

func sessionsMoveCommand() *cli.Command {
	var opts options
	return &cli.Command{
		Name:      "move",
		Usage:     "Move a session to a project (omit the project to unassign)",
		ArgsUsage: "<session-id> [project]",
		Flags:     globalFlags(&opts),
		Action: func(ctx context.Context, c *cli.Command) error {
			id := c.Args().First()
			if id == "" {
				return goerr.New("session id is required")
			}
			project := c.Args().Get(1)

			ctx, svc, closeFn, err := opts.open(ctx, c)
			if err != nil {
				return err
			}
			defer closeFn()

			sess, err := svc.Sessions().Load(ctx, id)
			if err != nil {
				return err
			}
			return svc.Sessions().SetProject(ctx, sess, project)
		},
	}
}

func sessionsProjectsCommand() *cli.Command {
	var opts options
	return &cli.Command{
		Name:  "projects",
		Usage: "List known projects",
		Flags: globalFlags(&opts),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, svc, closeFn, err := opts.open(ctx, c)
			if err != nil {
				return err
			}
			defer closeFn()

			projects, err := svc.Sessions().Projects(ctx)
			if err != nil {
				return err
			}
			for _, p := range projects {
				fmt.Fprintln(c.Root().Writer, p)
			}
			return nil
		},
	}
}

package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"rag-memory/internal/chat"
	"rag-memory/internal/domain"
	"rag-memory/internal/service"
)

// sessionFlags selects or creates the session a turn runs in.
type sessionFlags struct {
	id      string
	project string
	profile string
}

func (f *sessionFlags) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "session",
			Aliases:     []string{"s"},
			Usage:       "Continue an existing session (default: start a new one)",
			Destination: &f.id,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Project for a new session",
			Destination: &f.project,
		},
		&cli.StringFlag{
			Name:        "profile",
			Usage:       "business or private",
			Sources:     cli.EnvVars("RAG_PROFILE"),
			Destination: &f.profile,
		},
	}
}

func (f *sessionFlags) resolve(ctx context.Context, svc *service.RAGService) (*domain.ChatSession, chat.Profile, error) {
	profile, err := chat.ParseProfile(f.profile)
	if err != nil {
		return nil, "", err
	}
	if f.id != "" {
		sess, err := svc.Sessions().Load(ctx, f.id)
		if err != nil {
			return nil, "", err
		}
		return sess, profile, nil
	}
	sess, err := svc.Sessions().Create(ctx, f.project)
	if err != nil {
		return nil, "", err
	}
	return sess, profile, nil
}

func askCommand() *cli.Command {
	var (
		opts        options
		sf          sessionFlags
		showContext bool
	)

	flags := sf.flags()
	flags = append(flags, &cli.BoolFlag{
		Name:        "show-context",
		Usage:       "Print the retrieved context before the answer",
		Destination: &showContext,
	})
	flags = append(flags, globalFlags(&opts)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer one question from memory",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			question := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(question) == "" {
				return goerr.New("question is required")
			}

			ctx, svc, closeFn, err := opts.open(ctx, c)
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

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(c.Root().ErrWriter))
			sp.Suffix = " thinking"
			sp.Start()
			ans, err := o.Respond(ctx, sess, question, profile)
			sp.Stop()
			if ans != nil {
				w := c.Root().Writer
				if showContext {
					fmt.Fprintf(w, "%s\n\n---\n", ans.ContextUsed)
				}
				fmt.Fprintln(w, ans.Text)
				fmt.Fprintf(c.Root().ErrWriter, "session: %s\n", sess.ID)
			}
			return err
		},
	}
}

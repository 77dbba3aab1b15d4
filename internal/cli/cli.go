// Package cli implements the rag command line.
package cli

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	if err := newApp().Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}
	return nil
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:      "rag",
		Usage:     "Personal knowledge assistant over your own documents",
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Commands: []*cli.Command{
			ingestCommand(),
			searchCommand(),
			askCommand(),
			chatCommand(),
			sessionsCommand(),
			collectionsCommand(),
			checkCommand(),
		},
	}
}

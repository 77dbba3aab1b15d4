package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"rag-memory/internal/domain"
)

func collectionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "collections",
		Usage: "Inspect or reset vector collections",
		Commands: []*cli.Command{
			collectionsInspectCommand(),
			collectionsResetCommand(),
		},
	}
}

func collectionsInspectCommand() *cli.Command {
	var (
		opts    options
		tags    []string
		project string
		limit   int64
	)
	flags := append([]cli.Flag{
		&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Restrict to tags", Destination: &tags},
		&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Restrict to a project", Destination: &project},
		&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Records to print", Value: 20, Destination: &limit},
	}, globalFlags(&opts)...)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show a collection's shape and a sample of stored records",
		ArgsUsage: "[collection]...",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			filter, err := buildFilter(tags, project)
			if err != nil {
				return err
			}
			ctx, svc, closeFn, err := opts.open(ctx, c)
			if err != nil {
				return err
			}
			defer closeFn()

			names := c.Args().Slice()
			if len(names) == 0 {
				for _, cc := range svc.Config().Collections {
					names = append(names, cc.Name)
				}
			}

			w := c.Root().Writer
			for _, name := range names {
				summary, err := svc.InspectCollection(ctx, name, filter, int(limit))
				if err != nil {
					fmt.Fprintf(w, "== %s: %v\n", name, err)
					continue
				}
				fmt.Fprintf(w, "== %s (dim=%d, distance=%s)\n", name, summary.Info.Dimension, summary.Info.Distance)
				for _, h := range summary.Sample {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", h.ID, h.String(domain.PayloadFilename), h.String(domain.PayloadTag), oneLine(h.Text(), 80))
				}
			}
			return nil
		},
	}
}

func collectionsResetCommand() *cli.Command {
	var (
		opts options
		yes  bool
	)
	flags := append([]cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Do not ask for confirmation", Destination: &yes},
	}, globalFlags(&opts)...)

	return &cli.Command{
		Name:      "reset",
		Usage:     "Delete every record in a collection",
		ArgsUsage: "<collection>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			name := c.Args().First()
			if name == "" {
				return goerr.New("collection name is required")
			}
			if !yes {
				p := newPrompter(c.Root().Reader, c.Root().Writer)
				answer, err := p.line(fmt.Sprintf("Delete all records in %s? [y/N]: ", name))
				if err != nil {
					return err
				}
				if a := strings.ToLower(answer); a != "y" && a != "yes" {
					return nil
				}
			}

			ctx, svc, closeFn, err := opts.open(ctx, c)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := svc.ResetCollection(ctx, name); err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "reset %s\n", name)
			return nil
		},
	}
}

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"rag-memory/internal/assembler"
	"rag-memory/internal/domain"
)

func searchCommand() *cli.Command {
	var (
		opts      options
		tags      []string
		project   string
		topK      int64
		threshold float64
		raw       bool
	)

	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "tag",
			Aliases:     []string{"t"},
			Usage:       "Restrict to tags (repeatable: P, B, PB)",
			Destination: &tags,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Restrict to a project",
			Destination: &project,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Aliases:     []string{"k"},
			Usage:       "Maximum hits per collection (0 uses config)",
			Destination: &topK,
		},
		&cli.FloatFlag{
			Name:        "threshold",
			Usage:       "Minimum score (0 uses config)",
			Destination: &threshold,
		},
		&cli.BoolFlag{
			Name:        "raw",
			Usage:       "Print one tab-separated line per hit instead of the context block",
			Destination: &raw,
		},
	}
	flags = append(flags, globalFlags(&opts)...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Retrieve stored memory relevant to a query",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			text := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(text) == "" {
				return goerr.New("query is required")
			}
			filter, err := buildFilter(tags, project)
			if err != nil {
				return err
			}

			ctx, svc, closeFn, err := opts.open(ctx, c)
			if err != nil {
				return err
			}
			defer closeFn()

			resp, err := svc.Engine().Retrieve(ctx, domain.Query{
				Text:      text,
				Filter:    filter,
				TopK:      int(topK),
				Threshold: threshold,
			})
			if err != nil {
				return err
			}

			w := c.Root().Writer
			for _, f := range resp.Failures {
				fmt.Fprintf(c.Root().ErrWriter, "warning: %s unavailable: %v\n", f.Collection, f.Err)
			}
			if !raw {
				fmt.Fprintln(w, assembler.Assemble(resp.Results, svc.Config().Retrieval.TopK))
				return nil
			}
			for _, r := range resp.Results {
				mark := ""
				if r.Fallback {
					mark = "*"
				}
				fmt.Fprintf(w, "%.4f%s\t%s\t%s\t%s\t%s\n", r.Score, mark, r.Collection, r.Filename, r.Tag, oneLine(r.Text, 80))
			}
			return nil
		},
	}
}

func buildFilter(tags []string, project string) (domain.Filter, error) {
	var f domain.Filter
	for _, s := range tags {
		t, err := domain.ParseTag(s)
		if err != nil {
			return f, err
		}
		f.Tags = append(f.Tags, t)
	}
	f.Project = project
	return f, nil
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

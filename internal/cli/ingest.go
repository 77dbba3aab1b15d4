package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"rag-memory/internal/domain"
	"rag-memory/internal/extract"
	"rag-memory/internal/ingest"
)

func ingestCommand() *cli.Command {
	var (
		opts        options
		tag         string
		project     string
		description string
		noPrompt    bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "tag",
			Aliases:     []string{"t"},
			Usage:       "P (private), B (business) or PB (both); asked per file when omitted",
			Destination: &tag,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Project to file the documents under",
			Destination: &project,
		},
		&cli.StringFlag{
			Name:        "description",
			Aliases:     []string{"d"},
			Usage:       "Description stored for image files",
			Destination: &description,
		},
		&cli.BoolFlag{
			Name:        "no-prompt",
			Usage:       "Never ask on the terminal",
			Destination: &noPrompt,
		},
	}
	flags = append(flags, globalFlags(&opts)...)

	return &cli.Command{
		Name:      "ingest",
		Usage:     "Extract, chunk, embed and store documents and images",
		ArgsUsage: "<file|dir|glob>...",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			paths, err := expandInputs(c.Args().Slice())
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return goerr.New("no input files")
			}

			var fixedTag domain.Tag
			if tag != "" {
				if fixedTag, err = domain.ParseTag(tag); err != nil {
					return err
				}
			} else if noPrompt {
				return goerr.New("--tag is required with --no-prompt")
			}
			if project != "" {
				if err := validateProject(project); err != nil {
					return err
				}
			}

			ctx, svc, closeFn, err := opts.open(ctx, c)
			if err != nil {
				return err
			}
			defer closeFn()

			p := newPrompter(c.Root().Reader, c.Root().Writer)
			reqs := make([]ingest.FileRequest, 0, len(paths))
			for _, path := range paths {
				req := ingest.FileRequest{Path: path, Tag: fixedTag, Project: project, Description: description}
				if req.Tag == "" {
					if req.Tag, err = p.tag(filepath.Base(path)); err != nil {
						return goerr.Wrap(err, "failed to read tag")
					}
				}
				if extract.Classify(path) == extract.TypeImage && req.Description == "" && !noPrompt {
					if req.Description, err = p.line(fmt.Sprintf("Describe %s (empty for none): ", filepath.Base(path))); err != nil {
						return goerr.Wrap(err, "failed to read description")
					}
				}
				reqs = append(reqs, req)
			}

			w := c.Root().Writer
			failed := 0
			for _, res := range svc.Ingestor().IngestFiles(ctx, reqs) {
				if res.Err != nil {
					failed++
					fmt.Fprintf(w, "FAIL\t%s\t%v\n", res.Path, res.Err)
					continue
				}
				fmt.Fprintf(w, "OK\t%s\t%s\t%d records", res.Path, res.Collection, res.Count)
				if res.MovedTo != "" {
					fmt.Fprintf(w, "\tmoved to %s", res.MovedTo)
				}
				fmt.Fprintln(w)
			}
			if failed > 0 {
				return goerr.New("some files were not ingested", goerr.V("failed", failed), goerr.V("total", len(reqs)))
			}
			return nil
		},
	}
}

// expandInputs resolves globs and walks directories. Hidden entries are
// skipped.
func expandInputs(args []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid pattern", goerr.V("pattern", arg))
		}
		if matches == nil {
			matches = []string{arg}
		}
		for _, m := range matches {
			st, err := os.Stat(m)
			if err != nil || !st.IsDir() {
				add(m)
				continue
			}
			entries, err := os.ReadDir(m)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to read directory", goerr.V("dir", m))
			}
			var files []string
			for _, e := range entries {
				if e.IsDir() || e.Name()[0] == '.' {
					continue
				}
				files = append(files, filepath.Join(m, e.Name()))
			}
			sort.Strings(files)
			for _, f := range files {
				add(f)
			}
		}
	}
	return out, nil
}

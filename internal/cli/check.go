package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"rag-memory/internal/service"
)

func checkCommand() *cli.Command {
	var (
		opts        options
		skipChat    bool
		skipStorage bool
	)
	flags := append([]cli.Flag{
		&cli.BoolFlag{Name: "skip-chat", Usage: "Do not contact the chat backend", Destination: &skipChat},
		&cli.BoolFlag{Name: "skip-store", Usage: "Do not contact the vector store", Destination: &skipStorage},
	}, globalFlags(&opts)...)

	return &cli.Command{
		Name:  "check",
		Usage: "Create the configured directories and verify the vector store and chat backend respond",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx, closeLog, err := opts.setupLogger(ctx, cfg, c.Root().ErrWriter)
			if err != nil {
				return err
			}
			defer closeLog()

			w := c.Root().Writer
			created, err := service.PrepareDirectories(cfg)
			for _, d := range created {
				fmt.Fprintf(w, "CREATED\t%s\n", d)
			}
			if err != nil {
				return err
			}

			var results []service.CheckResult
			if !skipStorage {
				results = append(results, service.CheckStore(ctx, cfg))
			}
			if !skipChat {
				results = append(results, service.CheckInference(ctx, cfg))
			}

			failed := 0
			for _, res := range results {
				if !res.OK() {
					failed++
					fmt.Fprintf(w, "FAIL\t%s\t%v\n", res.Name, res.Err)
					continue
				}
				fmt.Fprintf(w, "OK\t%s\t%s\n", res.Name, res.Detail)
			}
			if failed > 0 {
				return goerr.New("some checks failed", goerr.V("failed", failed), goerr.V("total", len(results)))
			}
			return nil
		},
	}
}

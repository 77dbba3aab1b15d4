package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"rag-memory/internal/cli"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	if err := cli.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err.Message)
		os.Exit(err.Code)
	}
}

package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	root := &cli.Command{
		Name:                  "flowmill-api",
		Usage:                 "Execute and manage workflows",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			RunAPICommand(),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

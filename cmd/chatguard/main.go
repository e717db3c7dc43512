package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

var version = "dev"

// newApp builds the command tree. A parsed command keeps its flag state, so
// every run gets fresh flags.
func newApp() *cli.Command {
	return &cli.Command{
		Name:  "chatguard",
		Usage: "Rate-limit and content moderation for chat messages read from stdin",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:       "config",
				Usage:      "TOML config file",
				Value:      "./config.toml",
				Persistent: true,
			},
			&cli.BoolFlag{
				Name:       "use-defaults",
				Usage:      "Run with internal defaults if the config file is missing",
				Persistent: true,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Log decisions without carrying out any action",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "Validate the configuration file and exit",
				Action: cliValidate,
			},
			{
				Name:  "version",
				Usage: "Print the version and exit",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Println(version)
					return nil
				},
			},
			{
				Name:  "timeouts",
				Usage: "Inspect the timeout ledger",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List active timeouts",
						Action: cliTimeoutsList,
					},
					{
						Name:      "clear",
						Usage:     "Lift the timeout of one or more identities",
						ArgsUsage: "<identity>...",
						Action:    cliTimeoutsClear,
					},
				},
			},
		},
		Action: cliRun,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "chatguard: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"log"
	"os"

	"github.com/ledgerbench/ledgerbench/internal/cli"
	"github.com/ledgerbench/ledgerbench/internal/config"
	commands "github.com/urfave/cli/v3"
)

func main() {
	configFlag := &commands.StringFlag{
		Name:    "config",
		Usage:   "Path to the harness configuration",
		Aliases: []string{"c"},
		Value:   config.DefaultPath,
	}

	overrideFlags := []commands.Flag{
		configFlag,
		&commands.StringFlag{Name: "binaries-dir", Usage: "Directory holding the node, generator and inspector binaries"},
		&commands.StringFlag{Name: "work-dir", Usage: "Scratch directory for configs, databases and reports"},
		&commands.IntFlag{Name: "validators", Usage: "Validator count"},
		&commands.IntFlag{Name: "start-port", Usage: "Base port for the deterministic port allocator"},
		&commands.IntFlag{Name: "propose-timeout", Usage: "Consensus propose timeout override (ms)"},
		&commands.IntFlag{Name: "tx-multiplier", Usage: "tx_count = package_size * multiplier"},
		&commands.IntFlag{Name: "package-size-min", Usage: "Sweep package size lower bound"},
		&commands.IntFlag{Name: "package-size-max", Usage: "Sweep package size upper bound"},
		&commands.IntFlag{Name: "package-size-step", Usage: "Sweep package size step"},
		&commands.IntFlag{Name: "tx-timeout", Usage: "Per-burst generator timeout (ms)"},
	}

	cmd := &commands.Command{
		Name:  "ledgerbench",
		Usage: "Multi-node ledger benchmark harness",
		Before: func(ctx context.Context, cmd *commands.Command) (context.Context, error) {
			cli.SetupLogging(cmd.Bool("verbose"))
			return ctx, nil
		},
		Flags: []commands.Flag{
			&commands.BoolFlag{Name: "verbose", Usage: "Show debug logging", Aliases: []string{"v"}},
		},
		Commands: []*commands.Command{
			{
				Name:   "init",
				Usage:  "Create a default configuration file",
				Flags:  []commands.Flag{configFlag},
				Action: cli.Init,
			},
			{
				Name:   "sweep",
				Usage:  "Run the full package-size sweep",
				Flags:  overrideFlags,
				Action: cli.Sweep,
			},
			{
				Name:  "bench",
				Usage: "Run a single bench point",
				Flags: append([]commands.Flag{
					&commands.IntFlag{Name: "package-size", Usage: "Burst size for this run"},
					&commands.IntFlag{Name: "tx-count", Usage: "Total transactions for this run"},
				}, overrideFlags...),
				Action: cli.Bench,
			},
			{
				Name:      "check",
				Usage:     "Verify a hash list against node databases",
				ArgsUsage: "<hashes-file>",
				Flags: append([]commands.Flag{
					&commands.StringSliceFlag{Name: "db", Usage: "Node database directory (repeatable)"},
				}, overrideFlags...),
				Action: cli.Check,
			},
			{
				Name:  "history",
				Usage: "List recent bench runs",
				Flags: append([]commands.Flag{
					&commands.IntFlag{Name: "limit", Usage: "Maximum rows to list", Value: 20},
				}, overrideFlags...),
				Action: cli.History,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

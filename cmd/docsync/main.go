package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/dshills/docsync/internal/searcher"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		// The summary is already printed for runs that finished with failures
		if !errors.Is(err, errRunFailures) {
			fmt.Fprintln(os.Stderr, "docsync:", err)
		}
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "docsync",
		Usage:   "keep a searchable documentation index in sync with a git repository",
		Version: fmt.Sprintf("%s (built %s)", version, buildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "repo",
				Usage: "repository path",
				Value: ".",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "config file (default: docsync.yaml, .yml, .toml or .json in the repository root)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "text or json",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "index every documentable element under the source paths",
				Flags: []cli.Flag{
					versionTagFlag(),
					freezeFlag(),
					&cli.BoolFlag{
						Name:  "write-config",
						Usage: "write the effective configuration to the config file if it does not exist",
					},
				},
				Action: initAction,
			},
			{
				Name:      "doc-pr",
				Usage:     "document the changes introduced by one commit",
				ArgsUsage: "<sha>",
				Flags:     []cli.Flag{versionTagFlag(), freezeFlag()},
				Action:    docPRAction,
			},
			{
				Name:  "sync",
				Usage: "index the changes since the last synced commit",
				Flags: []cli.Flag{
					versionTagFlag(),
					freezeFlag(),
					&cli.StringFlag{
						Name:  "from",
						Usage: "base ref (default: last synced ref)",
					},
					&cli.StringFlag{
						Name:  "to",
						Usage: "target ref (default: HEAD)",
					},
					&cli.BoolFlag{
						Name:  "worktree",
						Usage: "compare against the working tree instead of a commit",
					},
				},
				Action: syncAction,
			},
			{
				Name:   "update-db",
				Usage:  "harvest documentation already in source without generating",
				Flags:  []cli.Flag{versionTagFlag()},
				Action: updateDBAction,
			},
			{
				Name:      "search",
				Usage:     "search the documentation index",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "version-tag",
						Usage: "only this version tag (default: every tag)",
					},
					&cli.StringFlag{
						Name:  "language",
						Usage: "only this language",
					},
					&cli.StringFlag{
						Name:  "kind",
						Usage: "module, class, function or method",
					},
					&cli.StringSliceFlag{
						Name:  "prefix",
						Usage: "ancestor qualified names, outermost first",
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "hybrid, vector or keyword",
						Value: string(searcher.SearchModeHybrid),
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "maximum number of results",
						Value: searcher.DefaultLimit,
					},
				},
				Action: searchAction,
			},
			{
				Name:   "status",
				Usage:  "print run state and index statistics",
				Action: statusAction,
			},
			{
				Name:   "serve",
				Usage:  "run the MCP server on stdio",
				Action: serveAction,
			},
		},
	}
}

// Flags keep parse state, so every command gets its own instance
func versionTagFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "version-tag",
		Usage: "index under this version tag (default: untagged)",
	}
}

func freezeFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "freeze",
		Usage: "never call the generator; only index documentation already in source",
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dshills/docsync/internal/changes"
	"github.com/dshills/docsync/internal/config"
	"github.com/dshills/docsync/internal/indexer"
	"github.com/dshills/docsync/internal/logger"
	"github.com/dshills/docsync/internal/mcp"
	"github.com/dshills/docsync/internal/searcher"
	"github.com/dshills/docsync/pkg/types"
)

// errRunFailures makes the process exit non-zero after a run that finished
// with failed elements, unsynced records or parse errors
var errRunFailures = errors.New("run finished with failures")

// app is what every command needs: the loaded config and an open indexer
type app struct {
	root    string
	cfg     *config.Config
	logger  *slog.Logger
	indexer *indexer.Indexer
}

func openApp(ctx context.Context, cmd *cli.Command) (*app, error) {
	root, err := repoRoot(cmd.String("repo"))
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(root, cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := cmd.String("log-format"); v != "" {
		cfg.Log.Format = v
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Config{Level: level, Format: cfg.Log.Format})

	idx, err := indexer.Open(ctx, root, cfg, log)
	if err != nil {
		return nil, err
	}
	return &app{root: root, cfg: cfg, logger: log, indexer: idx}, nil
}

func (a *app) Close() {
	if err := a.indexer.Close(); err != nil {
		a.logger.Warn("failed to close index", "error", err)
	}
}

// repoRoot returns the enclosing repository root, or dir itself when it is
// not inside a repository
func repoRoot(dir string) (string, error) {
	repo, err := changes.Open(dir, changes.DefaultRenameThreshold)
	if errors.Is(err, changes.ErrNotRepository) {
		return filepath.Abs(dir)
	}
	if err != nil {
		return "", err
	}
	return repo.Root(), nil
}

func runOptions(cmd *cli.Command) indexer.RunOptions {
	return indexer.RunOptions{
		VersionTag: cmd.String("version-tag"),
		Freeze:     cmd.Bool("freeze"),
		FromRef:    cmd.String("from"),
		ToRef:      cmd.String("to"),
		Worktree:   cmd.Bool("worktree"),
	}
}

type runFunc func(ctx context.Context, idx *indexer.Indexer, opts indexer.RunOptions) (*types.RunSummary, error)

// runAction wraps one indexing mode: open, run, print, close
func runAction(mode string, run runFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := runOptions(cmd)
		summary, err := run(ctx, a.indexer, opts)
		if summary != nil {
			printSummary(output(cmd), mode, opts.VersionTag, summary)
		}
		if err != nil {
			return err
		}
		if mode == indexer.ModeInit && cmd.Bool("write-config") {
			if err := writeConfig(a, cmd.String("config")); err != nil {
				return err
			}
		}
		if summary.HasFailures() {
			return errRunFailures
		}
		return nil
	}
}

var (
	initAction = runAction(indexer.ModeInit, func(ctx context.Context, idx *indexer.Indexer, opts indexer.RunOptions) (*types.RunSummary, error) {
		return idx.Init(ctx, opts)
	})
	syncAction = runAction(indexer.ModeSync, func(ctx context.Context, idx *indexer.Indexer, opts indexer.RunOptions) (*types.RunSummary, error) {
		return idx.Sync(ctx, opts)
	})
	updateDBAction = runAction(indexer.ModeUpdateDB, func(ctx context.Context, idx *indexer.Indexer, opts indexer.RunOptions) (*types.RunSummary, error) {
		return idx.UpdateDB(ctx, opts)
	})
)

func docPRAction(ctx context.Context, cmd *cli.Command) error {
	sha := cmd.Args().First()
	if sha == "" {
		return fmt.Errorf("doc-pr requires a commit sha")
	}
	return runAction(indexer.ModeDocPR, func(ctx context.Context, idx *indexer.Indexer, opts indexer.RunOptions) (*types.RunSummary, error) {
		return idx.DocPR(ctx, sha, opts)
	})(ctx, cmd)
}

// writeConfig saves the effective configuration unless a file is already
// there
func writeConfig(a *app, path string) error {
	if path == "" {
		path = filepath.Join(a.root, config.FileNames[0])
	}
	if _, err := os.Stat(path); err == nil {
		a.logger.Info("config file exists, not overwriting", "path", path)
		return nil
	}
	if err := a.cfg.Save(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	a.logger.Info("wrote config", "path", path)
	return nil
}

func searchAction(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("search requires a query")
	}

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	filter := types.Filter{
		Language:        cmd.String("language"),
		Kind:            types.ElementKind(cmd.String("kind")),
		HierarchyPrefix: cmd.StringSlice("prefix"),
	}
	if cmd.IsSet("version-tag") {
		filter.VersionTag = types.Tag(cmd.String("version-tag"))
	}

	resp, err := a.indexer.Search(ctx, searcher.SearchRequest{
		Query:  query,
		Limit:  cmd.Int("limit"),
		Mode:   searcher.SearchMode(cmd.String("mode")),
		Filter: filter,
	})
	if err != nil {
		return err
	}
	printResults(output(cmd), resp)
	return nil
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.indexer.Status(ctx)
	if err != nil {
		return err
	}
	printStatus(output(cmd), st)
	return nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	err = mcp.NewServer(a.indexer, a.logger).Serve(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		a.logger.Info("server stopped")
		return nil
	}
	return err
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

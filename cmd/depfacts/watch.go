package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/brunobiangulo/depfacts"
	"github.com/brunobiangulo/depfacts/watch"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Re-extract documents as they change",
	Long: `Watches a directory tree, extracts every matching document once, then
re-extracts created or modified documents and deletes the triples of removed
ones. Patterns are doublestar globs relative to the watched directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	f := watchCmd.Flags()
	f.StringSlice("include", nil, "Patterns of files to extract (default all supported formats)")
	f.StringSlice("exclude", nil, "Patterns of files to ignore")
	f.Duration("debounce", 0, "How long to collect changes before extracting")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("include") {
		cfg.Watch.Include, _ = flags.GetStringSlice("include")
	}
	if flags.Changed("exclude") {
		cfg.Watch.Exclude, _ = flags.GetStringSlice("exclude")
	}
	if flags.Changed("debounce") {
		cfg.Watch.Debounce, _ = flags.GetDuration("debounce")
	}
	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	w, err := watch.New(watch.Config{
		Root:          root,
		Include:       cfg.Watch.Include,
		Exclude:       cfg.Watch.Exclude,
		DebounceDelay: cfg.Watch.Debounce,
		Logger:        slog.Default(),
	})
	if err != nil {
		return err
	}

	engine, err := depfacts.New(cfg)
	if err != nil {
		w.Stop()
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := w.Scan()
	if err != nil {
		w.Stop()
		return err
	}
	slog.Info("watch: initial extraction", "root", w.Root(), "files", len(files))
	for _, f := range files {
		applyEvent(ctx, engine, watch.Event{Path: f, Op: watch.OpCreate})
	}

	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watch: stopping")
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			applyEvent(ctx, engine, ev)
		}
	}
}

// applyEvent brings the store in line with one file change. Failures are
// logged; the watcher keeps running.
func applyEvent(ctx context.Context, engine *depfacts.Engine, ev watch.Event) {
	if ev.Error != nil {
		slog.Warn("watch: cannot read file", "path", ev.Path, "error", ev.Error)
		return
	}

	switch ev.Op {
	case watch.OpDelete:
		err := engine.DeletePath(ctx, ev.Path)
		if err != nil && !errors.Is(err, depfacts.ErrDocumentNotFound) {
			slog.Warn("watch: delete failed", "path", ev.Path, "error", err)
			return
		}
		slog.Info("watch: document removed", "path", ev.Path)
	default:
		res, err := engine.ExtractFile(ctx, ev.Path)
		if err != nil {
			slog.Warn("watch: extraction failed", "path", ev.Path, "op", ev.Op, "error", err)
			return
		}
		slog.Info("watch: document extracted", "path", ev.Path, "op", ev.Op,
			"doc_id", res.DocumentID, "skipped", res.Skipped, "triples", len(res.Triples))
	}
}

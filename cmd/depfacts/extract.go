package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/brunobiangulo/depfacts"
	"github.com/brunobiangulo/depfacts/export"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file or glob ...]",
	Short: "Extract triples from documents",
	Long: `Extract triples from text (one sentence per line), PDF, DOCX, XLSX or
CoNLL-U files. Patterns may use ** to match across directories. With no
arguments, text is read from standard input.

Output is appended to --output; pass --truncate to start from an empty file.`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	f := extractCmd.Flags()
	f.StringP("output", "o", "", "Append triples to this file (default stdout)")
	f.StringP("format", "f", "", "Output format: "+fmt.Sprint(export.Formats()))
	f.Bool("truncate", false, "Empty the output file before writing")
	f.Bool("sentence-ids", false, "Prefix each triple with its sentence index")
	f.Bool("force", false, "Re-extract files whose content has not changed")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.OutputFormat, _ = flags.GetString("format")
	}
	if flags.Changed("sentence-ids") {
		cfg.SentenceColumn, _ = flags.GetBool("sentence-ids")
	}
	outPath, _ := flags.GetString("output")
	truncate, _ := flags.GetBool("truncate")
	force, _ := flags.GetBool("force")

	format, err := resolveOutputFormat(cfg.OutputFormat, outPath, flags.Changed("format"))
	if err != nil {
		return err
	}

	files, err := expandPatterns(args)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		if truncate {
			if err := export.Truncate(outPath); err != nil {
				return fmt.Errorf("truncating output: %w", err)
			}
		}
		f, err := export.AppendFile(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	engine, err := depfacts.New(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	w, err := export.NewWriter(out, format, engine.WriterOptions()...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(files) == 0 {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		if _, err := engine.ExtractText(ctx, "stdin", string(data), depfacts.WithSink(w)); err != nil {
			w.Flush()
			return err
		}
		return w.Flush()
	}

	opts := []depfacts.ExtractOption{depfacts.WithSink(w)}
	if force {
		opts = append(opts, depfacts.WithForce())
	}
	failed := 0
	for _, file := range files {
		res, err := engine.ExtractFile(ctx, file, opts...)
		if err != nil {
			if ctx.Err() != nil {
				w.Flush()
				return err
			}
			failed++
			slog.Error("extract: file failed", "file", file, "error", err)
			continue
		}
		if res.Skipped {
			// Unchanged files still produce output from the store.
			triples, err := engine.Triples(ctx, res.DocumentID)
			if err != nil {
				return err
			}
			for _, t := range triples {
				w.Add(t)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	slog.Info("extract: done", "files", len(files), "failed", failed, "triples", w.Count())
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// resolveOutputFormat picks the explicit format, else one matching the
// output file extension, else the configured default.
func resolveOutputFormat(configured, outPath string, explicit bool) (export.Format, error) {
	if !explicit && outPath != "" {
		if f, ok := export.FormatForPath(outPath); ok {
			return f, nil
		}
	}
	f, err := export.ParseFormat(configured)
	if err != nil {
		return "", fmt.Errorf("%w: %v", depfacts.ErrUnsupportedFormat, err)
	}
	return f, nil
}

// expandPatterns resolves file arguments and doublestar globs into a sorted,
// de-duplicated list of regular files.
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			return
		}
		seen[abs] = true
		files = append(files, abs)
	}

	for _, pattern := range patterns {
		if info, err := os.Stat(pattern); err == nil {
			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory; use a pattern such as %s", pattern,
					filepath.Join(pattern, "**", "*.txt"))
			}
			add(pattern)
			continue
		}
		if !doublestar.ValidatePathPattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		for _, m := range matches {
			add(m)
		}
	}
	sort.Strings(files)
	return files, nil
}

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/brunobiangulo/depfacts"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "depfacts",
	Short: "Extract semantic fact triples from dependency-parsed text",
	Long: `depfacts sends each sentence of a document to a dependency parser
(a CoreNLP server or a CoNLL-U corpus), folds modifier chains into compound
terms and resolves connective relations into subject/predicate/object triples.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		format, _ := cmd.Flags().GetString("log-format")
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = "debug"
		}
		logger, err := newLogger(cmd.ErrOrStderr(), level, format)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to a YAML config file")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text or json")
	pf.BoolP("verbose", "v", false, "Log every edge and triple")
	pf.String("db", "", "SQLite database path (overrides config)")
	pf.String("source", "", "Dependency source: corenlp or conllu")
	pf.String("corenlp-url", "", "CoreNLP server URL")
	pf.String("scheme", "", "Dependency scheme: basic, enhanced, enhanced++")
	pf.String("conllu", "", "CoNLL-U file to read annotations from (implies --source conllu)")
	pf.String("redis", "", "Redis address for the annotation cache")
	pf.String("nats", "", "NATS URL to publish triples to")
	pf.Bool("continue-on-error", false, "Record sentences the parser fails on and keep going")
}

// loadConfig reads --config and applies command line overrides.
func loadConfig(cmd *cobra.Command) (depfacts.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := depfacts.ReadConfig(path)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("db", &cfg.DBPath)
	str("source", &cfg.Source.Provider)
	str("corenlp-url", &cfg.Source.BaseURL)
	str("scheme", &cfg.Source.Scheme)
	str("redis", &cfg.Cache.Addr)
	str("nats", &cfg.Publish.URL)
	if flags.Changed("conllu") {
		cfg.Source.Path, _ = flags.GetString("conllu")
		if !flags.Changed("source") {
			cfg.Source.Provider = "conllu"
		}
	}
	if v, _ := flags.GetBool("verbose"); v {
		cfg.Verbose = true
	}
	if flags.Changed("continue-on-error") {
		cfg.ContinueOnError, _ = flags.GetBool("continue-on-error")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// openEngine loads the configuration and creates an engine.
func openEngine(cmd *cobra.Command) (*depfacts.Engine, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return depfacts.New(cfg)
}

package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/brunobiangulo/depfacts/export"
	"github.com/brunobiangulo/depfacts/extract"
	"github.com/spf13/cobra"
)

var triplesCmd = &cobra.Command{
	Use:   "triples [document-id]",
	Short: "Print stored triples of a document or a term",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTriples,
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List extracted documents",
	RunE:  runDocuments,
}

func init() {
	rootCmd.AddCommand(triplesCmd, documentsCmd)
	triplesCmd.Flags().StringP("format", "f", "", "Output format: "+fmt.Sprint(export.Formats()))
	triplesCmd.Flags().String("term", "", "Print triples whose subject or object is this term")
	triplesCmd.Flags().Int("limit", 0, "Maximum number of term triples (0 = all)")
	triplesCmd.Flags().Bool("sentence-ids", false, "Prefix each triple with its sentence index")
	documentsCmd.Flags().Bool("json", false, "Print JSON instead of a table")
}

func runTriples(cmd *cobra.Command, args []string) error {
	term, _ := cmd.Flags().GetString("term")
	if (term == "") == (len(args) == 0) {
		return fmt.Errorf("give either a document id or --term")
	}

	engine, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer engine.Close()

	cfg := engine.Config()
	if cmd.Flags().Changed("format") {
		cfg.OutputFormat, _ = cmd.Flags().GetString("format")
	}
	format, err := export.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return err
	}
	sentenceIDs := cfg.SentenceColumn
	if cmd.Flags().Changed("sentence-ids") {
		sentenceIDs, _ = cmd.Flags().GetBool("sentence-ids")
	}

	var triples []extract.Triple
	if term != "" {
		limit, _ := cmd.Flags().GetInt("limit")
		triples, err = engine.TriplesForTerm(cmd.Context(), term, limit)
	} else {
		id, perr := strconv.ParseInt(args[0], 10, 64)
		if perr != nil {
			return fmt.Errorf("invalid document id %q", args[0])
		}
		triples, err = engine.Triples(cmd.Context(), id)
	}
	if err != nil {
		return err
	}

	opts := append(engine.WriterOptions(), export.WithSentenceColumn(sentenceIDs))
	return export.WriteAll(cmd.OutOrStdout(), format, triples, opts...)
}

func runDocuments(cmd *cobra.Command, args []string) error {
	engine, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer engine.Close()

	docs, err := engine.Documents(cmd.Context())
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSENTENCES\tTRIPLES\tFAILURES\tPATH")
	for _, d := range docs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\n",
			d.ID, d.Status, d.SentenceCount, d.TripleCount, d.FailureCount, d.Path)
	}
	return tw.Flush()
}

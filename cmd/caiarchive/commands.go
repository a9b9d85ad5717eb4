package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/caiarchive/internal/config"
)

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search archived decisions",
	Long: `Search archived decisions through the running server.

Examples:
  caiarchive search vidéosurveillance
  caiarchive search --year 2024 --org "Ville de Montréal"
  caiarchive search accès --page 2 --limit 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		year, _ := cmd.Flags().GetInt("year")
		org, _ := cmd.Flags().GetString("org")
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), searchQuery(query, year, org, page, limit))
		if err != nil {
			return err
		}

		var result searchResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSearchResult(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("year", 0, "listing year")
	searchCmd.Flags().String("org", "", "organization name (substring)")
	searchCmd.Flags().Int("page", 1, "page number")
	searchCmd.Flags().Int("limit", 20, "results per page (max 100)")
}

func printSearchResult(w io.Writer, result searchResult) {
	if len(result.Decisions) == 0 {
		fmt.Fprintln(w, "No decisions found.")
		return
	}

	for _, d := range result.Decisions {
		fmt.Fprintf(w, "%s  %s  %s\n",
			colorize(colorCyan, d.DecisionNumber),
			d.DecisionDate,
			truncate(d.Subject, 80),
		)
	}
	fmt.Fprintf(w, "\nPage %d of %d (%d decisions)\n", result.Page, result.Pages, result.Total)
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single decision with its extracted text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
			return fmt.Errorf("invalid decision id %q", args[0])
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/decisions/"+args[0])
		if err != nil {
			return err
		}

		var d decision
		if err := decodeJSON(resp, &d); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		}
		printDecision(cmd.OutOrStdout(), d)
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("json", false, "print the raw JSON record")
}

func printDecision(w io.Writer, d decision) {
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Decision"), d.DecisionNumber)
	fmt.Fprintf(w, "  Date:         %s\n", d.DecisionDate)
	fmt.Fprintf(w, "  Organization: %s\n", d.Organization)
	fmt.Fprintf(w, "  Subject:      %s\n", d.Subject)
	if d.DocumentURL != "" {
		fmt.Fprintf(w, "  Document:     %s\n", d.DocumentURL)
	}
	if d.DecisionURL != "" {
		fmt.Fprintf(w, "  Decision:     %s\n", d.DecisionURL)
	}

	switch {
	case d.PDFText == nil:
		fmt.Fprintln(w, "\n(text not extracted yet)")
	case *d.PDFText == "":
		fmt.Fprintln(w, "\n(no text could be extracted)")
	default:
		fmt.Fprintf(w, "\n%s\n", *d.PDFText)
	}
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show archive statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/decisions/stats/summary")
		if err != nil {
			return err
		}

		var st stats
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s %d\n", colorize(colorBold, "Decisions:"), st.Total)
		fmt.Fprintf(w, "%s %d (%.1f%%)\n", colorize(colorBold, "With text:"), st.WithExtractedText, st.ExtractionPercentage)
		for _, y := range st.YearBreakdown {
			fmt.Fprintf(w, "  %d  %d\n", y.Year, y.Count)
		}
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent ingestion runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/decisions/history?limit=%d", limit))
		if err != nil {
			return err
		}

		var runs []run
		if err := decodeJSON(resp, &runs); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return nil
		}
		for _, r := range runs {
			fmt.Fprintf(w, "%s  %s  %s  +%d ~%d !%d\n",
				r.ScrapedAt,
				runStatus(r.Status),
				r.RunID,
				r.RecordsAdded,
				r.RecordsUpdated,
				r.RecordsSkipped,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of runs to list")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			line := fmt.Sprintf("  %s = %s", colorize(colorBold, k.Key), k.Value)
			if k.FromEnv {
				line += colorize(colorYellow, "  (from "+k.EnvVar+")")
			}
			fmt.Fprintln(w, line)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset <key>",
	Short: "Remove a stored value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ResetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Reset %s", args[0])
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print where configuration is stored",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), config.Location())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
	configCmd.AddCommand(configPathCmd)
}

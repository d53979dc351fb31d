package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/garnet-sec/garnet/pkg/allowlist"
	"github.com/garnet-sec/garnet/pkg/store"
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditStatsCmd)
	auditCmd.AddCommand(auditDenialsCmd)

	auditTailCmd.Flags().String("email", "", "Filter by email")
	auditTailCmd.Flags().String("event", "", "Filter by event type")
	auditTailCmd.Flags().Int("limit", 50, "Maximum entries to show")
	auditStatsCmd.Flags().Int("days", 7, "Trailing window in days")
	auditDenialsCmd.Flags().Int("hours", 24, "Trailing window in hours")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
	Long: `The audit log records every authorization decision and every admin
mutation. It is append-only: nothing here can modify or delete entries.`,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show recent audit entries",
	Long: `Show the most recent audit entries, newest first.

Examples:
  garnetctl audit tail
  garnetctl audit tail --email alice@example.com
  garnetctl audit tail --event api_deny --limit 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		event, _ := cmd.Flags().GetString("event")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, total, err := db.QueryAuditEntries(cmd.Context(), store.AuditFilter{
			Email: allowlist.Normalize(email),
			Event: event,
			Limit: limit,
		})
		if err != nil {
			return fmt.Errorf("failed to query audit log: %w", err)
		}

		if outputFormat != "table" {
			if len(entries) == 0 {
				fmt.Println("[]")
				return nil
			}
			return formatOutput(entries)
		}

		if len(entries) == 0 {
			fmt.Println("No audit entries found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tEVENT\tEMAIL\tPATH\tIP\tDETAILS")
		for _, e := range entries {
			email := "-"
			if e.Email != nil {
				email = *e.Email
			}
			path := "-"
			if e.Path != nil {
				path = *e.Path
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Format(time.RFC3339), colorEvent(e.Event), email, path, e.IP,
				formatDetails(e.Details))
		}
		w.Flush()
		fmt.Printf("\nShowing %d of %d entries.\n", len(entries), total)
		return nil
	},
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate audit activity by event type",
	Long: `Per-event counts, distinct emails, and distinct IPs over a trailing
window.

Examples:
  garnetctl audit stats
  garnetctl audit stats --days 30`,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")

		stats, err := db.AuditStats(cmd.Context(), days)
		if err != nil {
			return fmt.Errorf("failed to compute stats: %w", err)
		}

		if outputFormat != "table" {
			if len(stats) == 0 {
				fmt.Println("[]")
				return nil
			}
			return formatOutput(stats)
		}

		if len(stats) == 0 {
			fmt.Printf("No audit activity in the last %d days.\n", days)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EVENT\tCOUNT\tEMAILS\tIPS")
		for _, st := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", colorEvent(st.Event), st.Count, st.DistinctEmails, st.DistinctIPs)
		}
		w.Flush()
		return nil
	},
}

var auditDenialsCmd = &cobra.Command{
	Use:   "denials",
	Short: "Show recent denied requests",
	Long: `Deny-class events from a trailing window, newest first, capped at 50.
Repeated denials from one IP are worth a closer look.

Examples:
  garnetctl audit denials
  garnetctl audit denials --hours 72`,
	RunE: func(cmd *cobra.Command, args []string) error {
		hours, _ := cmd.Flags().GetInt("hours")

		entries, err := db.RecentDenials(cmd.Context(), hours)
		if err != nil {
			return fmt.Errorf("failed to query denials: %w", err)
		}

		if outputFormat != "table" {
			if len(entries) == 0 {
				fmt.Println("[]")
				return nil
			}
			return formatOutput(entries)
		}

		if len(entries) == 0 {
			fmt.Printf("No denials in the last %d hours.\n", hours)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tEVENT\tEMAIL\tIP\tREASON")
		for _, e := range entries {
			email := "-"
			if e.Email != nil {
				email = *e.Email
			}
			reason := "-"
			if r, ok := e.Details["reason"]; ok {
				reason = r
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Format(time.RFC3339), colorEvent(e.Event), email, e.IP, reason)
		}
		w.Flush()
		return nil
	},
}

func colorEvent(event string) string {
	switch {
	case strings.HasSuffix(event, "_deny"):
		return color.RedString(event)
	case strings.HasSuffix(event, "_allow"):
		return color.GreenString(event)
	case strings.HasPrefix(event, "admin_"):
		return color.YellowString(event)
	default:
		return event
	}
}

func formatDetails(details map[string]string) string {
	if len(details) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(details))
	for k, v := range details {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}

// Package cmd implements the garnetctl CLI commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/garnet-sec/garnet/internal/version"
	"github.com/garnet-sec/garnet/pkg/allowlist"
	"github.com/garnet-sec/garnet/pkg/audit"
	"github.com/garnet-sec/garnet/pkg/store"
)

var (
	// Global flags
	outputFormat string
	dbPath       string
	actingAdmin  string

	// Shared instances opened by the root pre-run
	db       *store.Store
	service  *allowlist.Service
	recorder *audit.Recorder
)

var rootCmd = &cobra.Command{
	Use:   "garnetctl",
	Short: "Manage the garnet allow list and audit log",
	Long: `garnetctl administers the garnet authorization engine's database
directly: invite and revoke users on the allow list, and inspect the
audit trail of authorization decisions.

Mutations made here are audit-logged the same way API mutations are,
attributed to --by (default "system").`,
	Version:      version.String(),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" || cmd.Name() == "help" {
			return nil
		}

		path := dbPath
		if path == "" {
			path = store.DefaultPath()
		}

		var err error
		db, err = store.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		service = allowlist.NewService(db, allowlist.NewMemoryCache(0), logger)
		recorder = audit.NewRecorder(db, logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.local/share/garnet/garnet.db)")
	rootCmd.PersistentFlags().StringVar(&actingAdmin, "by", "system", "Acting admin recorded on mutations")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// cliMeta attributes CLI mutations in the audit log.
func cliMeta() audit.RequestMeta {
	return audit.RequestMeta{Path: "cli", IP: "local", UserAgent: "garnetctl/" + version.String()}
}

// formatOutput handles output formatting based on the --output flag.
func formatOutput(data interface{}) error {
	switch outputFormat {
	case "json":
		return outputJSON(data)
	case "yaml":
		return outputYAML(data)
	default:
		// Table format is handled by each command
		return nil
	}
}

func outputJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func outputYAML(data interface{}) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

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
	"github.com/garnet-sec/garnet/pkg/audit"
	"github.com/garnet-sec/garnet/pkg/store"
)

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersRemoveCmd)
	usersCmd.AddCommand(usersToggleCmd)

	usersListCmd.Flags().String("search", "", "Filter by email or display name substring")
	usersAddCmd.Flags().String("name", "", "Display name")
	usersAddCmd.Flags().String("role", store.RoleViewer, "Role: admin, viewer, or qa")
	usersRemoveCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the allow list",
	Long: `The allow list is the set of emails permitted to use the protected
application. Adding a user invites them; toggling flips them between
active and revoked without losing their history; removing deletes the
entry outright.`,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List allow-list entries",
	Long: `List all allow-list entries, newest first.

Examples:
  garnetctl users list
  garnetctl users list --search @example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		term, _ := cmd.Flags().GetString("search")

		var (
			entries []*store.Entry
			err     error
		)
		if term != "" {
			entries, err = service.SearchUsers(cmd.Context(), term)
		} else {
			entries, err = service.GetAllUsers(cmd.Context())
		}
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}

		if outputFormat != "table" {
			if len(entries) == 0 {
				fmt.Println("[]")
				return nil
			}
			return formatOutput(entries)
		}

		if len(entries) == 0 {
			fmt.Println("No users found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EMAIL\tNAME\tROLE\tSTATUS\tINVITED BY\tCREATED")
		for _, e := range entries {
			status := color.GreenString("active")
			if !e.Active {
				status = color.RedString("revoked")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Email, e.DisplayName, e.Role, status, e.InvitedBy,
				e.CreatedAt.Format(time.RFC3339))
		}
		w.Flush()
		return nil
	},
}

var usersAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Add or update an allow-list entry",
	Long: `Add an email to the allow list, or update its details if it already
exists. Re-adding a revoked user does not reactivate them; use toggle.

Examples:
  garnetctl users add alice@example.com
  garnetctl users add alice@example.com --name "Alice" --role admin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := allowlist.Normalize(args[0])
		name, _ := cmd.Flags().GetString("name")
		role, _ := cmd.Flags().GetString("role")

		if !store.ValidRole(role) {
			return fmt.Errorf("invalid role: %s (must be one of: admin, viewer, qa)", role)
		}

		if err := service.AddUser(cmd.Context(), email, name, role, actingAdmin); err != nil {
			return fmt.Errorf("failed to add user: %w", err)
		}
		recorder.Record(cmd.Context(), audit.NewAdminAddUser(actingAdmin, cliMeta(), email, role))

		fmt.Printf("Added %s (%s)\n", email, role)
		return nil
	},
}

var usersRemoveCmd = &cobra.Command{
	Use:     "remove <email>",
	Aliases: []string{"delete"},
	Short:   "Remove an allow-list entry",
	Long: `Delete an entry from the allow list. Prefer toggle for temporary
revocation: removal discards the entry's role and invitation details.

Examples:
  garnetctl users remove alice@example.com
  garnetctl users remove alice@example.com --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := allowlist.Normalize(args[0])
		yes, _ := cmd.Flags().GetBool("yes")

		if !yes {
			fmt.Printf("Are you sure you want to remove '%s'? [y/N]: ", email)
			var response string
			fmt.Scanln(&response)
			response = strings.ToLower(strings.TrimSpace(response))
			if response != "y" && response != "yes" {
				fmt.Println("Removal cancelled.")
				return nil
			}
		}

		if err := service.RemoveUser(cmd.Context(), email); err != nil {
			return fmt.Errorf("failed to remove user: %w", err)
		}
		recorder.Record(cmd.Context(), audit.NewAdminRemoveUser(actingAdmin, cliMeta(), email))

		fmt.Printf("Removed %s\n", email)
		return nil
	},
}

var usersToggleCmd = &cobra.Command{
	Use:   "toggle <email>",
	Short: "Flip an entry between active and revoked",
	Long: `Toggle an entry's active flag. Revoked users keep their entry and
history but fail every authorization check until toggled back.

Examples:
  garnetctl users toggle alice@example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := allowlist.Normalize(args[0])

		active, err := service.ToggleUserStatus(cmd.Context(), email)
		if err != nil {
			return fmt.Errorf("failed to toggle user: %w", err)
		}
		recorder.Record(cmd.Context(), audit.NewAdminToggleUser(actingAdmin, cliMeta(), email, active))

		if active {
			fmt.Printf("%s is now %s\n", email, color.GreenString("active"))
		} else {
			fmt.Printf("%s is now %s\n", email, color.RedString("revoked"))
		}
		return nil
	},
}

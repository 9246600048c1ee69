// internal/cli/session.go
package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/law-makers/rednote/internal/ui"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or clear the saved login",
		Long: `Shows or removes the saved login state. The state file holds the browser
cookies and local storage written after a successful login.`,
		Example: `  # Show where the login is stored and when it expires
  rednote session status

  # Forget the login, including the browser profile
  rednote session clear --profile --yes`,
	}
	cmd.AddCommand(newSessionStatusCmd(), newSessionClearCmd())
	return cmd
}

func newSessionStatusCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the saved login state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := GetApp(cmd)
			info, err := a.Store.Info()

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(info); encErr != nil {
					return encErr
				}
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "\n%s\n", ui.Bold("🔍 Session"))
			fmt.Fprintf(w, "%s\n\n", ui.Rule())
			fmt.Fprintln(w, ui.Field("State", info.Path))
			fmt.Fprintln(w, ui.Field("Profile", a.Config.ProfileDir))

			if !info.Exists {
				fmt.Fprintln(w, ui.Field("Status", ui.Info("not logged in")))
				fmt.Fprintf(w, "\n%s\n\n", ui.Dim(loginHint()))
				return nil
			}

			fmt.Fprintln(w, ui.Field("Saved", info.ModTime.Format(time.RFC1123)))
			if err != nil {
				fmt.Fprintln(w, ui.Field("Status", ui.Error("unreadable")))
				return fmt.Errorf("%w; run %s to remove it", err, ui.Accent("rednote session clear"))
			}
			fmt.Fprintln(w, ui.Field("Cookies", info.Cookies))
			fmt.Fprintln(w, ui.Field("Origins", info.Origins))

			switch {
			case info.ExpiresAt.IsZero():
				fmt.Fprintln(w, ui.Field("Status", ui.Success("saved")))
			case time.Now().After(info.ExpiresAt):
				fmt.Fprintln(w, ui.Field("Status", ui.Error(fmt.Sprintf("⚠️  expired (%s ago)", time.Since(info.ExpiresAt).Round(time.Hour)))))
			default:
				fmt.Fprintln(w, ui.Field("Expires", fmt.Sprintf("%s (in %s)",
					info.ExpiresAt.Format(time.RFC1123), time.Until(info.ExpiresAt).Round(time.Hour))))
			}
			fmt.Fprintln(w)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")
	return cmd
}

func newSessionClearCmd() *cobra.Command {
	var (
		yes     bool
		profile bool
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the saved login state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := GetApp(cmd)
			w := cmd.OutOrStdout()

			if !yes {
				fmt.Fprintf(w, "\n⚠️  Delete the saved login at %s? [y/N]: ", a.Store.Path())
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				answer = strings.TrimSpace(answer)
				if answer != "y" && answer != "Y" {
					fmt.Fprintln(w, "Cancelled.")
					return nil
				}
			}

			a.Store.Delete()
			if profile {
				if err := os.RemoveAll(a.Config.ProfileDir); err != nil {
					return fmt.Errorf("failed to remove browser profile: %w", err)
				}
			}

			fmt.Fprintf(w, "\n%s\n\n", ui.Success("✓ Saved login cleared."))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().BoolVar(&profile, "profile", false, "Also delete the browser profile directory")
	return cmd
}

// internal/cli/login.go
package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/law-makers/rednote/internal/ui"
)

func newLoginCmd() *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to RedNote and save the session",
		Long: `Opens the RedNote site in the browser and waits for you to log in, usually
by scanning the QR code with the mobile app. Once the profile page link appears
the login state is saved and later searches reuse it.`,
		Example: `  # Log in with a visible browser window
  rednote login

  # Check an existing login without showing the browser
  rednote login --headless`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := GetApp(cmd)
			w := cmd.OutOrStdout()

			fmt.Fprintf(w, "\n%s\n", ui.Bold("🔐 Interactive Login"))
			fmt.Fprintf(w, "%s\n\n", ui.Rule())
			fmt.Fprintln(w, ui.Field("Site", a.Config.ExploreURL))
			fmt.Fprintln(w, ui.Field("State", a.Store.Path()))
			fmt.Fprintf(w, "%s\n\n", ui.Field("Timeout", pollWindow(a.Config)))

			log.Info().Bool("headless", headless).Msg("Initiating login")
			ok, err := a.Login.Login(cmd.Context(), headless)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if !ok {
				return fmt.Errorf("login was not detected within %s", pollWindow(a.Config))
			}

			fmt.Fprintln(w, ui.Success("✓ Logged in, session saved"))
			fmt.Fprintf(w, "\n%s\n", ui.Bold("You can now search with:"))
			fmt.Fprintf(w, "  %s\n\n", ui.Accent("rednote search <keywords>"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&headless, "headless", false, "Run the browser without a window")
	return cmd
}

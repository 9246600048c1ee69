// internal/cli/serve.go
package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/law-makers/rednote/internal/mcp"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the search_note and login tools over MCP stdio",
		Long: `Runs a Model Context Protocol server on stdin/stdout exposing the search_note
and login tools. Only protocol messages are written to stdout; logs go to
stderr.`,
		Example: `  # Command line to register with an MCP client
  rednote serve --log-file ~/.rednote/mcp.log`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := GetApp(cmd)
			server := mcp.NewServer(a.Searcher, a.Login, Version)

			log.Info().Str("searcher", a.Searcher.Name()).Msg("Starting MCP server")
			err := server.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			if interrupted(err) {
				log.Warn().Msg("Interrupt received, shutting down gracefully...")
				return nil
			}
			return err
		},
	}
}

// internal/cli/root.go
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/law-makers/rednote/internal/app"
	"github.com/law-makers/rednote/internal/config"
	"github.com/law-makers/rednote/internal/ui"
)

// Version is reported by --version and to MCP clients
var Version = "0.1.0"

// Options customizes how commands build the application
type Options struct {
	App app.Options
	// Configure adjusts the loaded configuration before the application is built
	Configure func(*config.Config)
}

// Streams are the standard streams commands read and write
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

type root struct {
	opts Options
	app  *app.Application
}

// Execute runs the CLI with the process arguments and returns the exit code.
// This is called by main.main().
func Execute(ctx context.Context) int {
	err := Run(ctx, os.Args[1:], Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}, Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.Error("Error: "+err.Error()))
		return 1
	}
	return 0
}

// Run executes one command line. The application is initialized lazily so
// help output never starts it, and it is closed before Run returns.
func Run(ctx context.Context, args []string, s Streams, opts Options) error {
	r := &root{opts: opts}
	cmd := r.command()
	cmd.SetArgs(args)
	if s.In != nil {
		cmd.SetIn(s.In)
	}
	if s.Out != nil {
		cmd.SetOut(s.Out)
	}
	if s.Err != nil {
		cmd.SetErr(s.Err)
	}

	err := cmd.ExecuteContext(ctx)
	if closeErr := r.close(); closeErr != nil && err == nil {
		log.Warn().Err(closeErr).Msg("Application did not shut down cleanly")
	}
	return err
}

func (r *root) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rednote",
		Short: "Search RedNote notes from the command line or an MCP client",
		Long: `rednote drives a real browser to search RedNote (Xiaohongshu), opens each
result and extracts the note's title, text, images and comments.

The browser profile and login state are kept between runs, so you log in once
with "rednote login" and later searches reuse the session.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Lazily initialize the application before running commands (avoid starting app for -h/help)
		PersistentPreRunE: r.initApp,
	}

	config.RegisterFlags(cmd)
	cmd.Flags().BoolP("help", "h", false, "Help for rednote")
	cmd.Flags().Bool("version", false, "Version for rednote")

	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetHelpFunc(customHelpFunc)
	cmd.SetUsageFunc(customUsageFunc)

	cmd.AddCommand(
		newSearchCmd(),
		newLoginCmd(),
		newSessionCmd(),
		newServeCmd(),
		newSelectorsCmd(),
	)
	return cmd
}

func (r *root) initApp(cmd *cobra.Command, args []string) error {
	if GetApp(cmd) != nil {
		return nil
	}

	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}
	if r.opts.Configure != nil {
		r.opts.Configure(cfg)
	}

	appOpts := r.opts.App
	if appOpts.LogWriter == nil {
		appOpts.LogWriter = cmd.ErrOrStderr()
	}
	a, err := app.NewWithOptions(cmd.Context(), cfg, appOpts)
	if err != nil {
		return err
	}

	r.app = a
	SetApp(cmd, a)
	log.Debug().Str("command", cmd.CommandPath()).Msg("Configuration loaded")
	return nil
}

func (r *root) close() error {
	if r.app == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.app.Config.OpTimeout)
	defer cancel()
	err := r.app.Close(ctx)
	r.app = nil
	return err
}

// interrupted reports whether err came from the user cancelling the command
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}

func loginHint() string {
	return fmt.Sprintf("run %s to log in", ui.Accent("rednote login"))
}

func pollWindow(cfg *config.Config) time.Duration {
	return time.Duration(cfg.LoginPollAttempts) * cfg.LoginPollInterval
}

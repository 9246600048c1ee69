package config

import "github.com/spf13/cobra"

// RegisterFlags registers common CLI flags on the provided root command
func RegisterFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	pf := cmd.PersistentFlags()
	pf.BoolP("verbose", "v", false, "Enable debug logging")
	pf.BoolP("quiet", "q", false, "Suppress all output except errors")
	pf.Bool("json", false, "Log in JSON format and skip progress output")
	pf.String("log-file", "", "Also write structured events to this rotating log file")

	pf.String("profile-dir", "", "Browser profile directory (default ~/.rednote/profile)")
	pf.String("state-file", "", "Saved login state file (default ~/.rednote/state.json)")
	pf.String("channel", "", "Browser channel: chrome, chromium or msedge")
	pf.String("chrome-path", "", "Explicit browser binary, overrides --channel")
	pf.String("proxy", "", "HTTP/SOCKS5 proxy, or a comma-separated list to rotate (e.g., http://localhost:8080)")
	pf.String("timeout", "", "Default timeout for browser operations (e.g., 30s)")
	pf.String("delay", "", "Pause before each navigation, click and fill (e.g., 100ms)")
	pf.String("user-agent", "", "Custom user agent string")

	pf.String("selectors", "", "JSON file overriding page selectors")
	pf.Float64("rate", 0, "Maximum note pages opened per second")
	pf.String("tesseract", "", "Path to the tesseract binary")
	pf.String("ocr-langs", "", "Tesseract language packs (e.g., chi_sim+eng)")
	pf.StringArray("image-header", nil, "Extra header for image downloads, repeatable (e.g., \"Cookie: a=b\")")
}

package chrome

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog/log"
)

// FindBrowser locates a browser binary for the given channel. An empty or
// unknown channel searches every known Chromium-based browser, preferring
// Google Chrome.
func FindBrowser(channel string) string {
	// 1. Environment variable has the highest priority
	if path := os.Getenv("CHROME_PATH"); path != "" {
		if isExecutable(path) {
			log.Debug().Str("path", path).Msg("Browser found via CHROME_PATH environment variable")
			return path
		}
		log.Warn().Str("path", path).Msg("CHROME_PATH set but not executable")
	}

	// 2. Standard install locations for the channel
	for _, path := range candidates(channel) {
		if isExecutable(path) {
			log.Debug().Str("path", path).Str("channel", channel).Str("os", runtime.GOOS).Msg("Browser found at standard location")
			return path
		}
	}

	// 3. PATH lookup
	for _, name := range pathNames(channel) {
		if path, err := exec.LookPath(name); err == nil {
			log.Debug().Str("path", path).Msg("Browser found in PATH")
			return path
		}
	}

	// 4. Let chromedp try its own default
	log.Warn().
		Str("os", runtime.GOOS).
		Str("channel", channel).
		Msg("Browser not found, falling back to chromedp default")
	return ""
}

func candidates(channel string) []string {
	var chrome, chromium, edge []string
	home := os.Getenv("HOME")

	switch runtime.GOOS {
	case "darwin":
		chrome = []string{"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"}
		chromium = []string{"/Applications/Chromium.app/Contents/MacOS/Chromium"}
		edge = []string{"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"}
		if home != "" {
			chrome = append(chrome, filepath.Join(home, "Applications/Google Chrome.app/Contents/MacOS/Google Chrome"))
			chromium = append(chromium, filepath.Join(home, "Applications/Chromium.app/Contents/MacOS/Chromium"))
		}

	case "windows":
		for _, base := range []string{os.Getenv("ProgramFiles"), os.Getenv("ProgramFiles(x86)"), os.Getenv("LocalAppData")} {
			if base == "" {
				continue
			}
			chrome = append(chrome, filepath.Join(base, "Google\\Chrome\\Application\\chrome.exe"))
			chromium = append(chromium, filepath.Join(base, "Chromium\\Application\\chrome.exe"))
			edge = append(edge, filepath.Join(base, "Microsoft\\Edge\\Application\\msedge.exe"))
		}

	case "linux":
		chrome = []string{"/usr/bin/google-chrome-stable", "/usr/bin/google-chrome"}
		chromium = []string{"/usr/bin/chromium-browser", "/usr/bin/chromium", "/snap/bin/chromium"}
		edge = []string{"/usr/bin/microsoft-edge"}
		if home != "" {
			chrome = append(chrome, filepath.Join(home, ".local/share/flatpak/exports/bin/com.google.Chrome"))
			chromium = append(chromium, filepath.Join(home, ".local/share/flatpak/exports/bin/org.chromium.Chromium"))
		}
	}

	switch channel {
	case "chrome":
		return chrome
	case "chromium":
		return chromium
	case "msedge":
		return edge
	}
	out := append([]string{}, chrome...)
	out = append(out, chromium...)
	return append(out, edge...)
}

func pathNames(channel string) []string {
	switch channel {
	case "chrome":
		return []string{"google-chrome-stable", "google-chrome", "chrome"}
	case "chromium":
		return []string{"chromium", "chromium-browser"}
	case "msedge":
		return []string{"msedge", "microsoft-edge"}
	}
	return []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser", "chrome", "msedge"}
}

// isExecutable checks if a file exists and is executable
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	if runtime.GOOS == "windows" {
		return !info.IsDir()
	}

	return !info.IsDir() && info.Mode()&0111 != 0
}

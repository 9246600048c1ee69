package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "rednote"}
	RegisterFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load(newCmd(t))
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultOpTimeout, cfg.OpTimeout)
	assert.Equal(t, DefaultChannel, cfg.Channel)
	assert.False(t, cfg.Headless)
	assert.Equal(t, "state.json", filepath.Base(cfg.StateFile))
	assert.Equal(t, filepath.Join(filepath.Dir(cfg.StateFile), "profile"), cfg.ProfileDir)
	assert.Equal(t, DefaultLoginPollAttempts, cfg.LoginPollAttempts)
	assert.Equal(t, "chi_sim+eng", cfg.OCRLanguages)
	assert.Equal(t, DefaultEvasionFlags, cfg.EvasionFlags)
}

func TestLoad_EnvThenFlags(t *testing.T) {
	t.Setenv("REDNOTE_PROXY", "http://env:8080")
	t.Setenv("REDNOTE_USER_AGENT", "env-agent")
	t.Setenv("REDNOTE_HEADLESS", "true")
	t.Setenv("REDNOTE_TIMEOUT", "45s")
	t.Setenv("REDNOTE_STATE_FILE", "/tmp/env-state.json")

	cfg, err := Load(newCmd(t, "--proxy", "socks5://flag:1080", "--timeout", "5s", "--rate", "0", "-v"))
	require.NoError(t, err)

	assert.Equal(t, "socks5://flag:1080", cfg.Proxy)
	assert.Equal(t, "env-agent", cfg.UserAgent)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 5*time.Second, cfg.OpTimeout)
	assert.Equal(t, "/tmp/env-state.json", cfg.StateFile)
	assert.Equal(t, 0.0, cfg.DetailRateLimitRPS)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_QuietAndJSON(t *testing.T) {
	cfg, err := Load(newCmd(t, "-q", "--json"))
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.True(t, cfg.JSONLog)
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "bad env duration", env: map[string]string{"REDNOTE_TIMEOUT": "soon"}},
		{name: "bad env bool", env: map[string]string{"REDNOTE_HEADLESS": "maybe"}},
		{name: "bad flag duration", args: []string{"--delay", "later"}},
		{name: "negative delay", args: []string{"--delay", "-1s"}},
		{name: "unknown channel", args: []string{"--channel", "firefox"}},
		{name: "proxy without scheme", args: []string{"--proxy", "localhost:8080"}},
		{name: "proxy list entry without scheme", args: []string{"--proxy", "http://a:1,b:2"}},
		{name: "malformed image header", args: []string{"--image-header", "Cookie"}},
		{name: "negative rate", args: []string{"--rate", "-2"}},
		{name: "bad site url", env: map[string]string{"REDNOTE_SITE_URL": "xiaohongshu.com"}},
		{name: "too many login attempts", env: map[string]string{"REDNOTE_LOGIN_ATTEMPTS": "100000"}},
		{name: "unknown log level", env: map[string]string{"REDNOTE_LOG_LEVEL": "chatty"}},
		{name: "zero OCR workers", env: map[string]string{"REDNOTE_OCR_WORKERS": "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(newCmd(t, tc.args...))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ImageHeaders(t *testing.T) {
	cfg, err := Load(newCmd(t, "--image-header", "Cookie: a=1", "--image-header", "X-Test: y"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Cookie: a=1", "X-Test: y"}, cfg.ImageHeaders)
}

func TestLoad_ChromePathSkipsChannelCheck(t *testing.T) {
	cfg, err := Load(newCmd(t, "--channel", "custom", "--chrome-path", "/opt/browser/chrome"))
	require.NoError(t, err)
	assert.Equal(t, "/opt/browser/chrome", cfg.ChromePath)
}

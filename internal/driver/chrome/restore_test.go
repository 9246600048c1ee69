package chrome

import (
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/law-makers/rednote/internal/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieParams(t *testing.T) {
	params := cookieParams([]driver.Cookie{
		{Name: "web_session", Value: "abc", Domain: ".xiaohongshu.com", Path: "/", Expires: 1700000000.5, HTTPOnly: true, Secure: true, SameSite: "Lax"},
		{Name: "session_only", Value: "x", Domain: "www.xiaohongshu.com", Path: "/", Expires: -1},
		{Name: "", Value: "dropped", Domain: ".xiaohongshu.com"},
	})

	require.Len(t, params, 2)
	assert.Equal(t, "web_session", params[0].Name)
	assert.Equal(t, network.CookieSameSiteLax, params[0].SameSite)
	require.NotNil(t, params[0].Expires)
	assert.Equal(t, int64(1700000000), time.Time(*params[0].Expires).Unix())
	assert.Nil(t, params[1].Expires)
}

func TestFromNetworkCookies_SessionCookie(t *testing.T) {
	got := fromNetworkCookies([]*network.Cookie{
		{Name: "a", Value: "1", Domain: ".x.com", Path: "/", Expires: 123, Session: true},
		{Name: "b", Value: "2", Domain: ".x.com", Path: "/", Expires: 456, SameSite: network.CookieSameSiteStrict},
	})

	require.Len(t, got, 2)
	assert.Equal(t, float64(-1), got[0].Expires)
	assert.Equal(t, float64(456), got[1].Expires)
	assert.Equal(t, "Strict", got[1].SameSite)
}

func TestRestoreScript(t *testing.T) {
	assert.Empty(t, restoreScript(nil))
	assert.Empty(t, restoreScript([]driver.OriginState{{Origin: "https://a.com"}}))

	script := restoreScript([]driver.OriginState{{
		Origin:       "https://www.xiaohongshu.com",
		LocalStorage: []driver.NameValue{{Name: "token", Value: `va"lue`}},
	}})
	assert.Contains(t, script, `"https://www.xiaohongshu.com"`)
	assert.Contains(t, script, `va\"lue`)
	assert.Contains(t, script, "localStorage.getItem(k) === null")
}

func TestParseFlag(t *testing.T) {
	name, value := parseFlag("--disable-blink-features=AutomationControlled")
	assert.Equal(t, "disable-blink-features", name)
	assert.Equal(t, "AutomationControlled", value)

	name, value = parseFlag("disable-infobars")
	assert.Equal(t, "disable-infobars", name)
	assert.Equal(t, true, value)
}

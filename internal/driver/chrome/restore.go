package chrome

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/law-makers/rednote/internal/driver"
)

// restoreScript returns a script that seeds local storage for the saved
// origins. Keys already present in the page win.
func restoreScript(origins []driver.OriginState) string {
	if len(origins) == 0 {
		return ""
	}
	saved := make(map[string][][2]string, len(origins))
	for _, o := range origins {
		for _, kv := range o.LocalStorage {
			saved[o.Origin] = append(saved[o.Origin], [2]string{kv.Name, kv.Value})
		}
	}
	if len(saved) == 0 {
		return ""
	}
	data, err := json.Marshal(saved)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(`(() => {
	const saved = %s;
	const items = saved[location.origin];
	if (!items) return;
	for (const [k, v] of items) {
		try {
			if (localStorage.getItem(k) === null) localStorage.setItem(k, v);
		} catch (e) {}
	}
})();`, data)
}

func cookieParams(cookies []driver.Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" || c.Domain == "" {
			continue
		}
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			t := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
			p.Expires = &t
		}
		if c.SameSite != "" {
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		params = append(params, p)
	}
	return params
}

func fromNetworkCookies(cs []*network.Cookie) []driver.Cookie {
	out := make([]driver.Cookie, 0, len(cs))
	for _, c := range cs {
		expires := c.Expires
		if c.Session {
			expires = -1
		}
		out = append(out, driver.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}

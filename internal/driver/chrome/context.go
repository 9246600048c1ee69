package chrome

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/law-makers/rednote/internal/driver"
	"github.com/rs/zerolog/log"
)

const defaultOpTimeout = 30 * time.Second

const localStorageJS = `({
	origin: location.origin,
	items: Object.keys(localStorage).map(k => [k, localStorage.getItem(k)])
})`

// BrowserContext is a launched browser and the tabs attached to it
type BrowserContext struct {
	engine        *Engine
	opts          driver.LaunchOptions
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	initScript    string

	mu     sync.Mutex
	pages  map[target.ID]*Page
	order  []target.ID
	closed bool
}

// Pages implements driver.BrowserContext. Tabs opened outside the driver are
// attached on first sight.
func (c *BrowserContext) Pages(ctx context.Context) ([]driver.Page, error) {
	if c.isClosed() {
		return nil, driver.ErrPageClosed
	}

	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	infos, err := chromedp.Targets(opCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("list targets: %w", err)
	}

	live := make(map[target.ID]bool, len(infos))
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		live[info.TargetID] = true
		if c.lookup(info.TargetID) != nil {
			continue
		}
		if err := c.attach(ctx, info.TargetID); err != nil {
			log.Debug().Err(err).Str("target", string(info.TargetID)).Msg("Skipping tab that could not be attached")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]driver.Page, 0, len(c.order))
	for _, id := range c.order {
		p := c.pages[id]
		if !live[id] {
			p.markClosed()
		}
		if !p.IsClosed() {
			out = append(out, p)
		}
	}
	return out, nil
}

// NewPage implements driver.BrowserContext
func (c *BrowserContext) NewPage(ctx context.Context) (driver.Page, error) {
	if c.isClosed() {
		return nil, driver.ErrPageClosed
	}

	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)
	if err := c.start(ctx, tabCtx, tabCancel); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open page: %w", err)
	}

	p := &Page{owner: c, ctx: tabCtx, cancel: tabCancel, id: chromedp.FromContext(tabCtx).Target.TargetID}
	c.register(p)
	return p, nil
}

// SaveStorageState writes every browser cookie plus the local storage of each
// open page's origin.
func (c *BrowserContext) SaveStorageState(ctx context.Context, path string) error {
	if c.isClosed() {
		return driver.ErrPageClosed
	}

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	var cookies []driver.Cookie
	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		browser := chromedp.FromContext(ctx).Browser
		cs, err := storage.GetCookies().Do(cdp.WithExecutor(ctx, browser))
		if err != nil {
			return err
		}
		cookies = fromNetworkCookies(cs)
		return nil
	}))
	if err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}

	st := &driver.StorageState{Cookies: cookies, Origins: []driver.OriginState{}}
	seen := make(map[string]bool)
	for _, p := range c.openPages() {
		var snap struct {
			Origin string      `json:"origin"`
			Items  [][2]string `json:"items"`
		}
		if err := p.run(ctx, 0, chromedp.Evaluate(localStorageJS, &snap)); err != nil {
			log.Debug().Err(err).Msg("Skipping local storage of page")
			continue
		}
		if !strings.HasPrefix(snap.Origin, "http") || seen[snap.Origin] {
			continue
		}
		seen[snap.Origin] = true
		origin := driver.OriginState{Origin: snap.Origin, LocalStorage: make([]driver.NameValue, 0, len(snap.Items))}
		for _, kv := range snap.Items {
			origin.LocalStorage = append(origin.LocalStorage, driver.NameValue{Name: kv[0], Value: kv[1]})
		}
		st.Origins = append(st.Origins, origin)
	}

	return driver.WriteStorageState(path, st)
}

// Close shuts the browser down and waits for the process to exit
func (c *BrowserContext) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, p := range c.pages {
		p.markClosed()
	}
	c.mu.Unlock()

	err := chromedp.Cancel(c.browserCtx)
	c.browserCancel()
	c.allocCancel()
	c.engine.forget(c)

	if err != nil && !strings.Contains(err.Error(), "context canceled") {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

func (c *BrowserContext) attach(ctx context.Context, id target.ID) error {
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(id))
	if err := c.start(ctx, tabCtx, tabCancel); err != nil {
		tabCancel()
		return err
	}
	c.register(&Page{owner: c, ctx: tabCtx, cancel: tabCancel, id: id})
	return nil
}

// start performs the first Run on a tab context, which creates or attaches the
// target. chromedp ties the tab's event loop to the context of that first Run,
// so it runs on tabCtx itself; expiry and ctx cancellation cancel the tab.
func (c *BrowserContext) start(ctx context.Context, tabCtx context.Context, tabCancel context.CancelFunc) error {
	var actions []chromedp.Action
	if c.initScript != "" {
		actions = append(actions, addInitScript(c.initScript))
	}

	timer := time.AfterFunc(c.opTimeout(), tabCancel)
	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tabCtx, actions...)
	expired := !timer.Stop()
	cancelled := !stop()

	switch {
	case cancelled && ctx.Err() != nil:
		return ctx.Err()
	case expired:
		return fmt.Errorf("start tab: %w", driver.ErrTimeout)
	case err != nil:
		return err
	}
	return nil
}

func (c *BrowserContext) register(p *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pages[p.id]; !ok {
		c.order = append(c.order, p.id)
	}
	c.pages[p.id] = p
}

func (c *BrowserContext) lookup(id target.ID) *Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pages[id]
}

func (c *BrowserContext) markClosed(id target.ID) {
	if p := c.lookup(id); p != nil {
		p.markClosed()
	}
}

func (c *BrowserContext) openPages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Page, 0, len(c.order))
	for _, id := range c.order {
		if p := c.pages[id]; !p.IsClosed() {
			out = append(out, p)
		}
	}
	return out
}

func (c *BrowserContext) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *BrowserContext) opTimeout() time.Duration {
	if c.opts.OpTimeout > 0 {
		return c.opts.OpTimeout
	}
	return defaultOpTimeout
}

// opContext derives a bounded context from the browser that also ends when ctx does
func (c *BrowserContext) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(c.browserCtx, c.opTimeout())
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

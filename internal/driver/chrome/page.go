package chrome

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/law-makers/rednote/internal/driver"
)

const waitPollInterval = 200 * time.Millisecond

// Page is a chromedp tab
type Page struct {
	owner  *BrowserContext
	ctx    context.Context
	cancel context.CancelFunc // nil for the first tab, which lives as long as the browser
	id     target.ID
	closed atomic.Bool
}

// Goto implements driver.Page. Navigation completes on the load event.
func (p *Page) Goto(ctx context.Context, url string, opts driver.GotoOptions) error {
	if err := p.pause(ctx); err != nil {
		return err
	}
	if err := p.run(ctx, opts.Timeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return nil
}

// QuerySelector implements driver.Page
func (p *Page) QuerySelector(ctx context.Context, selector string) (driver.Element, error) {
	els, err := p.queryAll(ctx, selector, nil, 0)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

// QuerySelectorAll implements driver.Page
func (p *Page) QuerySelectorAll(ctx context.Context, selector string) ([]driver.Element, error) {
	els, err := p.queryAll(ctx, selector, nil, 0)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out, nil
}

// WaitForSelector implements driver.Page by polling until the selector matches
func (p *Page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (driver.Element, error) {
	el, err := p.waitFor(ctx, selector, timeout)
	if err != nil {
		return nil, err
	}
	return el, nil
}

// Click implements driver.Page
func (p *Page) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.pause(ctx); err != nil {
		return err
	}
	deadline := time.Now().Add(p.timeout(timeout))
	el, err := p.waitFor(ctx, selector, timeout)
	if err != nil {
		return err
	}
	return p.run(ctx, remaining(deadline), chromedp.Click(el.ids(), chromedp.ByNodeID))
}

// Fill implements driver.Page. The field is cleared and the value typed in.
func (p *Page) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	if err := p.pause(ctx); err != nil {
		return err
	}
	deadline := time.Now().Add(p.timeout(timeout))
	el, err := p.waitFor(ctx, selector, timeout)
	if err != nil {
		return err
	}
	return p.run(ctx, remaining(deadline),
		chromedp.SetValue(el.ids(), "", chromedp.ByNodeID),
		chromedp.SendKeys(el.ids(), value, chromedp.ByNodeID),
	)
}

// URL implements driver.Page
func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, 0, chromedp.Location(&url))
	return url, err
}

// Title implements driver.Page
func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, 0, chromedp.Title(&title))
	return title, err
}

// Content implements driver.Page
func (p *Page) Content(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// IsClosed implements driver.Page
func (p *Page) IsClosed() bool {
	return p.closed.Load() || p.ctx.Err() != nil
}

// Close implements driver.Page
func (p *Page) Close(ctx context.Context) error {
	if p.IsClosed() {
		return nil
	}
	err := p.run(ctx, 0, cdppage.Close())
	p.markClosed()
	if p.cancel != nil {
		p.cancel()
	}
	if err != nil && !errors.Is(err, driver.ErrPageClosed) {
		return err
	}
	return nil
}

func (p *Page) markClosed() {
	p.closed.Store(true)
}

func (p *Page) queryAll(ctx context.Context, selector string, parent *cdp.Node, timeout time.Duration) ([]*Element, error) {
	sel := driver.ParseSelector(selector)

	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if parent != nil {
		opts = append(opts, chromedp.FromNode(parent))
	}

	var nodes []*cdp.Node
	if err := p.run(ctx, timeout, chromedp.Nodes(sel.CSS, &nodes, opts...)); err != nil {
		return nil, err
	}

	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		el := &Element{page: p, node: n}
		if sel.HasTextFilter() {
			text, err := el.InnerText(ctx)
			if err != nil || !sel.MatchText(text) {
				continue
			}
		}
		out = append(out, el)
	}
	return out, nil
}

func (p *Page) waitFor(ctx context.Context, selector string, timeout time.Duration) (*Element, error) {
	timeout = p.timeout(timeout)
	deadline := time.Now().Add(timeout)

	for {
		els, err := p.queryAll(ctx, selector, nil, remaining(deadline))
		if err != nil && !errors.Is(err, driver.ErrTimeout) {
			return nil, err
		}
		if len(els) > 0 {
			return els[0], nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: waiting for %q after %s", driver.ErrTimeout, selector, timeout)
		}

		t := time.NewTimer(min(waitPollInterval, remaining(deadline)))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-p.ctx.Done():
			t.Stop()
			return nil, driver.ErrPageClosed
		case <-t.C:
		}
	}
}

// run executes actions on the tab with a bounded context tied to ctx
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if p.IsClosed() {
		return driver.ErrPageClosed
	}
	timeout = p.timeout(timeout)

	opCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err == nil {
		return nil
	}

	switch {
	case p.ctx.Err() != nil || p.closed.Load() || isDetached(err):
		p.markClosed()
		return fmt.Errorf("%w: %v", driver.ErrPageClosed, err)
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(opCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", driver.ErrTimeout, timeout)
	}
	return err
}

func (p *Page) pause(ctx context.Context) error {
	d := p.owner.opts.InteractionDelay
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Page) timeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return p.owner.opTimeout()
}

func remaining(deadline time.Time) time.Duration {
	d := time.Until(deadline)
	if d < 100*time.Millisecond {
		return 100 * time.Millisecond
	}
	return d
}

func isDetached(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"target closed", "no target with given id", "session with given id not found"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Element is a DOM node in a chromedp tab
type Element struct {
	page *Page
	node *cdp.Node
}

// Attribute implements driver.Element
func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var value string
	var ok bool
	err := e.page.run(ctx, 0, chromedp.AttributeValue(e.ids(), name, &value, &ok, chromedp.ByNodeID))
	return value, ok, err
}

// InnerText implements driver.Element
func (e *Element) InnerText(ctx context.Context) (string, error) {
	var text string
	err := e.page.run(ctx, 0, chromedp.JavascriptAttribute(e.ids(), "innerText", &text, chromedp.ByNodeID))
	return text, err
}

// QuerySelector implements driver.Element
func (e *Element) QuerySelector(ctx context.Context, selector string) (driver.Element, error) {
	els, err := e.page.queryAll(ctx, selector, e.node, 0)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

// QuerySelectorAll implements driver.Element
func (e *Element) QuerySelectorAll(ctx context.Context, selector string) ([]driver.Element, error) {
	els, err := e.page.queryAll(ctx, selector, e.node, 0)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out, nil
}

func (e *Element) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

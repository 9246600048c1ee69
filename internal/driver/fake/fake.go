// Package fake is an in-memory driver for tests. Pages render documents from a
// Site keyed by URL; selectors are evaluated with goquery.
package fake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/law-makers/rednote/internal/driver"
)

// Document is what the site serves for one URL
type Document struct {
	Title string
	HTML  string
	// GotoErr fails navigation to this URL
	GotoErr error
	// Clicks maps a selector to the URL the page moves to when it is clicked
	Clicks map[string]string
}

// Site is the set of documents shared by every page of an Engine
type Site struct {
	mu      sync.Mutex
	docs    map[string]*Document
	queries map[string]int

	// OnQuery runs before each selector evaluation with the 1-based count of
	// queries for that selector. Tests use it to change documents mid-poll.
	OnQuery func(site *Site, selector string, n int)
}

// NewSite creates an empty site
func NewSite() *Site {
	return &Site{docs: make(map[string]*Document), queries: make(map[string]int)}
}

// Set serves doc at url
func (s *Site) Set(url string, doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := doc
	s.docs[url] = &d
}

// Queries returns how many times selector was evaluated
func (s *Site) Queries(selector string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[selector]
}

func (s *Site) doc(url string) *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.docs[url]; ok {
		return d
	}
	return &Document{HTML: "<html><head></head><body></body></html>"}
}

func (s *Site) noteQuery(selector string) {
	s.mu.Lock()
	s.queries[selector]++
	n := s.queries[selector]
	hook := s.OnQuery
	s.mu.Unlock()
	if hook != nil {
		hook(s, selector, n)
	}
}

// Engine is a fake driver.Engine
type Engine struct {
	Site *Site

	mu sync.Mutex
	// FailLaunches makes the next n launches return LaunchErr
	FailLaunches int
	LaunchErr    error
	// NoInitialPage launches contexts without an open page
	NoInitialPage bool
	// DetachInitialPage launches contexts whose first page fails every operation
	DetachInitialPage bool
	// Cookies is what SaveStorageState writes
	Cookies []driver.Cookie

	starts   int
	stops    int
	launches []driver.LaunchOptions
	contexts []*Context
}

// NewEngine creates an engine serving site
func NewEngine(site *Site) *Engine {
	if site == nil {
		site = NewSite()
	}
	return &Engine{Site: site}
}

// Start implements driver.Engine
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	return nil
}

// Stop implements driver.Engine
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.stops++
	open := append([]*Context(nil), e.contexts...)
	e.mu.Unlock()
	for _, c := range open {
		_ = c.Close(ctx)
	}
	return nil
}

// LaunchPersistentContext implements driver.Engine
func (e *Engine) LaunchPersistentContext(ctx context.Context, opts driver.LaunchOptions) (driver.BrowserContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.launches = append(e.launches, opts)
	if e.FailLaunches > 0 {
		e.FailLaunches--
		err := e.LaunchErr
		if err == nil {
			err = errors.New("browser failed to start")
		}
		return nil, err
	}

	c := &Context{engine: e, Options: opts}
	if !e.NoInitialPage {
		p := c.addPage()
		p.detached = e.DetachInitialPage
	}
	e.contexts = append(e.contexts, c)
	return c, nil
}

// Starts returns how many times Start was called
func (e *Engine) Starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

// Stops returns how many times Stop was called
func (e *Engine) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

// Launches returns the options of every launch attempt in order
func (e *Engine) Launches() []driver.LaunchOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]driver.LaunchOptions(nil), e.launches...)
}

// Contexts returns every successfully launched context
func (e *Engine) Contexts() []*Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Context(nil), e.contexts...)
}

// Context is a fake driver.BrowserContext
type Context struct {
	engine  *Engine
	Options driver.LaunchOptions

	mu     sync.Mutex
	pages  []*Page
	closed bool
	closes int
	saves  []string
	// SaveErr fails SaveStorageState
	SaveErr error
}

// Pages implements driver.BrowserContext
func (c *Context) Pages(ctx context.Context) ([]driver.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, driver.ErrPageClosed
	}
	out := make([]driver.Page, 0, len(c.pages))
	for _, p := range c.pages {
		if !p.IsClosed() {
			out = append(out, p)
		}
	}
	return out, nil
}

// NewPage implements driver.BrowserContext
func (c *Context) NewPage(ctx context.Context) (driver.Page, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, driver.ErrPageClosed
	}
	return c.addPage(), nil
}

// SaveStorageState implements driver.BrowserContext
func (c *Context) SaveStorageState(ctx context.Context, path string) error {
	c.mu.Lock()
	saveErr := c.SaveErr
	c.mu.Unlock()
	if saveErr != nil {
		return saveErr
	}
	st := &driver.StorageState{Cookies: c.engine.Cookies, Origins: []driver.OriginState{}}
	if err := driver.WriteStorageState(path, st); err != nil {
		return err
	}
	c.mu.Lock()
	c.saves = append(c.saves, path)
	c.mu.Unlock()
	return nil
}

// Close implements driver.BrowserContext
func (c *Context) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	if c.closed {
		return nil
	}
	c.closed = true
	for _, p := range c.pages {
		p.markClosed()
	}
	return nil
}

// Closed reports whether Close was called
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Saves returns the paths written by SaveStorageState
func (c *Context) Saves() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.saves...)
}

// AllPages returns every page ever opened, closed ones included
func (c *Context) AllPages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Page(nil), c.pages...)
}

func (c *Context) addPage() *Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := &Page{owner: c, url: "about:blank", filled: make(map[string]string)}
	c.pages = append(c.pages, p)
	return p
}

// Page is a fake driver.Page
type Page struct {
	owner *Context

	mu       sync.Mutex
	url      string
	closed   bool
	detached bool
	closeErr error
	visits   []string
	clicks   []string
	filled   map[string]string
}

// Detach makes every later operation fail with driver.ErrPageClosed while
// IsClosed keeps reporting false, like a tab whose target went away.
func (p *Page) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detached = true
}

// Visits returns every URL passed to Goto
func (p *Page) Visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visits...)
}

// Clicks returns every clicked selector
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Filled returns the last value filled into selector
func (p *Page) Filled(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filled[selector]
}

// Goto implements driver.Page
func (p *Page) Goto(ctx context.Context, url string, opts driver.GotoOptions) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.visits = append(p.visits, url)
	p.mu.Unlock()

	doc := p.owner.engine.Site.doc(url)
	if doc.GotoErr != nil {
		return fmt.Errorf("goto %s: %w", url, doc.GotoErr)
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

// QuerySelector implements driver.Page
func (p *Page) QuerySelector(ctx context.Context, selector string) (driver.Element, error) {
	els, err := p.QuerySelectorAll(ctx, selector)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

// QuerySelectorAll implements driver.Page
func (p *Page) QuerySelectorAll(ctx context.Context, selector string) ([]driver.Element, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	p.owner.engine.Site.noteQuery(selector)

	root, err := p.document()
	if err != nil {
		return nil, err
	}
	return find(p, root.Selection, selector), nil
}

// WaitForSelector implements driver.Page. The fake never waits: a selector
// that does not match right away times out.
func (p *Page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (driver.Element, error) {
	el, err := p.QuerySelector(ctx, selector)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, fmt.Errorf("%w: waiting for %q after %s", driver.ErrTimeout, selector, timeout)
	}
	return el, nil
}

// Click implements driver.Page
func (p *Page) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if _, err := p.WaitForSelector(ctx, selector, timeout); err != nil {
		return err
	}
	p.mu.Lock()
	p.clicks = append(p.clicks, selector)
	url := p.url
	p.mu.Unlock()

	if next, ok := p.owner.engine.Site.doc(url).Clicks[selector]; ok {
		p.mu.Lock()
		p.url = next
		p.mu.Unlock()
	}
	return nil
}

// Fill implements driver.Page
func (p *Page) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	if _, err := p.WaitForSelector(ctx, selector, timeout); err != nil {
		return err
	}
	p.mu.Lock()
	p.filled[selector] = value
	p.mu.Unlock()
	return nil
}

// URL implements driver.Page
func (p *Page) URL(ctx context.Context) (string, error) {
	if err := p.check(ctx); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

// Title implements driver.Page
func (p *Page) Title(ctx context.Context) (string, error) {
	if err := p.check(ctx); err != nil {
		return "", err
	}
	doc := p.owner.engine.Site.doc(p.currentURL())
	if doc.Title != "" {
		return doc.Title, nil
	}
	root, err := p.document()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(root.Find("title").First().Text()), nil
}

// Content implements driver.Page
func (p *Page) Content(ctx context.Context) (string, error) {
	if err := p.check(ctx); err != nil {
		return "", err
	}
	doc := p.owner.engine.Site.doc(p.currentURL())
	if doc.Title != "" && !strings.Contains(doc.HTML, "<title>") {
		return strings.Replace(doc.HTML, "<head>", "<head><title>"+doc.Title+"</title>", 1), nil
	}
	return doc.HTML, nil
}

// IsClosed implements driver.Page
func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close implements driver.Page
func (p *Page) Close(ctx context.Context) error {
	p.markClosed()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeErr
}

// FailClose makes Close return err after marking the page closed
func (p *Page) FailClose(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeErr = err
}

func (p *Page) markClosed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *Page) currentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.detached {
		return driver.ErrPageClosed
	}
	return nil
}

func (p *Page) document() (*goquery.Document, error) {
	doc := p.owner.engine.Site.doc(p.currentURL())
	return goquery.NewDocumentFromReader(strings.NewReader(doc.HTML))
}

func find(p *Page, root *goquery.Selection, selector string) []driver.Element {
	sel := driver.ParseSelector(selector)
	var out []driver.Element
	root.Find(sel.CSS).Each(func(_ int, s *goquery.Selection) {
		if sel.MatchText(s.Text()) {
			out = append(out, &Element{page: p, sel: s})
		}
	})
	return out
}

// Element is a fake driver.Element backed by a goquery selection
type Element struct {
	page *Page
	sel  *goquery.Selection
}

// Attribute implements driver.Element
func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := e.page.check(ctx); err != nil {
		return "", false, err
	}
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

// InnerText implements driver.Element
func (e *Element) InnerText(ctx context.Context) (string, error) {
	if err := e.page.check(ctx); err != nil {
		return "", err
	}
	return e.sel.Text(), nil
}

// QuerySelector implements driver.Element
func (e *Element) QuerySelector(ctx context.Context, selector string) (driver.Element, error) {
	els, err := e.QuerySelectorAll(ctx, selector)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

// QuerySelectorAll implements driver.Element
func (e *Element) QuerySelectorAll(ctx context.Context, selector string) ([]driver.Element, error) {
	if err := e.page.check(ctx); err != nil {
		return nil, err
	}
	return find(e.page, e.sel, selector), nil
}

// Package scrape runs a keyword search on the site and turns the result
// pages into note records.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/law-makers/rednote/internal/auth"
	"github.com/law-makers/rednote/internal/driver"
	"github.com/law-makers/rednote/internal/engine"
	"github.com/law-makers/rednote/internal/engine/session"
	"github.com/law-makers/rednote/internal/events"
	"github.com/law-makers/rednote/internal/ratelimit"
	"github.com/law-makers/rednote/internal/reqctx"
	"github.com/law-makers/rednote/internal/retry"
	"github.com/law-makers/rednote/internal/selectors"
	urlutil "github.com/law-makers/rednote/internal/utils/url"
	"github.com/law-makers/rednote/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultSiteURL is the site root the search starts from
const DefaultSiteURL = "https://www.xiaohongshu.com"

// Options holds the pipeline timings. Zero fields take the defaults.
type Options struct {
	SiteURL     string
	TitleSuffix string

	NavTimeout      time.Duration
	Settle          time.Duration
	InputTimeout    time.Duration
	TriggerWait     time.Duration
	TriggerClick    time.Duration
	FilterTimeout   time.Duration
	ResultsTimeout  time.Duration
	DetailNav       time.Duration
	DetailContainer time.Duration

	// CandidateFactor is how many candidate links are collected per wanted record
	CandidateFactor int
}

// DefaultOptions returns the timings the site is known to need
func DefaultOptions() Options {
	return Options{
		SiteURL:         DefaultSiteURL,
		TitleSuffix:     DefaultTitleSuffix,
		NavTimeout:      30 * time.Second,
		Settle:          500 * time.Millisecond,
		InputTimeout:    30 * time.Second,
		TriggerWait:     60 * time.Second,
		TriggerClick:    30 * time.Second,
		FilterTimeout:   10 * time.Second,
		ResultsTimeout:  30 * time.Second,
		DetailNav:       60 * time.Second,
		DetailContainer: 15 * time.Second,
		CandidateFactor: 2,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SiteURL == "" {
		o.SiteURL = def.SiteURL
	}
	if o.TitleSuffix == "" {
		o.TitleSuffix = def.TitleSuffix
	}
	durations := []struct{ v, d *time.Duration }{
		{&o.NavTimeout, &def.NavTimeout},
		{&o.InputTimeout, &def.InputTimeout},
		{&o.TriggerWait, &def.TriggerWait},
		{&o.TriggerClick, &def.TriggerClick},
		{&o.FilterTimeout, &def.FilterTimeout},
		{&o.ResultsTimeout, &def.ResultsTimeout},
		{&o.DetailNav, &def.DetailNav},
		{&o.DetailContainer, &def.DetailContainer},
	}
	for _, d := range durations {
		if *d.v <= 0 {
			*d.v = *d.d
		}
	}
	if o.Settle < 0 {
		o.Settle = 0
	}
	if o.CandidateFactor <= 0 {
		o.CandidateFactor = def.CandidateFactor
	}
	return o
}

// ImageResolver turns image URLs into recognized text
type ImageResolver interface {
	Resolve(ctx context.Context, noteURL string, urls []string) ([]string, error)
}

// Progress is reported once per visited candidate
type Progress struct {
	Index      int
	Candidates int
	Collected  int
	URL        string
	Err        error
}

// Observer receives search progress. It runs on the search goroutine.
type Observer func(Progress)

// Deps are the collaborators of a Pipeline. Manager is required; the rest
// may be nil.
type Deps struct {
	Manager   *session.Manager
	Store     *auth.Store
	Verifier  *auth.Verifier
	Selectors selectors.Set
	Limiter   ratelimit.RateLimiter
	Images    ImageResolver
	Sink      events.Sink
}

// Pipeline implements engine.Searcher and engine.LoginChecker on top of a
// session manager. Calls are serialized.
type Pipeline struct {
	manager  *session.Manager
	store    *auth.Store
	verifier *auth.Verifier
	sel      selectors.Set
	limiter  ratelimit.RateLimiter
	images   ImageResolver
	sink     events.Sink
	opts     Options

	mu       sync.Mutex
	observer Observer
}

var (
	_ engine.Searcher     = (*Pipeline)(nil)
	_ engine.LoginChecker = (*Pipeline)(nil)
)

// New creates a pipeline
func New(deps Deps, opts Options) *Pipeline {
	p := &Pipeline{
		manager:  deps.Manager,
		store:    deps.Store,
		verifier: deps.Verifier,
		sel:      deps.Selectors,
		limiter:  deps.Limiter,
		images:   deps.Images,
		sink:     deps.Sink,
		opts:     opts.withDefaults(),
	}
	if p.sel == nil {
		p.sel = selectors.Defaults()
	}
	if p.sink == nil {
		p.sink = events.Nop{}
	}
	return p
}

// Name returns the name of this searcher
func (p *Pipeline) Name() string {
	return "RedNotePipeline"
}

// SetObserver installs fn as the progress observer for later searches
func (p *Pipeline) SetObserver(fn Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = fn
}

// Search runs the query in the browser session and returns at most
// query.Limit records in the order the results were listed. Items that fail
// are skipped. The session is saved when authenticated and always released
// before returning.
func (p *Pipeline) Search(ctx context.Context, query models.SearchQuery, headless bool) ([]models.NoteRecord, error) {
	if err := query.Validate(); err != nil {
		return nil, engine.NewEngineError(engine.ErrCodeValidation, err.Error(), err)
	}
	if query.OCR && p.images == nil {
		return nil, engine.NewEngineError(engine.ErrCodeValidation, "image OCR is not available", nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx = reqctx.WithRequestContext(ctx, "search")
	rid := reqctx.RequestID(ctx)
	p.sink.Record(events.SearchStarted, events.Fields{
		"request_id": rid,
		"keywords":   query.Keywords,
		"limit":      query.Limit,
		"ocr":        query.OCR,
		"headless":   headless,
	})

	defer p.release(ctx)
	s, err := p.manager.Acquire(ctx, headless)
	if err != nil {
		return nil, reqctx.NewRequestError(ctx, err)
	}

	records, candidates, err := p.search(ctx, s, query)
	if err != nil {
		return nil, reqctx.NewRequestError(ctx, err)
	}

	if p.store != nil {
		p.store.Save(ctx, s)
	}
	p.sink.Record(events.SearchCompleted, events.Fields{
		"request_id": rid,
		"records":    len(records),
		"candidates": candidates,
		"elapsed":    reqctx.GetRequestContext(ctx).Elapsed().String(),
	})
	return records, nil
}

// Login opens the session, checks the login state and waits a bounded time
// for a manual login. The session is released afterwards.
func (p *Pipeline) Login(ctx context.Context, headless bool) (bool, error) {
	if p.verifier == nil {
		return false, errors.New("login is not configured")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx = reqctx.WithRequestContext(ctx, "login")
	ok, err := p.verifier.Login(ctx, p.manager, headless)
	p.release(ctx)
	if err != nil {
		return false, reqctx.NewRequestError(ctx, err)
	}
	return ok, nil
}

func (p *Pipeline) release(ctx context.Context) {
	err := p.manager.Close(context.WithoutCancel(ctx))
	fields := events.Fields{"request_id": reqctx.RequestID(ctx)}
	if err != nil {
		fields["err"] = err
	}
	p.sink.Record(events.SearchSessionRelease, fields)
}

func (p *Pipeline) search(ctx context.Context, s *session.Session, q models.SearchQuery) ([]models.NoteRecord, int, error) {
	page := s.Page

	if err := p.openResults(ctx, page, q.Keywords); err != nil {
		return nil, 0, err
	}

	// Results only render for a logged-in user.
	s.SetAuth(session.AuthYes)

	candidates, err := p.collect(ctx, page, candidateCap(q.Limit, p.opts.CandidateFactor))
	if err != nil {
		return nil, 0, err
	}

	records := make([]models.NoteRecord, 0, min(q.Limit, len(candidates)))
	for i, u := range candidates {
		if len(records) >= q.Limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx, u); err != nil {
				return nil, 0, err
			}
		}

		start := time.Now()
		rec, err := p.visit(ctx, page, u, q.OCR)
		if err != nil {
			if fatal(ctx, err) {
				return nil, 0, fatalErr(ctx, err)
			}
			itemErr := engine.NewEngineError(engine.ErrCodeItemExtraction, "failed to extract note", err).
				WithDetail("url", u)
			p.sink.Record(events.SearchItemFailed, events.Fields{
				"err":   itemErr,
				"code":  string(itemErr.Code),
				"url":   u,
				"index": i,
			})
			p.notify(Progress{Index: i, Candidates: len(candidates), Collected: len(records), URL: u, Err: itemErr})
			continue
		}

		records = append(records, rec)
		p.sink.Record(events.SearchItemVisited, events.Fields{"url": u, "index": i})
		p.notify(Progress{Index: i, Candidates: len(candidates), Collected: len(records), URL: u})
		log.Debug().
			Str("url", u).
			Dur("elapsed", time.Since(start)).
			Int("images", len(rec.Images)).
			Int("comments", len(rec.Comments)).
			Msg("Note extracted")
	}
	return records, len(candidates), nil
}

// openResults drives the search box until result items are listed
func (p *Pipeline) openResults(ctx context.Context, page driver.Page, keywords string) error {
	if err := page.Goto(ctx, p.opts.SiteURL, driver.GotoOptions{Timeout: p.opts.NavTimeout}); err != nil {
		return p.stepErr(ctx, "open site", err)
	}
	if err := retry.Sleep(ctx, p.opts.Settle); err != nil {
		return err
	}

	if err := page.Fill(ctx, p.sel.Get(selectors.SearchInput), keywords, p.opts.InputTimeout); err != nil {
		return p.stepErr(ctx, "fill search input", err)
	}
	trigger := p.sel.Get(selectors.SearchTrigger)
	if _, err := page.WaitForSelector(ctx, trigger, p.opts.TriggerWait); err != nil {
		return p.stepErr(ctx, "wait for search trigger", err)
	}
	if err := page.Click(ctx, trigger, p.opts.TriggerClick); err != nil {
		return p.stepErr(ctx, "click search trigger", err)
	}

	if err := page.Click(ctx, p.sel.Get(selectors.ImageFilter), p.opts.FilterTimeout); err != nil {
		if fatal(ctx, err) {
			return fatalErr(ctx, err)
		}
		p.sink.Record(events.SearchFilterSkipped, events.Fields{"err": err})
	}

	if _, err := page.WaitForSelector(ctx, p.sel.Get(selectors.ResultItem), p.opts.ResultsTimeout); err != nil {
		return p.stepErr(ctx, "wait for results", err)
	}
	return nil
}

// candidateCap is limit*factor, saturating at math.MaxInt
func candidateCap(limit, factor int) int {
	if limit > math.MaxInt/factor {
		return math.MaxInt
	}
	return limit * factor
}

// collect returns up to limit unique absolute note URLs in listing order
func (p *Pipeline) collect(ctx context.Context, page driver.Page, limit int) ([]string, error) {
	items, err := page.QuerySelectorAll(ctx, p.sel.Get(selectors.ResultItem))
	if err != nil {
		if fatal(ctx, err) {
			return nil, fatalErr(ctx, err)
		}
		return nil, engine.NewEngineError(engine.ErrCodeSearchTimeout, "failed to list results", err)
	}

	var urls []string
	for i, item := range items {
		href, err := p.link(ctx, item)
		if err != nil {
			if fatal(ctx, err) {
				return nil, fatalErr(ctx, err)
			}
			p.sink.Record(events.SearchLinkFailed, events.Fields{"err": err, "index": i})
			continue
		}
		if href == "" {
			p.sink.Record(events.SearchLinkFailed, events.Fields{"index": i, "reason": "no_link"})
			continue
		}
		urls = append(urls, urlutil.ResolveURL(p.opts.SiteURL, href))
	}

	urls = urlutil.Dedupe(urls)
	if len(urls) > limit {
		urls = urls[:limit]
	}
	p.sink.Record(events.SearchResults, events.Fields{"items": len(items), "candidates": len(urls)})
	return urls, nil
}

func (p *Pipeline) link(ctx context.Context, item driver.Element) (string, error) {
	for _, name := range []string{selectors.ResultLink, selectors.ResultLinkFallback} {
		el, err := item.QuerySelector(ctx, p.sel.Get(name))
		if err != nil {
			return "", err
		}
		if el == nil {
			continue
		}
		href, _, err := el.Attribute(ctx, "href")
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(href), nil
	}
	return "", nil
}

// visit opens one note and extracts it
func (p *Pipeline) visit(ctx context.Context, page driver.Page, u string, ocr bool) (models.NoteRecord, error) {
	if err := page.Goto(ctx, u, driver.GotoOptions{Timeout: p.opts.DetailNav}); err != nil {
		return models.NoteRecord{}, err
	}
	if _, err := page.WaitForSelector(ctx, p.sel.Get(selectors.DetailContainer), p.opts.DetailContainer); err != nil {
		return models.NoteRecord{}, err
	}

	html, err := page.Content(ctx)
	if err != nil {
		return models.NoteRecord{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.NoteRecord{}, fmt.Errorf("parse note page: %w", err)
	}

	rec := ExtractNote(doc, u, p.sel, p.opts.TitleSuffix)
	if ocr && len(rec.Images) > 0 {
		texts, err := p.images.Resolve(ctx, u, rec.Images)
		if err != nil {
			return models.NoteRecord{}, err
		}
		rec.Images = texts
	}
	return rec, nil
}

func (p *Pipeline) notify(pr Progress) {
	if p.observer != nil {
		p.observer(pr)
	}
}

func (p *Pipeline) stepErr(ctx context.Context, step string, err error) error {
	if fatal(ctx, err) {
		return fatalErr(ctx, err)
	}
	return engine.NewEngineError(engine.ErrCodeSearchTimeout, step+" failed", err)
}

func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, driver.ErrPageClosed)
}

func fatalErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("search: %w", err)
}

package imaging

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/law-makers/rednote/internal/cache"
	"github.com/law-makers/rednote/internal/events"
	"github.com/rs/zerolog/log"
)

// Getter fetches an image by URL
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, int, error)
}

// Recognizer extracts text from image bytes
type Recognizer interface {
	RecognizeText(ctx context.Context, image []byte, langs string) (string, error)
}

// ResolverOptions configures OCR resolution
type ResolverOptions struct {
	Languages string
	CacheTTL  time.Duration
	// Workers bounds how many images are fetched and recognized at once.
	// Zero means one at a time.
	Workers int
}

// MaxWorkers caps ResolverOptions.Workers
const MaxWorkers = 8

// Resolver replaces image URLs with the text recognized in them
type Resolver struct {
	fetch Getter
	ocr   Recognizer
	cache cache.Cache
	sink  events.Sink
	opts  ResolverOptions
}

// NewResolver creates a resolver. c may be nil to disable caching.
func NewResolver(fetch Getter, ocr Recognizer, c cache.Cache, sink events.Sink, opts ResolverOptions) *Resolver {
	if opts.Languages == "" {
		opts.Languages = DefaultLanguages
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.DefaultTTL
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Workers > MaxWorkers {
		opts.Workers = MaxWorkers
	}
	if sink == nil {
		sink = events.Nop{}
	}
	return &Resolver{fetch: fetch, ocr: ocr, cache: c, sink: sink, opts: opts}
}

type imageResult struct {
	text  string
	stage string
	err   error
}

// Resolve returns the recognized text of each image in input order. An image
// whose fetch or recognition fails is recorded and left out. The only error
// returned is ctx's.
func (r *Resolver) Resolve(ctx context.Context, noteURL string, urls []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return []string{}, nil
	}

	results := make([]imageResult, len(urls))
	jobs := make(chan int)

	workers := min(r.opts.Workers, len(urls))
	var wg sync.WaitGroup
	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go r.worker(ctx, w, urls, jobs, results, &wg)
	}

	// Send jobs to workers
	go func() {
		defer close(jobs)
		for i := range urls {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(urls))
	for i, res := range results {
		if res.err != nil {
			r.sink.Record(events.SearchImageFailed, events.Fields{
				"err":   res.err,
				"stage": res.stage,
				"image": urls[i],
				"note":  noteURL,
			})
			continue
		}
		texts = append(texts, res.text)
	}
	return texts, nil
}

// worker resolves the images whose indexes arrive on jobs. Each index is
// written by exactly one worker.
func (r *Resolver) worker(ctx context.Context, id int, urls []string, jobs <-chan int, results []imageResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for i := range jobs {
		if ctx.Err() != nil {
			return
		}
		u := urls[i]

		if r.cache != nil {
			if text, ok := r.cache.Get(u); ok {
				results[i] = imageResult{text: text}
				continue
			}
		}

		log.Debug().Int("worker_id", id).Str("image", u).Msg("Recognizing image")
		text, stage, err := r.recognize(ctx, u)
		if err != nil {
			results[i] = imageResult{stage: stage, err: err}
			continue
		}
		if r.cache != nil {
			r.cache.Set(u, text, r.opts.CacheTTL)
		}
		results[i] = imageResult{text: text}
	}
}

func (r *Resolver) recognize(ctx context.Context, u string) (string, string, error) {
	data, status, err := r.fetch.Get(ctx, u)
	if err != nil {
		return "", "fetch", err
	}
	if status != http.StatusOK {
		return "", "fetch", fmt.Errorf("unexpected status %d", status)
	}
	text, err := r.ocr.RecognizeText(ctx, data, r.opts.Languages)
	if err != nil {
		return "", "ocr", err
	}
	return text, "", nil
}

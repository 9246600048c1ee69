package imaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/law-makers/rednote/internal/cache"
	"github.com/law-makers/rednote/internal/events"
	"github.com/law-makers/rednote/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = time.Millisecond
	return cfg
}

func TestFetcher_Get(t *testing.T) {
	var flaky atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.jpg":
			assert.Equal(t, "rednote-test", r.Header.Get("User-Agent"))
			assert.Equal(t, "https://www.xiaohongshu.com/", r.Header.Get("Referer"))
			assert.Equal(t, "a=1", r.Header.Get("Cookie"))
			_, _ = w.Write([]byte("jpeg-bytes"))
		case "/flaky.jpg":
			if flaky.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("eventually"))
		case "/down.jpg":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	f, err := NewFetcher(FetcherOptions{
		Timeout:   time.Second,
		UserAgent: "rednote-test",
		Referer:   "https://www.xiaohongshu.com/",
		Retry:     fastRetry(),
		Headers:   map[string]string{"Cookie": "a=1"},
	})
	require.NoError(t, err)
	ctx := context.Background()

	body, status, err := f.Get(ctx, server.URL+"/ok.jpg")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "jpeg-bytes", string(body))

	body, status, err = f.Get(ctx, server.URL+"/missing.jpg")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Nil(t, body)

	body, status, err = f.Get(ctx, server.URL+"/flaky.jpg")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "eventually", string(body))
	assert.Equal(t, int32(3), flaky.Load())

	_, status, err = f.Get(ctx, server.URL+"/down.jpg")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, status)

	_, _, err = f.Get(ctx, "not a url")
	assert.Error(t, err)
}

func TestFetcher_KeepsCookies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "a1", Value: "token", Path: "/"})
			return
		}
		c, err := r.Cookie("a1")
		if err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(c.Value))
	}))
	defer server.Close()

	f, err := NewFetcher(FetcherOptions{Retry: fastRetry()})
	require.NoError(t, err)

	_, _, err = f.Get(context.Background(), server.URL+"/set")
	require.NoError(t, err)
	body, status, err := f.Get(context.Background(), server.URL+"/img.jpg")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "token", string(body))
}

type recordingLimiter struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (l *recordingLimiter) Wait(ctx context.Context, u string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.urls = append(l.urls, u)
	return l.err
}

func TestFetcher_WaitsOnLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("img"))
	}))
	defer server.Close()

	lim := &recordingLimiter{}
	f, err := NewFetcher(FetcherOptions{Retry: fastRetry(), Limiter: lim})
	require.NoError(t, err)

	_, status, err := f.Get(context.Background(), server.URL+"/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{server.URL + "/a.jpg"}, lim.urls)

	lim.err = context.DeadlineExceeded
	_, _, err = f.Get(context.Background(), server.URL+"/b.jpg")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts stand in for tesseract")
	}
	path := filepath.Join(t.TempDir(), "tesseract")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestTesseract_RecognizeText(t *testing.T) {
	bin := writeScript(t, `cat >/dev/null
[ "$1" = "stdin" ] && [ "$2" = "stdout" ] && [ "$3" = "-l" ] || exit 2
echo "  $4 你好 world  "
`)

	text, err := Tesseract{Path: bin}.RecognizeText(context.Background(), []byte("img"), "")
	require.NoError(t, err)
	assert.Equal(t, "chi_sim+eng 你好 world", text)
}

func TestTesseract_Failure(t *testing.T) {
	bin := writeScript(t, `cat >/dev/null
echo "Error opening data file chi_sim.traineddata" >&2
exit 1
`)
	tess := Tesseract{Path: bin}

	_, err := tess.RecognizeText(context.Background(), []byte("img"), "chi_sim")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chi_sim.traineddata")

	_, err = tess.RecognizeText(context.Background(), nil, "")
	assert.Error(t, err)

	assert.True(t, tess.Available())
	assert.False(t, Tesseract{Path: filepath.Join(t.TempDir(), "nope")}.Available())
}

type stubGetter struct {
	mu    sync.Mutex
	calls map[string]int
	resp  map[string]int
	err   map[string]error
}

func (s *stubGetter) Get(ctx context.Context, url string) ([]byte, int, error) {
	s.mu.Lock()
	s.calls[url]++
	s.mu.Unlock()
	if err := s.err[url]; err != nil {
		return nil, 0, err
	}
	if code, ok := s.resp[url]; ok {
		return nil, code, nil
	}
	return []byte(url), http.StatusOK, nil
}

type stubOCR struct {
	fail map[string]bool
}

func (s stubOCR) RecognizeText(ctx context.Context, image []byte, langs string) (string, error) {
	if s.fail[string(image)] {
		return "", errors.New("unreadable image")
	}
	return "text:" + string(image) + ":" + langs, nil
}

func TestResolver_OmitsFailuresAndKeepsOrder(t *testing.T) {
	getter := &stubGetter{
		calls: map[string]int{},
		resp:  map[string]int{"https://img/404.jpg": http.StatusNotFound},
		err:   map[string]error{"https://img/timeout.jpg": errors.New("deadline exceeded")},
	}
	ocr := stubOCR{fail: map[string]bool{"https://img/bad.jpg": true}}
	rec := &events.Recorder{}
	r := NewResolver(getter, ocr, nil, rec, ResolverOptions{})

	texts, err := r.Resolve(context.Background(), "https://note/1", []string{
		"https://img/a.jpg",
		"https://img/404.jpg",
		"https://img/timeout.jpg",
		"https://img/bad.jpg",
		"https://img/b.jpg",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{
		"text:https://img/a.jpg:chi_sim+eng",
		"text:https://img/b.jpg:chi_sim+eng",
	}, texts)
	require.Equal(t, 3, rec.Count(events.SearchImageFailed))
	assert.Equal(t, "fetch", rec.Events[0].Fields["stage"])
	assert.Equal(t, "fetch", rec.Events[1].Fields["stage"])
	assert.Equal(t, "ocr", rec.Events[2].Fields["stage"])
	assert.Equal(t, "https://note/1", rec.Events[2].Fields["note"])
}

func TestResolver_WorkersKeepOrder(t *testing.T) {
	getter := &stubGetter{
		calls: map[string]int{},
		resp:  map[string]int{"https://img/3.jpg": http.StatusForbidden},
	}
	rec := &events.Recorder{}
	r := NewResolver(getter, stubOCR{}, nil, rec, ResolverOptions{Languages: "eng", Workers: 3})

	var urls, want []string
	for i := 0; i < 12; i++ {
		u := fmt.Sprintf("https://img/%d.jpg", i)
		urls = append(urls, u)
		if i != 3 {
			want = append(want, "text:"+u+":eng")
		}
	}

	texts, err := r.Resolve(context.Background(), "n", urls)
	require.NoError(t, err)
	assert.Equal(t, want, texts)
	assert.Equal(t, 1, rec.Count(events.SearchImageFailed))
	assert.Len(t, getter.calls, 12)

	empty, err := r.Resolve(context.Background(), "n", nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestResolver_UsesCache(t *testing.T) {
	getter := &stubGetter{calls: map[string]int{}}
	c := cache.NewMemoryCache(0)
	defer c.Close()
	r := NewResolver(getter, stubOCR{}, c, nil, ResolverOptions{Languages: "eng"})
	ctx := context.Background()

	first, err := r.Resolve(ctx, "n", []string{"https://img/a.jpg"})
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "n", []string{"https://img/a.jpg"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, getter.calls["https://img/a.jpg"])
}

func TestResolver_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewResolver(&stubGetter{calls: map[string]int{}}, stubOCR{}, nil, nil, ResolverOptions{})

	_, err := r.Resolve(ctx, "n", []string{"https://img/a.jpg"})
	assert.ErrorIs(t, err, context.Canceled)
}

package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/law-makers/rednote/internal/driver"
	"github.com/law-makers/rednote/internal/driver/fake"
	"github.com/law-makers/rednote/internal/engine/session"
	"github.com/law-makers/rednote/internal/events"
	"github.com/law-makers/rednote/internal/selectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exploreURL = "https://www.xiaohongshu.com/explore"

var (
	loggedInPage = fake.Document{HTML: `<html><head></head><body><div class="side-bar"><span class="channel">发现</span><span class="channel">我</span></div></body></html>`}
	promptPage   = fake.Document{HTML: `<html><head></head><body><span class="channel">发现</span><div class="login-reason">登录后查看更多内容</div></body></html>`}
	blankPage    = fake.Document{HTML: `<html><head></head><body><div class="feeds"></div></body></html>`}
)

type loginFixture struct {
	site  *fake.Site
	eng   *fake.Engine
	store *Store
	rec   *events.Recorder
	v     *Verifier
}

func newLoginFixture(t *testing.T, doc fake.Document) *loginFixture {
	t.Helper()
	site := fake.NewSite()
	site.Set(exploreURL, doc)
	rec := &events.Recorder{}
	store := NewStore(filepath.Join(t.TempDir(), "state.json"), rec)
	v := NewVerifier(store, selectors.Defaults(), rec, VerifierOptions{
		ExploreURL:   exploreURL,
		Settle:       0,
		PollAttempts: 4,
		PollInterval: time.Millisecond,
	})
	return &loginFixture{site: site, eng: fake.NewEngine(site), store: store, rec: rec, v: v}
}

func (f *loginFixture) writeState(t *testing.T) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.store.Path(), []byte(`{"cookies":[],"origins":[]}`), 0o600))
}

func TestVerify_AlreadyLoggedIn(t *testing.T) {
	f := newLoginFixture(t, loggedInPage)
	s, _ := launchSession(t, f.eng)

	ok, err := f.v.Verify(context.Background(), s)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, session.AuthYes, s.Auth())
	assert.True(t, f.store.Exists())
	assert.Equal(t, 1, f.rec.Count(events.LoginAuthenticated))
	assert.Equal(t, 1, f.rec.Count(events.StateSaved))
	assert.Zero(t, f.rec.Count(events.LoginPromptShown))
}

func TestVerify_IsIdempotentWhenLoggedIn(t *testing.T) {
	f := newLoginFixture(t, loggedInPage)
	s, _ := launchSession(t, f.eng)
	ctx := context.Background()

	first, err := f.v.Verify(ctx, s)
	require.NoError(t, err)
	second, err := f.v.Verify(ctx, s)
	require.NoError(t, err)

	assert.True(t, first)
	assert.True(t, second)
	assert.Equal(t, session.AuthYes, s.Auth())
	assert.True(t, f.store.Exists())
	assert.Zero(t, f.rec.Count(events.StateDeleted))
	assert.Equal(t, 2, f.rec.Count(events.StateSaved))
}

func TestVerify_PromptThenUserLogsIn(t *testing.T) {
	f := newLoginFixture(t, promptPage)
	f.writeState(t)
	marker := selectors.Defaults().Get(selectors.ProfileMarker)
	f.site.OnQuery = func(site *fake.Site, selector string, n int) {
		if selector == marker && n == 3 {
			site.Set(exploreURL, loggedInPage)
		}
	}
	s, _ := launchSession(t, f.eng)

	ok, err := f.v.Verify(context.Background(), s)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, session.AuthYes, s.Auth())
	assert.Equal(t, 3, f.site.Queries(marker))
	assert.True(t, f.store.Exists())

	names := f.rec.Names()
	assert.Less(t, indexOf(names, events.StateDeleted), indexOf(names, events.StateSaved))
	assert.Equal(t, "poll", f.rec.Events[indexOf(names, events.LoginAuthenticated)].Fields["stage"])
}

func TestVerify_PromptTimesOut(t *testing.T) {
	f := newLoginFixture(t, promptPage)
	f.writeState(t)
	s, _ := launchSession(t, f.eng)

	ok, err := f.v.Verify(context.Background(), s)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, session.AuthNo, s.Auth())
	assert.False(t, f.store.Exists())
	// one initial probe plus the poll ceiling
	assert.Equal(t, 5, f.site.Queries(selectors.Defaults().Get(selectors.ProfileMarker)))

	require.Equal(t, 1, f.rec.Count(events.LoginTimedOut))
	timedOut := f.rec.Events[indexOf(f.rec.Names(), events.LoginTimedOut)]
	assert.Equal(t, exploreURL, timedOut.Fields["url"])
	assert.Equal(t, false, timedOut.Fields["login_page"])
}

func TestVerify_AmbiguousKeepsState(t *testing.T) {
	f := newLoginFixture(t, blankPage)
	f.writeState(t)
	s, _ := launchSession(t, f.eng)

	ok, err := f.v.Verify(context.Background(), s)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, session.AuthNo, s.Auth())
	assert.True(t, f.store.Exists())
	assert.Equal(t, 1, f.rec.Count(events.LoginAmbiguous))
	assert.Zero(t, f.rec.Count(events.LoginWaiting))
}

func TestVerify_NavigationFailureContinues(t *testing.T) {
	f := newLoginFixture(t, fake.Document{GotoErr: driver.ErrTimeout})
	s, _ := launchSession(t, f.eng)

	ok, err := f.v.Verify(context.Background(), s)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, f.rec.Count(events.LoginNavigateFailed))
	assert.Equal(t, 1, f.rec.Count(events.LoginAmbiguous))
}

func TestVerify_DetachedPageIsFatal(t *testing.T) {
	f := newLoginFixture(t, loggedInPage)
	s, _ := launchSession(t, f.eng)
	s.Page.(*fake.Page).Detach()

	ok, err := f.v.Verify(context.Background(), s)

	assert.False(t, ok)
	assert.ErrorIs(t, err, driver.ErrPageClosed)
}

func TestVerify_CancelledWhileWaiting(t *testing.T) {
	f := newLoginFixture(t, promptPage)
	f.v.opts.PollAttempts = 1000
	f.v.opts.PollInterval = time.Hour
	s, _ := launchSession(t, f.eng)

	ctx, cancel := context.WithCancel(context.Background())
	f.site.OnQuery = func(_ *fake.Site, selector string, n int) {
		if selector == selectors.Defaults().Get(selectors.ProfileMarker) && n == 2 {
			cancel()
		}
	}

	ok, err := f.v.Verify(ctx, s)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLogin_AcquiresAndVerifies(t *testing.T) {
	f := newLoginFixture(t, loggedInPage)
	m := session.NewManager(f.eng, f.store, f.rec, session.Options{})

	ok, err := f.v.Login(context.Background(), m, true)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, session.AuthYes, m.Current().Auth())
	assert.Len(t, f.eng.Launches(), 1)
}

func TestContainsAny(t *testing.T) {
	hints := DefaultVerifierOptions().LoginURLHints
	assert.True(t, containsAny("https://www.xiaohongshu.com/login?redirect=x", hints))
	assert.True(t, containsAny("https://passport.example.com/", hints))
	assert.False(t, containsAny(exploreURL, hints))
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

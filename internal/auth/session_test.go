package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/law-makers/rednote/internal/driver"
	"github.com/law-makers/rednote/internal/driver/fake"
	"github.com/law-makers/rednote/internal/engine"
	"github.com/law-makers/rednote/internal/engine/session"
	"github.com/law-makers/rednote/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// launchSession opens a fake browser context and wraps its first page
func launchSession(t *testing.T, eng *fake.Engine) (*session.Session, *fake.Context) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))
	bc, err := eng.LaunchPersistentContext(ctx, driver.LaunchOptions{})
	require.NoError(t, err)
	pages, err := bc.Pages(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, pages)
	return session.New(bc, pages[0]), bc.(*fake.Context)
}

func TestStore_SaveSkipsUnlessAuthenticated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	rec := &events.Recorder{}
	store := NewStore(path, rec)
	ctx := context.Background()

	store.Save(ctx, nil)

	s, _ := launchSession(t, fake.NewEngine(nil))
	store.Save(ctx, s)
	s.SetAuth(session.AuthNo)
	store.Save(ctx, s)

	assert.False(t, store.Exists())
	assert.Equal(t, 3, rec.Count(events.StateSaveSkipped))
	assert.Equal(t, "no_session", rec.Events[0].Fields["reason"])
	assert.Equal(t, "not_authenticated", rec.Events[1].Fields["reason"])
}

func TestStore_SaveWritesWhenAuthenticated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile", "state.json")
	rec := &events.Recorder{}
	store := NewStore(path, rec)

	eng := fake.NewEngine(nil)
	eng.Cookies = []driver.Cookie{{Name: "web_session", Value: "v", Domain: ".xiaohongshu.com", Path: "/"}}
	s, bc := launchSession(t, eng)
	s.SetAuth(session.AuthYes)

	store.Save(context.Background(), s)

	assert.True(t, store.Exists())
	assert.Equal(t, []string{path}, bc.Saves())
	assert.Equal(t, 1, rec.Count(events.StateSaved))
}

func TestStore_WriteFailureIsRecordedNotReturned(t *testing.T) {
	rec := &events.Recorder{}
	store := NewStore(filepath.Join(t.TempDir(), "state.json"), rec)

	s, bc := launchSession(t, fake.NewEngine(nil))
	bc.SaveErr = errors.New("disk full")
	s.SetAuth(session.AuthYes)

	store.Save(context.Background(), s)

	require.Equal(t, 1, rec.Count(events.StateWriteFailed))
	err, ok := rec.Events[0].Fields["err"].(error)
	require.True(t, ok)
	assert.ErrorIs(t, err, engine.ErrPersistenceWrite)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, store.Exists())
}

func TestStore_Delete(t *testing.T) {
	t.Run("missing file is a no-op", func(t *testing.T) {
		rec := &events.Recorder{}
		store := NewStore(filepath.Join(t.TempDir(), "state.json"), rec)

		store.Delete()
		assert.Empty(t, rec.Events)
	})

	t.Run("existing file is removed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
		rec := &events.Recorder{}
		store := NewStore(path, rec)

		store.Delete()
		assert.False(t, store.Exists())
		assert.Equal(t, []string{events.StateDeleted}, rec.Names())
	})

	t.Run("failure is recorded", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, os.MkdirAll(filepath.Join(path, "child"), 0o700))
		rec := &events.Recorder{}
		store := NewStore(path, rec)

		store.Delete()
		assert.Equal(t, []string{events.StateDeleteError}, rec.Names())
	})
}

func TestStore_Info(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStore(path, nil)

	info, err := store.Info()
	require.NoError(t, err)
	assert.False(t, info.Exists)
	assert.Equal(t, path, info.Path)

	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, driver.WriteStorageState(path, &driver.StorageState{
		Cookies: []driver.Cookie{
			{Name: "a", Domain: ".x.com", Expires: -1},
			{Name: "b", Domain: ".x.com", Expires: float64(expires.Unix())},
		},
		Origins: []driver.OriginState{{Origin: "https://x.com"}},
	}))

	info, err = store.Info()
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Positive(t, info.Size)
	assert.Equal(t, 2, info.Cookies)
	assert.Equal(t, 1, info.Origins)
	assert.True(t, expires.Equal(info.ExpiresAt))
}

func TestDefaultStatePath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	path, err := DefaultStatePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/tester", ".rednote", "state.json"), path)
}

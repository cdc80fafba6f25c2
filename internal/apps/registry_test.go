package apps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/hostbus"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console"})
	return log
}

func newTestRegistry(t *testing.T) (*Registry, hostbus.Bus) {
	t.Helper()
	bus := hostbus.NewMemoryBus(newTestLogger())
	t.Cleanup(bus.Close)
	return NewRegistry(bus, newTestLogger()), bus
}

func notesManifest() *Manifest {
	return &Manifest{
		ID:          "notes",
		Name:        "Notes",
		Version:     "1.0.0",
		Permissions: []string{"storage/*", "notify/post"},
	}
}

func TestInstall_BuildsGrantSet(t *testing.T) {
	r, _ := newTestRegistry(t)

	require.NoError(t, r.Install(notesManifest()))

	grants, ok := r.Grants("notes")
	require.True(t, ok)
	assert.True(t, grants.Authorizes("storage/read"))
	assert.True(t, grants.Authorizes("notify/post"))
	assert.False(t, grants.Authorizes("fs/read"))

	assert.Contains(t, r.Installed(), "notes")
}

func TestInstall_Duplicate(t *testing.T) {
	r, _ := newTestRegistry(t)

	require.NoError(t, r.Install(notesManifest()))
	assert.Error(t, r.Install(notesManifest()))
}

func TestInstall_InvalidManifest(t *testing.T) {
	r, _ := newTestRegistry(t)

	assert.Error(t, r.Install(&Manifest{Name: "no id"}))
	assert.Error(t, r.Install(&Manifest{ID: "bad/id", Name: "x"}))
	assert.Error(t, r.Install(&Manifest{ID: "ok", Name: "x", Permissions: []string{" "}}))
}

func TestMarkStarted_IssuesResolvableToken(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Install(notesManifest()))

	token, err := r.MarkStarted(context.Background(), "notes")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.True(t, r.IsRunning("notes"))

	appID, grants, ok := r.ResolveToken(token)
	require.True(t, ok)
	assert.Equal(t, "notes", appID)
	assert.True(t, grants.Authorizes("storage/read"))
}

func TestMarkStarted_Rejections(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Install(notesManifest()))

	_, err := r.MarkStarted(context.Background(), "ghost")
	assert.Error(t, err, "starting an uninstalled app must fail")

	_, err = r.MarkStarted(context.Background(), "notes")
	require.NoError(t, err)
	_, err = r.MarkStarted(context.Background(), "notes")
	assert.Error(t, err, "starting a running app must fail")
}

func TestMarkStopped_RevokesTokens(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Install(notesManifest()))

	token, err := r.MarkStarted(context.Background(), "notes")
	require.NoError(t, err)

	r.MarkStopped(context.Background(), "notes")

	assert.False(t, r.IsRunning("notes"))
	_, _, ok := r.ResolveToken(token)
	assert.False(t, ok, "token must not resolve after the app stopped")
}

func TestResolveToken_Unknown(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, _, ok := r.ResolveToken("made-up")
	assert.False(t, ok)
}

func TestLifecycleEventsOnBus(t *testing.T) {
	r, bus := newTestRegistry(t)
	require.NoError(t, r.Install(notesManifest()))

	started := make(chan *hostbus.Event, 1)
	stopped := make(chan *hostbus.Event, 1)
	_, err := bus.Subscribe(hostbus.SubjectAppStarted, func(ctx context.Context, event *hostbus.Event) error {
		started <- event
		return nil
	})
	require.NoError(t, err)
	_, err = bus.Subscribe(hostbus.SubjectAppStopped, func(ctx context.Context, event *hostbus.Event) error {
		stopped <- event
		return nil
	})
	require.NoError(t, err)

	_, err = r.MarkStarted(context.Background(), "notes")
	require.NoError(t, err)
	r.MarkStopped(context.Background(), "notes")

	select {
	case event := <-started:
		assert.Equal(t, "notes", event.AppID())
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for app.started")
	}
	select {
	case event := <-stopped:
		assert.Equal(t, "notes", event.AppID())
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for app.stopped")
	}
}

func TestLoadManifestDir(t *testing.T) {
	dir := t.TempDir()

	notesDir := filepath.Join(dir, "notes")
	require.NoError(t, os.MkdirAll(notesDir, 0o755))
	manifest := `
id: notes
name: Notes
version: "1.0.0"
permissions:
  - storage/*
  - notify/post
services:
  - name: export
    description: Export notes as markdown
`
	require.NoError(t, os.WriteFile(filepath.Join(notesDir, "manifest.yaml"), []byte(manifest), 0o644))

	// Subdirectory without a manifest is skipped, not an error.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))

	manifests, err := LoadManifestDir(dir)
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, "notes", manifests[0].ID)
	assert.Equal(t, []string{"storage/*", "notify/post"}, manifests[0].Permissions)
	require.Len(t, manifests[0].Services, 1)
	assert.Equal(t, "export", manifests[0].Services[0].Name)
}

func TestLoadManifestDir_Missing(t *testing.T) {
	manifests, err := LoadManifestDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Nil(t, manifests)
}

func TestInstallDir(t *testing.T) {
	dir := t.TempDir()
	appDir := filepath.Join(dir, "music")
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "manifest.yaml"),
		[]byte("id: music\nname: Music\n"), 0o644))

	r, _ := newTestRegistry(t)
	require.NoError(t, r.InstallDir(dir))
	assert.Contains(t, r.Installed(), "music")
}

package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataview-hq/dataview/internal/domain/identity"
	"github.com/dataview-hq/dataview/internal/domain/state"
	"github.com/dataview-hq/dataview/internal/shared/types"
	"github.com/dataview-hq/dataview/internal/storage/cache"
)

type env struct {
	manager    *Manager
	reconciler *state.Reconciler
	store      *cache.Store
	ns         string
	dir        string
}

func testEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	store := cache.New(dir, 4096, nil)
	resolver := identity.NewResolver()
	resolver.Resolve("user-test")

	reconciler := state.New(store, resolver, nil)
	manager := NewManager(store, resolver, reconciler, DefaultSeed(), nil, nil)
	return &env{manager: manager, reconciler: reconciler, store: store, ns: "user-test", dir: dir}
}

func TestListSynthesizesDefaultOnce(t *testing.T) {
	e := testEnv(t)

	first, active, err := e.manager.List()
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, first[0].ID, active)
	assert.Equal(t, DefaultTitle, first[0].Title)

	// Second call returns the same session, not another one.
	second, activeAgain, err := e.manager.List()
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, active, activeAgain)
}

func TestDefaultSessionSurvivesRestart(t *testing.T) {
	e := testEnv(t)
	first, _, err := e.manager.List()
	require.NoError(t, err)

	// A fresh manager over the same cache sees the persisted session.
	resolver := identity.NewResolver()
	resolver.Resolve("user-test")
	reborn := NewManager(e.store, resolver, state.New(e.store, resolver, nil), DefaultSeed(), nil, nil)

	again, _, err := reborn.List()
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, first[0].ID, again[0].ID)
}

func TestDefaultSessionGreeting(t *testing.T) {
	e := testEnv(t)
	_, active, err := e.manager.List()
	require.NoError(t, err)

	var st types.SessionState
	require.True(t, e.store.Get(e.ns, state.Key(active), &st))
	require.Len(t, st.Messages, 1)
	assert.Equal(t, types.RoleAssistant, st.Messages[0].Role)
	assert.Equal(t, DefaultGreeting, st.Messages[0].Text)
}

func TestCreatePrependsAndActivates(t *testing.T) {
	e := testEnv(t)
	_, firstActive, err := e.manager.List()
	require.NoError(t, err)

	created, err := e.manager.Create("Q3 revenue")
	require.NoError(t, err)
	assert.NotEqual(t, firstActive, created.ID)

	sessions, active, err := e.manager.List()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, created.ID, sessions[0].ID, "new session goes to the head")
	assert.Equal(t, created.ID, active)
	assert.Equal(t, created.ID, e.reconciler.SessionID(), "working state follows the new session")
}

func TestSelect(t *testing.T) {
	e := testEnv(t)
	_, defaultID, err := e.manager.List()
	require.NoError(t, err)
	created, err := e.manager.Create("second")
	require.NoError(t, err)

	// Transcript written while the new session is active...
	_, err = e.reconciler.Append(created.ID, types.Message{ID: "msg_1", Role: types.RoleUser, Text: "in second"})
	require.NoError(t, err)

	require.NoError(t, e.manager.Select(defaultID))
	assert.Equal(t, defaultID, e.manager.Active())
	assert.Equal(t, defaultID, e.reconciler.SessionID())

	// ...survives switching away and back.
	require.NoError(t, e.manager.Select(created.ID))
	st := e.reconciler.Current()
	require.NotEmpty(t, st.Messages)
	assert.Equal(t, "in second", st.Messages[len(st.Messages)-1].Text)
}

func TestSelectActiveIsNoop(t *testing.T) {
	e := testEnv(t)
	_, active, err := e.manager.List()
	require.NoError(t, err)
	assert.NoError(t, e.manager.Select(active))
}

func TestSelectUnknown(t *testing.T) {
	e := testEnv(t)
	_, _, err := e.manager.List()
	require.NoError(t, err)
	assert.ErrorIs(t, e.manager.Select("sess_ghost"), ErrUnknownSession)
}

func TestRename(t *testing.T) {
	e := testEnv(t)
	_, active, err := e.manager.List()
	require.NoError(t, err)

	require.NoError(t, e.manager.Rename(active, "renamed"))
	got, ok := e.manager.Get(active)
	require.True(t, ok)
	assert.Equal(t, "renamed", got.Title)

	assert.ErrorIs(t, e.manager.Rename("sess_ghost", "x"), ErrUnknownSession)
}

func TestCorruptRegistryReadsEmpty(t *testing.T) {
	e := testEnv(t)
	_, _, err := e.manager.List()
	require.NoError(t, err)

	// Clobber the persisted registry, then start a fresh manager.
	path := filepath.Join(e.dir, e.ns, Key+".json")
	require.NoError(t, os.WriteFile(path, []byte("%%%"), 0o644))

	resolver := identity.NewResolver()
	resolver.Resolve("user-test")
	reborn := NewManager(e.store, resolver, state.New(e.store, resolver, nil), DefaultSeed(), nil, nil)

	sessions, _, err := reborn.List()
	require.NoError(t, err)
	require.Len(t, sessions, 1, "corrupt registry falls back to one synthesized session")
}

func TestOnSelectHook(t *testing.T) {
	e := testEnv(t)
	var selected []string
	e.manager.OnSelect(func(sessionID string) { selected = append(selected, sessionID) })

	_, active, err := e.manager.List()
	require.NoError(t, err)
	created, err := e.manager.Create("second")
	require.NoError(t, err)
	require.NoError(t, e.manager.Select(active))

	assert.Equal(t, []string{active, created.ID, active}, selected)
}

func TestLoadSeed(t *testing.T) {
	dir := t.TempDir()

	// Absent path and unreadable file fall back to built-ins.
	assert.Equal(t, DefaultSeed(), LoadSeed(""))
	assert.Equal(t, DefaultSeed(), LoadSeed(filepath.Join(dir, "missing.yaml")))

	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: Analysis\ngreeting: Hello there.\n"), 0o644))
	seed := LoadSeed(path)
	assert.Equal(t, "Analysis", seed.Title)
	assert.Equal(t, "Hello there.", seed.Greeting)

	// Partial files override only what they set.
	require.NoError(t, os.WriteFile(path, []byte("greeting: Only greeting.\n"), 0o644))
	seed = LoadSeed(path)
	assert.Equal(t, DefaultTitle, seed.Title)
	assert.Equal(t, "Only greeting.", seed.Greeting)
}

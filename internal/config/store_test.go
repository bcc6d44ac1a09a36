package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, root, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ConfigDir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigDir, "config.json"), []byte(body), 0644))
}

func TestStore_InvalidateRebuildsOnRead(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"typelens": {"noreferences": "unused"}}`)

	store, err := NewStore(root, nil)
	require.NoError(t, err)
	assert.Equal(t, "unused", store.Settings().NoReferences)
	gen := store.Generation()

	writeConfig(t, root, `{"typelens": {"noreferences": "nobody calls {0}"}}`)
	// Cached until invalidated.
	assert.Equal(t, "unused", store.Settings().NoReferences)

	store.Invalidate()
	select {
	case <-store.Changes():
	default:
		t.Fatal("expected a change signal")
	}

	assert.Equal(t, "nobody calls {0}", store.Settings().NoReferences)
	assert.Greater(t, store.Generation(), gen)
}

func TestStore_Status(t *testing.T) {
	store := NewStaticStore(DefaultConfig())
	before := store.ValidSince()

	status := store.Status()
	assert.Equal(t, uint64(1), status["generation"])
	assert.Equal(t, true, status["static"])

	store.Apply(map[string]interface{}{"typelens.plural": "{0} uses"})
	status = store.Status()
	assert.Equal(t, uint64(2), status["generation"])
	assert.False(t, store.ValidSince().Before(before))
	_, err := time.Parse(time.RFC3339, status["validSince"].(string))
	assert.NoError(t, err)
}

func TestStore_InvalidRebuildKeepsPreviousSnapshot(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"typelens": {"plural": "{0} uses"}}`)

	store, err := NewStore(root, nil)
	require.NoError(t, err)
	gen := store.Generation()

	writeConfig(t, root, `{"typelens": {"plural": "lots"}}`)
	store.Invalidate()

	assert.Equal(t, "{0} uses", store.Settings().Plural)
	assert.Equal(t, gen, store.Generation())
}

func TestStore_ApplyOverridesFileSettings(t *testing.T) {
	root := t.TempDir()

	store, err := NewStore(root, nil)
	require.NoError(t, err)
	require.True(t, store.Settings().DecorateUnused)

	store.Apply(map[string]interface{}{
		"typelens.decorateunused": false,
		"blackbox":                []interface{}{"**/vendor/**"},
	})

	s := store.Settings()
	assert.False(t, s.DecorateUnused)
	assert.Equal(t, []string{"**/vendor/**"}, s.Blackbox)

	// A later push replaces the previous one.
	store.Apply(map[string]interface{}{"excludeself": false})
	s = store.Settings()
	assert.True(t, s.DecorateUnused)
	assert.False(t, s.ExcludeSelf)
}

func TestStaticStore_Apply(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TypeLens.UnusedColor = "#abc"
	store := NewStaticStore(cfg)

	assert.Equal(t, "#abc", store.Settings().UnusedColor)

	store.Apply(map[string]interface{}{"singular": "one use"})
	// Invalid templates are rejected and the previous snapshot survives.
	assert.Equal(t, "{0} reference", store.Settings().Singular)

	store.Apply(map[string]interface{}{"singular": "{0} use"})
	assert.Equal(t, "{0} use", store.Settings().Singular)
	assert.Equal(t, "#abc", store.Settings().UnusedColor)

	assert.Error(t, store.Watch(context.Background()))
}

func TestStore_WatchInvalidatesOnWrite(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"typelens": {"unusedcolor": "#111"}}`)

	store, err := NewStore(root, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.Watch(ctx))

	writeConfig(t, root, `{"typelens": {"unusedcolor": "#222"}}`)

	require.Eventually(t, func() bool {
		return store.Settings().UnusedColor == "#222"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStore_WatchWithoutConfigDir(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Error(t, store.Watch(context.Background()))
}

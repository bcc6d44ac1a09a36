package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      string
	}{
		{EventCreate, "create"},
		{EventModify, "modify"},
		{EventDelete, "delete"},
		{EventRename, "rename"},
		{EventType(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.eventType.String())
		})
	}
}

func TestMatchBaseGlob(t *testing.T) {
	match, err := MatchBaseGlob("config.{json,yaml,yml,toml}")
	require.NoError(t, err)

	assert.True(t, match("/repo/.typelens/config.toml"))
	assert.True(t, match("config.yml"))
	assert.False(t, match("/repo/.typelens/config.toml.swp"))
	assert.False(t, match("/repo/.typelens/other.json"))

	_, err = MatchBaseGlob("[unterminated")
	assert.Error(t, err)
}

func TestMatchPath(t *testing.T) {
	match := MatchPath("/repo/index.scip")
	assert.True(t, match("/repo/./index.scip"))
	assert.False(t, match("/repo/index.scip.tmp"))
}

func TestCoalescer(t *testing.T) {
	var mu sync.Mutex
	var got [][]Event
	c := newCoalescer(20*time.Millisecond, func(events []Event) {
		mu.Lock()
		got = append(got, events)
		mu.Unlock()
	})

	c.add(Event{Type: EventCreate, Path: "a"})
	c.add(Event{Type: EventModify, Path: "b"})
	c.add(Event{Type: EventModify, Path: "a"})
	assert.Equal(t, 2, c.pending())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []Event{
		{Type: EventModify, Path: "a"},
		{Type: EventModify, Path: "b"},
	}, got[0])
	mu.Unlock()
	assert.Equal(t, 0, c.pending())
}

func TestCoalescer_Stop(t *testing.T) {
	emitted := make(chan []Event, 1)
	c := newCoalescer(10*time.Millisecond, func(events []Event) { emitted <- events })

	c.add(Event{Path: "dropped"})
	c.stop()
	assert.Equal(t, 0, c.pending())

	select {
	case events := <-emitted:
		t.Fatalf("stopped coalescer emitted %v", events)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	match, err := MatchBaseGlob("*.toml")
	require.NoError(t, err)

	w, err := New(dir, match, 20*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan []Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(events []Event) { changes <- events })
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("x"), 0o644))

	select {
	case events := <-changes:
		require.NotEmpty(t, events)
		for _, ev := range events {
			assert.Equal(t, "config.toml", filepath.Base(ev.Path))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change delivered")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestNew_MissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), nil, time.Millisecond, nil)
	assert.Error(t, err)
}

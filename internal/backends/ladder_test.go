package backends

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lenserrors "typelens/internal/errors"
	"typelens/internal/lens"
)

// ladderMockBackend implements Backend for ladder testing
type ladderMockBackend struct {
	id     BackendID
	covers bool
	err    error
	locs   []lens.Location
	calls  atomic.Int32
	gate   chan struct{}
}

func (m *ladderMockBackend) ID() BackendID        { return m.id }
func (m *ladderMockBackend) Covers(_ string) bool { return m.covers }

func (m *ladderMockBackend) Outline(_ context.Context, _ string) ([]lens.OutlineNode, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return []lens.OutlineNode{&lens.DocumentSymbol{Name: string(m.id)}}, nil
}

func (m *ladderMockBackend) References(ctx context.Context, _ string, _ lens.Position) ([]lens.Location, error) {
	m.calls.Add(1)
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.locs, m.err
}

const ladderURI = "file:///repo/a.go"

func TestNewLadder_PreferredFirst(t *testing.T) {
	lsp := &ladderMockBackend{id: BackendLSP}
	scip := &ladderMockBackend{id: BackendSCIP}

	assert.Equal(t, []BackendID{BackendSCIP, BackendLSP}, NewLadder(BackendSCIP, []Backend{lsp, scip}, nil, nil).Order())
	assert.Equal(t, []BackendID{BackendLSP, BackendSCIP}, NewLadder(BackendLSP, []Backend{lsp, scip}, nil, nil).Order())
}

func TestLadder_SkipsBackendsThatDoNotCover(t *testing.T) {
	scip := &ladderMockBackend{id: BackendSCIP, covers: false}
	lsp := &ladderMockBackend{id: BackendLSP, covers: true}
	ladder := NewLadder(BackendSCIP, []Backend{scip, lsp}, nil, nil)

	nodes, err := ladder.Outline(context.Background(), ladderURI)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "lsp", nodes[0].(*lens.DocumentSymbol).Name)
	assert.Equal(t, int32(0), scip.calls.Load())
}

func TestLadder_FallsBackOnUnavailable(t *testing.T) {
	scip := &ladderMockBackend{id: BackendSCIP, covers: true,
		err: lenserrors.NewLensError(lenserrors.IndexMissing, "gone", nil, nil)}
	lsp := &ladderMockBackend{id: BackendLSP, covers: true}
	ladder := NewLadder(BackendSCIP, []Backend{scip, lsp}, nil, nil)

	nodes, err := ladder.Outline(context.Background(), ladderURI)
	require.NoError(t, err)
	assert.Equal(t, "lsp", nodes[0].(*lens.DocumentSymbol).Name)
}

func TestLadder_OtherErrorsStop(t *testing.T) {
	boom := errors.New("boom")
	scip := &ladderMockBackend{id: BackendSCIP, covers: true, err: boom}
	lsp := &ladderMockBackend{id: BackendLSP, covers: true}
	ladder := NewLadder(BackendSCIP, []Backend{scip, lsp}, nil, nil)

	_, err := ladder.Outline(context.Background(), ladderURI)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(0), lsp.calls.Load())
}

func TestLadder_NoBackend(t *testing.T) {
	ladder := NewLadder(BackendLSP, []Backend{&ladderMockBackend{id: BackendLSP}}, nil, nil)

	_, err := ladder.References(context.Background(), ladderURI, lens.Position{})
	assert.True(t, lenserrors.HasCode(err, lenserrors.BackendUnavailable))
}

func TestLadder_CoalescesConcurrentReferences(t *testing.T) {
	want := []lens.Location{{URI: ladderURI, Range: lens.NewRange(1, 0, 1, 3)}}
	lsp := &ladderMockBackend{id: BackendLSP, covers: true, locs: want, gate: make(chan struct{})}
	ladder := NewLadder(BackendLSP, []Backend{lsp}, NewLimiter(2, BackendLSP), nil)

	var wg sync.WaitGroup
	results := make([][]lens.Location, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locs, err := ladder.References(context.Background(), ladderURI, lens.Position{Line: 1})
			assert.NoError(t, err)
			results[i] = locs
		}(i)
	}

	require.Eventually(t, func() bool { return lsp.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(lsp.gate)
	wg.Wait()

	for _, locs := range results {
		assert.Equal(t, want, locs)
	}
	assert.Less(t, lsp.calls.Load(), int32(3))
}

func TestLadder_CancelledCallerDoesNotPoisonOthers(t *testing.T) {
	want := []lens.Location{{URI: ladderURI, Range: lens.NewRange(2, 0, 2, 1)}}
	lsp := &ladderMockBackend{id: BackendLSP, covers: true, locs: want, gate: make(chan struct{})}
	ladder := NewLadder(BackendLSP, []Backend{lsp}, nil, nil)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := ladder.References(leaderCtx, ladderURI, lens.Position{Line: 2})
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return lsp.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	followerDone := make(chan []lens.Location, 1)
	go func() {
		locs, err := ladder.References(context.Background(), ladderURI, lens.Position{Line: 2})
		assert.NoError(t, err)
		followerDone <- locs
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.True(t, lenserrors.HasCode(<-leaderErr, lenserrors.Cancelled))

	close(lsp.gate)
	select {
	case locs := <-followerDone:
		assert.Equal(t, want, locs)
	case <-time.After(2 * time.Second):
		t.Fatal("follower never completed")
	}
}

func TestRelativePath(t *testing.T) {
	rel, ok := RelativePath("/repo", "file:///repo/src/a%20b.ts")
	require.True(t, ok)
	assert.Equal(t, "src/a b.ts", rel)

	_, ok = RelativePath("/repo", "file:///elsewhere/a.ts")
	assert.False(t, ok)
	_, ok = RelativePath("/repo", "untitled:1")
	assert.False(t, ok)

	assert.Equal(t, "file:///repo/src/a%20b.ts", PathToURI("/repo/src/a b.ts"))
	assert.Equal(t, "/repo/x.go", URIToPath("file:///repo/x.go"))
}

package repostate

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lenserrors "typelens/internal/errors"
)

func TestCheckIndex(t *testing.T) {
	head := &RepoState{HeadCommit: "0123abcd4567ef890123abcd4567ef890123abcd"}

	tests := []struct {
		name    string
		indexed string
		state   *RepoState
		stale   bool
	}{
		{"same commit", head.HeadCommit, head, false},
		{"abbreviated commit", "0123abcd", head, false},
		{"different commit", "ffff0000", head, true},
		{"no recorded commit", "", head, false},
		{"no head", "0123abcd", &RepoState{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := CheckIndex(tt.indexed, tt.state)
			assert.Equal(t, tt.stale, f.Stale)
			assert.Equal(t, tt.indexed, f.IndexedCommit)
		})
	}
}

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	run("init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.ts"), []byte("export {}\n"), 0o644))
	run("add", "a.ts")
	run("commit", "-q", "-m", "init")
	return dir
}

func TestCompute(t *testing.T) {
	dir := initRepo(t)
	ctx := context.Background()

	state, err := Compute(ctx, dir)
	require.NoError(t, err)
	assert.Len(t, state.HeadCommit, 40)
	assert.False(t, state.Dirty)
	assert.True(t, IsGitRepository(ctx, dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.ts"), []byte("export {}\n"), 0o644))
	state, err = Compute(ctx, dir)
	require.NoError(t, err)
	assert.True(t, state.Dirty)
}

func TestCompute_NotARepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()

	_, err := Compute(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, lenserrors.HasCode(err, lenserrors.MissingData))
	var lensErr *lenserrors.LensError
	require.True(t, errors.As(err, &lensErr))
	assert.Equal(t, "git status", lensErr.SuggestedFixes[0].Command)
	assert.False(t, IsGitRepository(context.Background(), dir))
}

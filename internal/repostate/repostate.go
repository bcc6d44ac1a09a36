// Package repostate reads the git state a SCIP index is compared against.
package repostate

import (
	"context"
	"os/exec"
	"strings"
	"time"

	lenserrors "typelens/internal/errors"
)

// RepoState is the working copy as git sees it.
type RepoState struct {
	HeadCommit string    `json:"headCommit"`
	Dirty      bool      `json:"dirty"`
	ComputedAt time.Time `json:"computedAt"`
}

// Compute reads HEAD and whether the working tree has uncommitted changes.
func Compute(ctx context.Context, repoRoot string) (*RepoState, error) {
	head, err := git(ctx, repoRoot, "rev-parse", "HEAD")
	if err != nil {
		return nil, lenserrors.NewLensError(
			lenserrors.MissingData,
			"Failed to get HEAD commit",
			err,
			[]lenserrors.FixAction{
				{
					Type:        lenserrors.RunCommand,
					Command:     "git status",
					Description: "Check that the repository root is a git working copy",
				},
			},
		)
	}

	status, err := git(ctx, repoRoot, "status", "--porcelain")
	if err != nil {
		return nil, lenserrors.Wrap(lenserrors.InternalError, err, "git status in %s", repoRoot)
	}

	return &RepoState{
		HeadCommit: head,
		Dirty:      status != "",
		ComputedAt: time.Now().UTC(),
	}, nil
}

// Freshness compares an index commit with the repository state.
type Freshness struct {
	IndexedCommit string `json:"indexedCommit,omitempty"`
	HeadCommit    string `json:"headCommit,omitempty"`
	Stale         bool   `json:"stale"`
	Dirty         bool   `json:"dirty"`
}

// CheckIndex reports whether an index built at indexedCommit still matches
// HEAD. Commits match when one is a prefix of the other, so abbreviated
// hashes compare equal. An index without a recorded commit is never stale.
func CheckIndex(indexedCommit string, state *RepoState) Freshness {
	f := Freshness{
		IndexedCommit: indexedCommit,
		HeadCommit:    state.HeadCommit,
		Dirty:         state.Dirty,
	}
	if indexedCommit == "" || state.HeadCommit == "" {
		return f
	}
	f.Stale = !strings.HasPrefix(state.HeadCommit, indexedCommit) &&
		!strings.HasPrefix(indexedCommit, state.HeadCommit)
	return f
}

// IsGitRepository checks if the given path is a git repository
func IsGitRepository(ctx context.Context, repoRoot string) bool {
	_, err := git(ctx, repoRoot, "rev-parse", "--git-dir")
	return err == nil
}

func git(ctx context.Context, repoRoot string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoRoot

	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

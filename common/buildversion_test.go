package common

import (
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHashFromPath(t *testing.T) {
	assert.Empty(t, computeHashFromPath(t.TempDir()))

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	hash, err := wt.Commit("init", &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            &object.Signature{Name: "ci", Email: "ci@example.com", When: time.Unix(1700000000, 0)},
	})
	require.NoError(t, err)

	assert.Equal(t, hash.String(), computeHashFromPath(dir))
	assert.Equal(t, hash.String()[:8], shortHash(computeHashFromPath(dir)))
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "", shortHash(""))
	assert.Equal(t, "abc", shortHash("abc"))
	assert.Equal(t, "01234567", shortHash("0123456789abcdef"))
}

func TestBuildVersion(t *testing.T) {
	assert.Contains(t, BuildVersion(), "exslice dev")
}

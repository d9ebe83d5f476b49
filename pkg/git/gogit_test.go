// Copyright 2025 The gitmesh Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upstream is a real on-disk repository the engine tests clone from.
type upstream struct {
	path string
	repo *gogit.Repository

	// commits in creation order
	commits []string
}

func newUpstream(t *testing.T, commitCount int) *upstream {
	t.Helper()

	path := filepath.Join(t.TempDir(), "upstream")
	repo, err := gogit.PlainInit(path, false)
	require.NoError(t, err)

	u := &upstream{path: path, repo: repo}
	for i := 0; i < commitCount; i++ {
		u.commit(t, "file.txt", time.Unix(int64(1700000000+i), 0))
	}
	return u
}

func (u *upstream) commit(t *testing.T, filename string, when time.Time) string {
	t.Helper()

	wt, err := u.repo.Worktree()
	require.NoError(t, err)

	content := []byte(when.String())
	require.NoError(t, os.WriteFile(filepath.Join(u.path, filename), content, 0o644))
	_, err = wt.Add(filename)
	require.NoError(t, err)

	hash, err := wt.Commit("commit at "+when.String(), &gogit.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: when},
	})
	require.NoError(t, err)

	id := hash.String()
	u.commits = append(u.commits, id)
	return id
}

func cloneUpstream(t *testing.T, u *upstream) Repository {
	t.Helper()
	repo, err := NewEngine().Clone(context.Background(), CloneOptions{
		URL:  u.path,
		Path: filepath.Join(t.TempDir(), "clone"),
	})
	require.NoError(t, err)
	return repo
}

func TestListRemoteRefs(t *testing.T) {
	u := newUpstream(t, 2)

	advertised, err := NewEngine().ListRemoteRefs(context.Background(), u.path)
	require.NoError(t, err)

	assert.Equal(t, u.commits[1], advertised.Refs["refs/heads/master"])
	assert.Equal(t, "refs/heads/master", advertised.HeadTarget)

	assert.True(t, advertised.Contains(u.commits[1]))
	assert.False(t, advertised.Contains(u.commits[0]))
}

func TestListRemoteRefsUnreachable(t *testing.T) {
	_, err := NewEngine().ListRemoteRefs(context.Background(),
		filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

func TestCloneAndHasCommit(t *testing.T) {
	u := newUpstream(t, 2)
	repo := cloneUpstream(t, u)

	assert.True(t, repo.HasCommit(u.commits[0]))
	assert.True(t, repo.HasCommit(u.commits[1]))
	assert.False(t, repo.HasCommit("1111111111111111111111111111111111111111"))
}

func TestOpen(t *testing.T) {
	u := newUpstream(t, 1)

	repo, err := NewEngine().Open(u.path)
	require.NoError(t, err)
	assert.Equal(t, u.path, repo.Path())

	_, err = NewEngine().Open(t.TempDir())
	require.Error(t, err)
}

func TestRefReadWrite(t *testing.T) {
	u := newUpstream(t, 2)
	repo := cloneUpstream(t, u)

	id, err := repo.ResolveRef("refs/heads/master")
	require.NoError(t, err)
	assert.Equal(t, u.commits[1], id)

	require.NoError(t, repo.SetRef("refs/heads/feature", u.commits[0]))
	id, err = repo.ResolveRef("refs/heads/feature")
	require.NoError(t, err)
	assert.Equal(t, u.commits[0], id)

	_, err = repo.ResolveRef("refs/heads/nope")
	require.Error(t, err)

	refs, err := repo.ListRefs()
	require.NoError(t, err)
	assert.Equal(t, u.commits[1], refs["refs/heads/master"])
	assert.Equal(t, u.commits[0], refs["refs/heads/feature"])
	// remote-tracking refs are not part of the snapshot
	for name := range refs {
		assert.NotContains(t, name, "refs/remotes/")
	}
}

func TestHead(t *testing.T) {
	u := newUpstream(t, 2)
	repo := cloneUpstream(t, u)

	target, symbolic, err := repo.Head()
	require.NoError(t, err)
	assert.True(t, symbolic)
	assert.Equal(t, "refs/heads/master", target)

	require.NoError(t, repo.SetHead(u.commits[0]))
	target, symbolic, err = repo.Head()
	require.NoError(t, err)
	assert.False(t, symbolic)
	assert.Equal(t, u.commits[0], target)

	require.NoError(t, repo.SetSymbolicHead("refs/heads/master"))
	target, symbolic, err = repo.Head()
	require.NoError(t, err)
	assert.True(t, symbolic)
	assert.Equal(t, "refs/heads/master", target)
}

func TestIsAncestor(t *testing.T) {
	u := newUpstream(t, 3)
	repo := cloneUpstream(t, u)

	ok, err := repo.IsAncestor(u.commits[0], u.commits[2])
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsAncestor(u.commits[2], u.commits[0])
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.IsAncestor("1111111111111111111111111111111111111111", u.commits[0])
	require.Error(t, err)
}

func TestRemoteURLReadWrite(t *testing.T) {
	u := newUpstream(t, 1)
	repo := cloneUpstream(t, u)

	url, err := repo.RemoteURL("origin")
	require.NoError(t, err)
	assert.Equal(t, u.path, url)

	require.NoError(t, repo.SetRemoteURL("origin", "nostr://npub1abc/my-project"))
	url, err = repo.RemoteURL("origin")
	require.NoError(t, err)
	assert.Equal(t, "nostr://npub1abc/my-project", url)

	_, err = repo.RemoteURL("nope")
	require.Error(t, err)

	// setting a remote that does not exist yet creates it
	require.NoError(t, repo.SetRemoteURL("backup", u.path))
	url, err = repo.RemoteURL("backup")
	require.NoError(t, err)
	assert.Equal(t, u.path, url)
}

func TestFetchByURL(t *testing.T) {
	u := newUpstream(t, 1)
	repo := cloneUpstream(t, u)

	// the clone's origin points elsewhere; fetch targets the URL directly
	require.NoError(t, repo.SetRemoteURL("origin", "nostr://npub1abc/my-project"))

	newCommit := u.commit(t, "file.txt", time.Unix(1700001000, 0))
	require.False(t, repo.HasCommit(newCommit))

	err := repo.Fetch(context.Background(), FetchOptions{URL: u.path})
	require.NoError(t, err)
	assert.True(t, repo.HasCommit(newCommit))

	id, err := repo.ResolveRef("refs/heads/master")
	require.NoError(t, err)
	assert.Equal(t, newCommit, id)

	// fetching again is not an error
	require.NoError(t, repo.Fetch(context.Background(), FetchOptions{URL: u.path}))
}

func TestPushByURL(t *testing.T) {
	u := newUpstream(t, 1)
	repo := cloneUpstream(t, u)

	target := filepath.Join(t.TempDir(), "target.git")
	_, err := gogit.PlainInit(target, true)
	require.NoError(t, err)

	err = repo.Push(context.Background(), PushOptions{
		URL:      target,
		RefSpecs: []string{"refs/heads/master:refs/heads/master"},
	})
	require.NoError(t, err)

	pushed, err := NewEngine().Open(target)
	require.NoError(t, err)
	id, err := pushed.ResolveRef("refs/heads/master")
	require.NoError(t, err)
	assert.Equal(t, u.commits[0], id)
}

func TestCheckout(t *testing.T) {
	u := newUpstream(t, 2)
	repo := cloneUpstream(t, u)

	require.NoError(t, repo.SetRef("refs/heads/feature", u.commits[0]))
	require.NoError(t, repo.Checkout("feature", true))

	target, symbolic, err := repo.Head()
	require.NoError(t, err)
	assert.True(t, symbolic)
	assert.Equal(t, "refs/heads/feature", target)

	require.Error(t, repo.Checkout("missing-branch", true))
}

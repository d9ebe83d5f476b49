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

package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitmesh/gitmesh/internal/config"
	"github.com/gitmesh/gitmesh/internal/errors"
	"github.com/gitmesh/gitmesh/internal/testutil"
	"github.com/gitmesh/gitmesh/pkg/event"
	"github.com/gitmesh/gitmesh/pkg/git"
	"github.com/gitmesh/gitmesh/pkg/locator"
	"github.com/gitmesh/gitmesh/pkg/reconcile"
	"github.com/gitmesh/gitmesh/pkg/validate"
)

const (
	mirrorA = "https://a.example/repo.git"
	mirrorB = "https://b.example/repo.git"

	c1 = "1111111111111111111111111111111111111111"
	c2 = "2222222222222222222222222222222222222222"
)

func testLocator() locator.Locator {
	return locator.Locator{
		OwnerKey:   "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d",
		Identifier: "my-project",
	}
}

func testAnnouncement(mirrors ...string) *event.Announcement {
	return &event.Announcement{Identifier: "my-project", Mirrors: mirrors}
}

func testState(head string) *event.State {
	return &event.State{
		Identifier: "my-project",
		Head:       "ref: refs/heads/main",
		Refs:       map[string]string{"refs/heads/main": head},
	}
}

func TestCloneSelectsMirrorAdvertisingHeadCommit(t *testing.T) {
	engine := testutil.NewFakeEngine()
	// mirror A lags behind the declared state, mirror B has caught up
	engine.Advertised[mirrorA] = &git.RemoteRefs{Refs: map[string]string{"refs/heads/main": c1}}
	engine.Advertised[mirrorB] = &git.RemoteRefs{Refs: map[string]string{"refs/heads/main": c2}}
	engine.CloneRepos[mirrorB] = testutil.NewFakeRepository().AddCommit(c1, "").AddCommit(c2, c1)

	o := NewOrchestrator(engine, config.Default())
	result, err := o.Clone(context.Background(), CloneRequest{
		Locator:      testLocator(),
		Announcement: testAnnouncement(mirrorA, mirrorB),
		State:        testState(c2),
		Path:         filepath.Join(t.TempDir(), "repo"),
	})

	require.NoError(t, err)
	assert.Equal(t, mirrorB, result.Mirror)
	assert.Equal(t, []string{mirrorA, mirrorB}, engine.ProbedURLs)
	// the lagging mirror is never asked to transfer objects
	assert.Equal(t, []string{mirrorB}, engine.ClonedURLs)
}

func TestCloneVerifiesDeliveredCommit(t *testing.T) {
	engine := testutil.NewFakeEngine()
	// mirror A advertises the head commit but fails to deliver it
	engine.Advertised[mirrorA] = &git.RemoteRefs{Refs: map[string]string{"refs/heads/main": c2}}
	engine.Advertised[mirrorB] = &git.RemoteRefs{Refs: map[string]string{"refs/heads/main": c2}}
	engine.CloneRepos[mirrorA] = testutil.NewFakeRepository().AddCommit(c1, "")
	engine.CloneRepos[mirrorB] = testutil.NewFakeRepository().AddCommit(c1, "").AddCommit(c2, c1)

	o := NewOrchestrator(engine, config.Default())
	result, err := o.Clone(context.Background(), CloneRequest{
		Locator:      testLocator(),
		Announcement: testAnnouncement(mirrorA, mirrorB),
		State:        testState(c2),
		Path:         filepath.Join(t.TempDir(), "repo"),
	})

	require.NoError(t, err)
	assert.Equal(t, mirrorB, result.Mirror)
	assert.Equal(t, []string{mirrorA, mirrorB}, engine.ClonedURLs)
}

func TestClonePlainFallbackWithoutState(t *testing.T) {
	engine := testutil.NewFakeEngine()
	engine.CloneErrs[mirrorA] = fmt.Errorf("connection refused")
	engine.CloneRepos[mirrorB] = testutil.NewFakeRepository().AddCommit(c1, "")

	o := NewOrchestrator(engine, config.Default())
	result, err := o.Clone(context.Background(), CloneRequest{
		Locator:      testLocator(),
		Announcement: testAnnouncement(mirrorA, mirrorB),
		Path:         filepath.Join(t.TempDir(), "repo"),
	})

	require.NoError(t, err)
	assert.Equal(t, mirrorB, result.Mirror)
	// without a state there is nothing to probe for
	assert.Empty(t, engine.ProbedURLs)
}

func TestCloneNoMirrors(t *testing.T) {
	o := NewOrchestrator(testutil.NewFakeEngine(), config.Default())
	_, err := o.Clone(context.Background(), CloneRequest{
		Locator:      testLocator(),
		Announcement: testAnnouncement(),
		Path:         filepath.Join(t.TempDir(), "repo"),
	})

	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.NoMirrorsAvailable), "got %v", err)
}

func TestCloneAllMirrorsFailed(t *testing.T) {
	engine := testutil.NewFakeEngine()
	engine.CloneErrs[mirrorA] = fmt.Errorf("connection refused")
	engine.CloneErrs[mirrorB] = fmt.Errorf("503 service unavailable")

	o := NewOrchestrator(engine, config.Default())
	_, err := o.Clone(context.Background(), CloneRequest{
		Locator:      testLocator(),
		Announcement: testAnnouncement(mirrorA, mirrorB),
		Path:         filepath.Join(t.TempDir(), "repo"),
	})

	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.AllMirrorsFailed), "got %v", err)
}

func TestCloneFailureKeepsPreexistingDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repo")
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep.txt"), []byte("keep"), 0o644))

	engine := testutil.NewFakeEngine()
	engine.CloneErrs[mirrorA] = fmt.Errorf("connection refused")

	o := NewOrchestrator(engine, config.Default())
	_, err := o.Clone(context.Background(), CloneRequest{
		Locator:      testLocator(),
		Announcement: testAnnouncement(mirrorA),
		Path:         path,
	})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(path, "keep.txt"))
	assert.NoError(t, statErr, "a directory that existed before the clone must survive its failure")
}

func TestCloneSetsOriginToLocator(t *testing.T) {
	engine := testutil.NewFakeEngine()
	repo := testutil.NewFakeRepository().AddCommit(c1, "")
	engine.CloneRepos[mirrorA] = repo

	loc := testLocator()
	o := NewOrchestrator(engine, config.Default())
	_, err := o.Clone(context.Background(), CloneRequest{
		Locator:      loc,
		Announcement: testAnnouncement(mirrorA),
		Path:         filepath.Join(t.TempDir(), "repo"),
	})

	require.NoError(t, err)
	url, err := repo.RemoteURL(RemoteName)
	require.NoError(t, err)
	assert.Equal(t, loc.String(), url)
}

func TestCloneCheckoutFailureIsWarning(t *testing.T) {
	engine := testutil.NewFakeEngine()
	repo := testutil.NewFakeRepository().AddCommit(c1, "").AddCommit(c2, c1)
	repo.CheckoutErr = fmt.Errorf("worktree is dirty")
	engine.Advertised[mirrorA] = &git.RemoteRefs{Refs: map[string]string{"refs/heads/main": c2}}
	engine.CloneRepos[mirrorA] = repo

	o := NewOrchestrator(engine, config.Default())
	result, err := o.Clone(context.Background(), CloneRequest{
		Locator:      testLocator(),
		Announcement: testAnnouncement(mirrorA),
		State:        testState(c2),
		Path:         filepath.Join(t.TempDir(), "repo"),
	})

	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "could not check out")
}

func TestProbe(t *testing.T) {
	engine := testutil.NewFakeEngine()
	engine.Advertised[mirrorA] = &git.RemoteRefs{
		Refs:       map[string]string{"refs/heads/main": c2},
		HeadTarget: "refs/heads/main",
	}

	o := NewOrchestrator(engine, config.Default())

	probe := o.Probe(context.Background(), mirrorA, c2)
	assert.True(t, probe.Reachable)
	assert.True(t, probe.ContainsExpectedCommit)

	probe = o.Probe(context.Background(), mirrorA, c1)
	assert.True(t, probe.Reachable)
	assert.False(t, probe.ContainsExpectedCommit)

	probe = o.Probe(context.Background(), mirrorB, c2)
	assert.False(t, probe.Reachable)
	assert.False(t, probe.ContainsExpectedCommit)
}

func TestFetchIntoPrefersMirrorsWithHeadCommit(t *testing.T) {
	engine := testutil.NewFakeEngine()
	engine.Advertised[mirrorA] = &git.RemoteRefs{Refs: map[string]string{"refs/heads/main": c1}}
	engine.Advertised[mirrorB] = &git.RemoteRefs{Refs: map[string]string{"refs/heads/main": c2}}

	repo := testutil.NewFakeRepository()
	o := NewOrchestrator(engine, config.Default())
	used, err := o.FetchInto(context.Background(), repo, testAnnouncement(mirrorA, mirrorB), testState(c2), false)

	require.NoError(t, err)
	assert.Equal(t, mirrorB, used)
	require.Len(t, repo.Fetches, 1)
	assert.Equal(t, mirrorB, repo.Fetches[0].URL)
}

func TestFetchIntoAllMirrorsFailed(t *testing.T) {
	repo := testutil.NewFakeRepository()
	repo.FetchFunc = func(ctx context.Context, opts git.FetchOptions) error {
		return fmt.Errorf("connection refused")
	}

	o := NewOrchestrator(testutil.NewFakeEngine(), config.Default())
	_, err := o.FetchInto(context.Background(), repo, testAnnouncement(mirrorA, mirrorB), nil, false)

	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.AllMirrorsFailed), "got %v", err)
	assert.Len(t, repo.Fetches, 2)
}

// End-to-end over fakes: mirror m1 lacks the declared head commit, m2
// has it; after clone and reconciliation the local refs and HEAD match
// the declared state exactly.
func TestCloneThenReconcileRealizesDeclaredState(t *testing.T) {
	engine := testutil.NewFakeEngine()
	engine.Advertised[mirrorA] = &git.RemoteRefs{Refs: map[string]string{"refs/heads/main": c1}}
	engine.Advertised[mirrorB] = &git.RemoteRefs{Refs: map[string]string{"refs/heads/main": c2}}
	engine.CloneRepos[mirrorB] = testutil.NewFakeRepository().AddCommit(c1, "").AddCommit(c2, c1)

	st := testState(c2)
	o := NewOrchestrator(engine, config.Default())
	cloned, err := o.Clone(context.Background(), CloneRequest{
		Locator:      testLocator(),
		Announcement: testAnnouncement(mirrorA, mirrorB),
		State:        st,
		Path:         filepath.Join(t.TempDir(), "repo"),
	})
	require.NoError(t, err)
	assert.Equal(t, mirrorB, cloned.Mirror)

	reconciled, err := reconcile.Reconcile(context.Background(), cloned.Repo, st, nil)
	require.NoError(t, err)
	assert.Empty(t, reconciled.Missing)

	id, err := cloned.Repo.ResolveRef("refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, c2, id)

	target, symbolic, err := cloned.Repo.Head()
	require.NoError(t, err)
	assert.True(t, symbolic)
	assert.Equal(t, "refs/heads/main", target)

	report := validate.Check(cloned.Repo, st)
	assert.True(t, report.Valid, "warnings: %v", report.Warnings)
}

func TestFetchIntoNoMirrors(t *testing.T) {
	o := NewOrchestrator(testutil.NewFakeEngine(), config.Default())
	_, err := o.FetchInto(context.Background(), testutil.NewFakeRepository(), testAnnouncement(), nil, false)

	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.NoMirrorsAvailable), "got %v", err)
}

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

// Package testutil provides in-memory fakes for the git engine contract,
// shared by the orchestrator, reconciler, push, and validator tests.
package testutil

import (
	"context"
	"fmt"

	"github.com/gitmesh/gitmesh/pkg/git"
)

// FakeRepository implements git.Repository in memory. Commit ancestry is
// modeled as single-parent chains via Parents, which is all the tests
// need.
type FakeRepository struct {
	Dir     string
	Objects map[string]bool
	Refs    map[string]string

	// Parents maps a commit to its parent; roots are absent.
	Parents map[string]string

	HeadTarget     string
	HeadIsSymbolic bool

	Remotes map[string]string

	// FetchFunc, when set, runs on Fetch and can add Objects to emulate
	// a backfill.
	FetchFunc func(ctx context.Context, opts git.FetchOptions) error
	Fetches   []git.FetchOptions

	// PushErrs fails pushes per mirror URL.
	PushErrs map[string]error
	Pushes   []git.PushOptions

	CheckoutErr error
	CheckedOut  []string
}

var _ git.Repository = &FakeRepository{}

func NewFakeRepository() *FakeRepository {
	return &FakeRepository{
		Objects: map[string]bool{},
		Refs:    map[string]string{},
		Parents: map[string]string{},
		Remotes: map[string]string{},
	}
}

// AddCommit records a commit object with an optional parent.
func (r *FakeRepository) AddCommit(id, parent string) *FakeRepository {
	r.Objects[id] = true
	if parent != "" {
		r.Parents[id] = parent
	}
	return r
}

func (r *FakeRepository) Path() string {
	return r.Dir
}

func (r *FakeRepository) Fetch(ctx context.Context, opts git.FetchOptions) error {
	r.Fetches = append(r.Fetches, opts)
	if r.FetchFunc != nil {
		return r.FetchFunc(ctx, opts)
	}
	return nil
}

func (r *FakeRepository) Push(ctx context.Context, opts git.PushOptions) error {
	r.Pushes = append(r.Pushes, opts)
	if err, ok := r.PushErrs[opts.URL]; ok {
		return err
	}
	return nil
}

func (r *FakeRepository) HasCommit(id string) bool {
	return r.Objects[id]
}

func (r *FakeRepository) ListRefs() (map[string]string, error) {
	refs := make(map[string]string, len(r.Refs))
	for name, id := range r.Refs {
		refs[name] = id
	}
	return refs, nil
}

func (r *FakeRepository) ResolveRef(name string) (string, error) {
	id, ok := r.Refs[name]
	if !ok {
		return "", fmt.Errorf("reference %q not found", name)
	}
	return id, nil
}

func (r *FakeRepository) SetRef(name, id string) error {
	r.Refs[name] = id
	return nil
}

func (r *FakeRepository) Head() (string, bool, error) {
	if r.HeadTarget == "" {
		return "", false, fmt.Errorf("reference HEAD not found")
	}
	return r.HeadTarget, r.HeadIsSymbolic, nil
}

func (r *FakeRepository) SetSymbolicHead(refname string) error {
	r.HeadTarget = refname
	r.HeadIsSymbolic = true
	return nil
}

func (r *FakeRepository) SetHead(id string) error {
	r.HeadTarget = id
	r.HeadIsSymbolic = false
	return nil
}

func (r *FakeRepository) IsAncestor(ancestor, descendant string) (bool, error) {
	if !r.Objects[ancestor] || !r.Objects[descendant] {
		return false, fmt.Errorf("commit not found")
	}
	for cur := descendant; cur != ""; cur = r.Parents[cur] {
		if cur == ancestor {
			return true, nil
		}
	}
	return false, nil
}

func (r *FakeRepository) RemoteURL(name string) (string, error) {
	url, ok := r.Remotes[name]
	if !ok {
		return "", fmt.Errorf("remote %q not found", name)
	}
	return url, nil
}

func (r *FakeRepository) SetRemoteURL(name, url string) error {
	r.Remotes[name] = url
	return nil
}

func (r *FakeRepository) Checkout(branch string, force bool) error {
	if r.CheckoutErr != nil {
		return r.CheckoutErr
	}
	r.CheckedOut = append(r.CheckedOut, branch)
	return nil
}

// FakeEngine implements git.Engine against maps keyed by mirror URL.
type FakeEngine struct {
	// Advertised is each mirror's ref advertisement.
	Advertised map[string]*git.RemoteRefs

	// ProbeErrs makes ListRemoteRefs fail for a mirror.
	ProbeErrs map[string]error

	// CloneErrs makes Clone fail for a mirror.
	CloneErrs map[string]error

	// CloneRepos is the repository a successful clone of a mirror yields.
	CloneRepos map[string]*FakeRepository

	// OpenRepos is keyed by local path.
	OpenRepos map[string]*FakeRepository

	ProbedURLs []string
	ClonedURLs []string
}

var _ git.Engine = &FakeEngine{}

func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		Advertised: map[string]*git.RemoteRefs{},
		ProbeErrs:  map[string]error{},
		CloneErrs:  map[string]error{},
		CloneRepos: map[string]*FakeRepository{},
		OpenRepos:  map[string]*FakeRepository{},
	}
}

func (e *FakeEngine) ListRemoteRefs(ctx context.Context, url string) (*git.RemoteRefs, error) {
	e.ProbedURLs = append(e.ProbedURLs, url)
	if err, ok := e.ProbeErrs[url]; ok {
		return nil, err
	}
	refs, ok := e.Advertised[url]
	if !ok {
		return nil, fmt.Errorf("mirror %q unreachable", url)
	}
	return refs, nil
}

func (e *FakeEngine) Clone(ctx context.Context, opts git.CloneOptions) (git.Repository, error) {
	e.ClonedURLs = append(e.ClonedURLs, opts.URL)
	if err, ok := e.CloneErrs[opts.URL]; ok {
		return nil, err
	}
	repo, ok := e.CloneRepos[opts.URL]
	if !ok {
		return nil, fmt.Errorf("mirror %q unreachable", opts.URL)
	}
	repo.Dir = opts.Path
	return repo, nil
}

func (e *FakeEngine) Open(path string) (git.Repository, error) {
	repo, ok := e.OpenRepos[path]
	if !ok {
		return nil, fmt.Errorf("no repository at %q", path)
	}
	return repo, nil
}

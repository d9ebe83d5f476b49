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
	"fmt"
	"io"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/gitmesh/gitmesh/internal/errors"
)

const (
	refHeadsPrefix = "refs/heads/"
	refTagsPrefix  = "refs/tags/"
)

// the git protocol treats this deepen value as "the whole history";
// fetching with it lifts an earlier shallow limit
const unshallowDepth = 2147483647

var defaultFetchRefSpecs = []config.RefSpec{
	"+refs/heads/*:refs/heads/*",
	"+refs/tags/*:refs/tags/*",
}

// GoGit implements Engine on go-git.
type GoGit struct{}

// NewEngine returns the go-git backed engine.
func NewEngine() *GoGit {
	return &GoGit{}
}

func (GoGit) ListRemoteRefs(ctx context.Context, url string) (*RemoteRefs, error) {
	const op errors.Op = "git.ListRemoteRefs"

	remote := gogit.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})
	advertised, err := remote.ListContext(ctx, &gogit.ListOptions{})
	if err != nil {
		return nil, errors.E(op, errors.Git, errors.Repo(url), err)
	}

	result := &RemoteRefs{Refs: map[string]string{}}
	for _, ref := range advertised {
		switch ref.Type() {
		case plumbing.HashReference:
			result.Refs[ref.Name().String()] = ref.Hash().String()
		case plumbing.SymbolicReference:
			if ref.Name() == plumbing.HEAD {
				result.HeadTarget = ref.Target().String()
			}
		}
	}
	return result, nil
}

func (GoGit) Clone(ctx context.Context, opts CloneOptions) (Repository, error) {
	const op errors.Op = "git.Clone"

	r, err := gogit.PlainCloneContext(ctx, opts.Path, false, &gogit.CloneOptions{
		URL:        opts.URL,
		Depth:      opts.Depth,
		NoCheckout: opts.NoCheckout,
		Tags:       gogit.AllTags,
	})
	if err != nil {
		return nil, errors.E(op, errors.Git, errors.Repo(opts.URL), err)
	}
	return &gogitRepo{repo: r, path: opts.Path}, nil
}

func (GoGit) Open(path string) (Repository, error) {
	const op errors.Op = "git.Open"

	r, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, errors.E(op, errors.Git, err)
	}
	return &gogitRepo{repo: r, path: path}, nil
}

type gogitRepo struct {
	repo *gogit.Repository
	path string
}

func (r *gogitRepo) Path() string {
	return r.path
}

func (r *gogitRepo) Fetch(ctx context.Context, opts FetchOptions) error {
	const op errors.Op = "git.Fetch"

	depth := opts.Depth
	if opts.Unshallow {
		depth = unshallowDepth
	}
	err := r.repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteURL: opts.URL,
		RefSpecs:  defaultFetchRefSpecs,
		Depth:     depth,
		Force:     true,
		Tags:      gogit.AllTags,
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return errors.E(op, errors.Git, errors.Repo(opts.URL), err)
	}
	return nil
}

func (r *gogitRepo) Push(ctx context.Context, opts PushOptions) error {
	const op errors.Op = "git.Push"

	refSpecs := make([]config.RefSpec, 0, len(opts.RefSpecs))
	for _, spec := range opts.RefSpecs {
		refSpecs = append(refSpecs, config.RefSpec(spec))
	}
	err := r.repo.PushContext(ctx, &gogit.PushOptions{
		RemoteURL: opts.URL,
		RefSpecs:  refSpecs,
		Force:     opts.Force,
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return errors.E(op, errors.Git, errors.Repo(opts.URL), err)
	}
	return nil
}

func (r *gogitRepo) HasCommit(id string) bool {
	_, err := r.repo.CommitObject(plumbing.NewHash(id))
	return err == nil
}

func (r *gogitRepo) ListRefs() (map[string]string, error) {
	const op errors.Op = "git.ListRefs"

	iter, err := r.repo.References()
	if err != nil {
		return nil, errors.E(op, errors.Git, err)
	}

	refs := map[string]string{}
	for {
		ref, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(op, errors.Git, err)
		}
		if ref.Type() != plumbing.HashReference {
			continue
		}
		name := ref.Name().String()
		if isHeadOrTag(name) {
			refs[name] = ref.Hash().String()
		}
	}
	return refs, nil
}

func isHeadOrTag(name string) bool {
	return len(name) > len(refHeadsPrefix) && name[:len(refHeadsPrefix)] == refHeadsPrefix ||
		len(name) > len(refTagsPrefix) && name[:len(refTagsPrefix)] == refTagsPrefix
}

func (r *gogitRepo) ResolveRef(name string) (string, error) {
	const op errors.Op = "git.ResolveRef"

	ref, err := r.repo.Reference(plumbing.ReferenceName(name), true)
	if err != nil {
		return "", errors.E(op, errors.Git, fmt.Errorf("resolving %q: %w", name, err))
	}
	return ref.Hash().String(), nil
}

func (r *gogitRepo) SetRef(name, id string) error {
	const op errors.Op = "git.SetRef"

	ref := plumbing.NewHashReference(plumbing.ReferenceName(name), plumbing.NewHash(id))
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return errors.E(op, errors.Git, fmt.Errorf("writing %q: %w", name, err))
	}
	return nil
}

func (r *gogitRepo) Head() (string, bool, error) {
	const op errors.Op = "git.Head"

	ref, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", false, errors.E(op, errors.Git, err)
	}
	if ref.Type() == plumbing.SymbolicReference {
		return ref.Target().String(), true, nil
	}
	return ref.Hash().String(), false, nil
}

func (r *gogitRepo) SetSymbolicHead(refname string) error {
	const op errors.Op = "git.SetSymbolicHead"

	ref := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.ReferenceName(refname))
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return errors.E(op, errors.Git, err)
	}
	return nil
}

func (r *gogitRepo) SetHead(id string) error {
	const op errors.Op = "git.SetHead"

	ref := plumbing.NewHashReference(plumbing.HEAD, plumbing.NewHash(id))
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return errors.E(op, errors.Git, err)
	}
	return nil
}

func (r *gogitRepo) IsAncestor(ancestor, descendant string) (bool, error) {
	const op errors.Op = "git.IsAncestor"

	ancestorCommit, err := r.repo.CommitObject(plumbing.NewHash(ancestor))
	if err != nil {
		return false, errors.E(op, errors.Git, fmt.Errorf("commit %s: %w", ancestor, err))
	}
	descendantCommit, err := r.repo.CommitObject(plumbing.NewHash(descendant))
	if err != nil {
		return false, errors.E(op, errors.Git, fmt.Errorf("commit %s: %w", descendant, err))
	}

	ok, err := ancestorCommit.IsAncestor(descendantCommit)
	if err != nil {
		return false, errors.E(op, errors.Git, err)
	}
	return ok, nil
}

func (r *gogitRepo) RemoteURL(name string) (string, error) {
	const op errors.Op = "git.RemoteURL"

	remote, err := r.repo.Remote(name)
	if err != nil {
		return "", errors.E(op, errors.Git, fmt.Errorf("remote %q: %w", name, err))
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", errors.E(op, errors.Git, fmt.Errorf("remote %q has no URL", name))
	}
	return urls[0], nil
}

func (r *gogitRepo) SetRemoteURL(name, url string) error {
	const op errors.Op = "git.SetRemoteURL"

	cfg, err := r.repo.Config()
	if err != nil {
		return errors.E(op, errors.Git, err)
	}
	if remote, ok := cfg.Remotes[name]; ok {
		remote.URLs = []string{url}
		if err := r.repo.SetConfig(cfg); err != nil {
			return errors.E(op, errors.Git, err)
		}
		return nil
	}
	if _, err := r.repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}}); err != nil {
		return errors.E(op, errors.Git, err)
	}
	return nil
}

func (r *gogitRepo) Checkout(branch string, force bool) error {
	const op errors.Op = "git.Checkout"

	worktree, err := r.repo.Worktree()
	if err != nil {
		return errors.E(op, errors.Git, err)
	}
	err = worktree.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Force:  force,
	})
	if err != nil {
		return errors.E(op, errors.Git, fmt.Errorf("checkout %q: %w", branch, err))
	}
	return nil
}

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

// Package mirror realizes a local repository from the object-transfer
// mirrors an announcement declares. Mirrors can lag the declarative
// state or disagree with each other, so each one is probed for the
// expected head commit before any objects move. Trials are sequential:
// that bounds load on mirrors and keeps attribution of which mirror
// served the data simple.
package mirror

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/gitmesh/gitmesh/internal/config"
	"github.com/gitmesh/gitmesh/internal/errors"
	"github.com/gitmesh/gitmesh/internal/util/attempt"
	"github.com/gitmesh/gitmesh/pkg/event"
	"github.com/gitmesh/gitmesh/pkg/git"
	"github.com/gitmesh/gitmesh/pkg/locator"
	"github.com/gitmesh/gitmesh/pkg/logging"
)

// RemoteName is the remote the orchestrator points back at the
// decentralized locator, so later operations re-resolve mirrors instead
// of hard-pinning the one that happened to serve this clone.
const RemoteName = "origin"

// ProbeResult is one mirror's answer to a ref-advertisement probe.
// Ephemeral; computed per attempt and never persisted.
type ProbeResult struct {
	URL                    string
	Reachable              bool
	Refs                   map[string]string
	ContainsExpectedCommit bool
}

// Orchestrator selects and tries mirrors.
type Orchestrator struct {
	engine       git.Engine
	probeTimeout time.Duration
	cloneTimeout time.Duration
	log          *logrus.Entry
}

func NewOrchestrator(engine git.Engine, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		engine:       engine,
		probeTimeout: cfg.ProbeTimeout,
		cloneTimeout: cfg.CloneTimeout,
		log:          logging.Default().WithField("component", "mirror"),
	}
}

// CloneRequest describes one clone operation.
type CloneRequest struct {
	Locator      locator.Locator
	Announcement *event.Announcement

	// State is the declarative snapshot, when one exists. Its head
	// commit steers mirror selection.
	State *event.State

	Path string

	// Depth > 0 asks for a shallow transfer.
	Depth int
}

// CloneResult reports the realized repository and which mirror served it.
type CloneResult struct {
	Repo git.Repository

	// Mirror is the URL objects were actually transferred from.
	Mirror string

	Warnings []string
}

// Clone realizes req.Path from the announcement's mirrors.
//
// When the state names a head commit, mirrors are probed in declared
// order and the first one advertising that commit is cloned from; a
// mirror that advertises the commit but fails to deliver it (corrupt or
// partial) is skipped rather than fatal. Without a state, or when no
// probe matches, each mirror is tried with a plain clone in order. A
// failed clone never leaves a partial repository directory behind.
func (o *Orchestrator) Clone(ctx context.Context, req CloneRequest) (*CloneResult, error) {
	const op errors.Op = "mirror.Clone"

	mirrors := req.Announcement.Mirrors
	if len(mirrors) == 0 {
		return nil, errors.E(op, errors.NoMirrorsAvailable, errors.Repo(req.Locator.String()),
			fmt.Errorf("announcement for %q declares no mirrors", req.Announcement.Identifier))
	}

	pathExisted := pathExists(req.Path)
	var errs *multierror.Error
	var lastErr error

	result := &CloneResult{}

	if headCommit, ok := req.State.HeadCommit(); ok {
		for _, url := range mirrors {
			probe := o.Probe(ctx, url, headCommit)
			if !probe.ContainsExpectedCommit {
				if !probe.Reachable {
					err := fmt.Errorf("mirror %s unreachable", url)
					errs, lastErr = multierror.Append(errs, err), err
				}
				continue
			}

			repo, err := o.cloneOne(ctx, url, req, pathExisted)
			if err != nil {
				errs, lastErr = multierror.Append(errs, err), err
				continue
			}
			// the advertisement said the commit is there; make sure the
			// transfer actually delivered it
			if !repo.HasCommit(headCommit) {
				o.cleanup(req.Path, pathExisted)
				err := fmt.Errorf("mirror %s did not deliver commit %s", url, headCommit)
				errs, lastErr = multierror.Append(errs, err), err
				continue
			}
			result.Repo, result.Mirror = repo, url
			break
		}
	}

	if result.Repo == nil {
		for _, url := range mirrors {
			repo, err := o.cloneOne(ctx, url, req, pathExisted)
			if err != nil {
				errs, lastErr = multierror.Append(errs, err), err
				continue
			}
			result.Repo, result.Mirror = repo, url
			break
		}
	}

	if result.Repo == nil {
		o.log.WithField("mirrors", len(mirrors)).WithError(errs).Debug("all clone attempts failed")
		return nil, errors.E(op, errors.AllMirrorsFailed, errors.Repo(req.Locator.String()), lastErr)
	}

	if err := result.Repo.SetRemoteURL(RemoteName, req.Locator.String()); err != nil {
		return nil, errors.E(op, err)
	}

	// the clone itself already succeeded; a missing or broken head
	// branch only degrades the checkout
	if branch, ok := req.State.HeadBranch(); ok {
		if err := result.Repo.Checkout(branch, true); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("could not check out branch %q: %v", branch, err))
		}
	}
	return result, nil
}

// Probe asks one mirror for its ref advertisement under the probe
// timeout. Never fails: an unreachable mirror is a result, not an error.
func (o *Orchestrator) Probe(ctx context.Context, url, expectedCommit string) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, o.probeTimeout)
	defer cancel()

	advertised, err := o.engine.ListRemoteRefs(ctx, url)
	if err != nil {
		o.log.WithField("mirror", url).WithError(err).Debug("probe failed")
		return ProbeResult{URL: url}
	}
	return ProbeResult{
		URL:                    url,
		Reachable:              true,
		Refs:                   advertised.Refs,
		ContainsExpectedCommit: expectedCommit != "" && advertised.Contains(expectedCommit),
	}
}

// FetchInto transfers fresh objects into an existing repository, trying
// mirrors in the same selection order as Clone: mirrors advertising the
// state's head commit first, then the rest in declared order. Returns
// the mirror that served the fetch.
func (o *Orchestrator) FetchInto(ctx context.Context, repo git.Repository, ann *event.Announcement, st *event.State, unshallow bool) (string, error) {
	const op errors.Op = "mirror.FetchInto"

	if len(ann.Mirrors) == 0 {
		return "", errors.E(op, errors.NoMirrorsAvailable,
			fmt.Errorf("announcement for %q declares no mirrors", ann.Identifier))
	}

	ordered := ann.Mirrors
	if headCommit, ok := st.HeadCommit(); ok {
		ordered = o.orderByProbe(ctx, ann.Mirrors, headCommit)
	}

	_, used, err := attempt.First(ctx, ordered, o.cloneTimeout,
		func(ctx context.Context, url string) (struct{}, error) {
			return struct{}{}, repo.Fetch(ctx, git.FetchOptions{URL: url, Unshallow: unshallow})
		})
	if err != nil {
		return "", errors.E(op, errors.AllMirrorsFailed, err)
	}
	return used, nil
}

// orderByProbe moves mirrors advertising the expected commit to the
// front, keeping declared order within each group.
func (o *Orchestrator) orderByProbe(ctx context.Context, mirrors []string, expectedCommit string) []string {
	var containing, rest []string
	for _, url := range mirrors {
		if o.Probe(ctx, url, expectedCommit).ContainsExpectedCommit {
			containing = append(containing, url)
		} else {
			rest = append(rest, url)
		}
	}
	return append(containing, rest...)
}

func (o *Orchestrator) cloneOne(ctx context.Context, url string, req CloneRequest, pathExisted bool) (git.Repository, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cloneTimeout)
	defer cancel()

	repo, err := o.engine.Clone(ctx, git.CloneOptions{
		URL:   url,
		Path:  req.Path,
		Depth: req.Depth,
	})
	if err != nil {
		o.cleanup(req.Path, pathExisted)
		return nil, err
	}
	return repo, nil
}

// cleanup removes a partial clone, but never a directory that existed
// before the operation started.
func (o *Orchestrator) cleanup(path string, pathExisted bool) {
	if pathExisted {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		o.log.WithField("path", path).WithError(err).Warn("could not remove partial clone")
	}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

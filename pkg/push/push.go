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

// Package push publishes a new declarative state and transfers objects
// to the mirrors. Publishing metadata and pushing objects are two
// independent, non-atomic operations; object transfer success is the
// authoritative signal for the push, state-publish failure is always a
// warning. The fast-forward safety check runs purely client-side,
// because independent mirrors cannot be trusted to enforce it against
// the declarative state.
package push

import (
	"context"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"

	"github.com/gitmesh/gitmesh/internal/config"
	"github.com/gitmesh/gitmesh/internal/errors"
	"github.com/gitmesh/gitmesh/pkg/event"
	"github.com/gitmesh/gitmesh/pkg/git"
	"github.com/gitmesh/gitmesh/pkg/locator"
	"github.com/gitmesh/gitmesh/pkg/logging"
	"github.com/gitmesh/gitmesh/pkg/relay"
)

// EventService is the slice of the relay client the coordinator needs.
type EventService interface {
	FetchRepoEvents(ctx context.Context, loc locator.Locator) (*relay.RepoEvents, error)
	Publish(ctx context.Context, ev *nostr.Event, relayURLs []string) relay.PublishResult
}

// Coordinator drives the push protocol.
type Coordinator struct {
	events      EventService
	signingKey  string
	pushTimeout time.Duration
	log         *logrus.Entry
}

// NewCoordinator builds a coordinator. signingKey is the hex secret key
// that signs the published state event.
func NewCoordinator(events EventService, signingKey string, cfg *config.Config) *Coordinator {
	return &Coordinator{
		events:      events,
		signingKey:  signingKey,
		pushTimeout: cfg.PushTimeout,
		log:         logging.Default().WithField("component", "push"),
	}
}

// Request describes one push.
type Request struct {
	Repo    git.Repository
	Locator locator.Locator

	// Ref is the full name of the ref being pushed, e.g. refs/heads/main.
	Ref string

	// Force skips the fast-forward safety check.
	Force bool
}

// Result reports what the push achieved. On an AllMirrorsFailed error a
// non-nil Result is still returned, because the state event may already
// have been published before the mirrors were tried.
type Result struct {
	// UpToDate means the remote state already records the local object
	// id for the pushed ref; nothing was published or transferred.
	UpToDate bool

	// Published means at least one relay accepted the new state event.
	Published bool

	// Mirrors lists the mirrors that accepted the object transfer.
	Mirrors []string

	Warnings []string
}

// Push runs the protocol: fast-forward safety check against the freshly
// fetched declarative state, new state event over the full local ref
// snapshot, best-effort publish, then an independent push to every
// mirror, of which at least one must succeed.
func (c *Coordinator) Push(ctx context.Context, req Request) (*Result, error) {
	const op errors.Op = "push.Push"
	repoTag := errors.Repo(req.Locator.String())

	// the announcement is needed for the mirror list even on a forced
	// push, so the fetch always happens; force only skips the check
	events, err := c.events.FetchRepoEvents(ctx, req.Locator)
	if err != nil {
		return nil, errors.E(op, err)
	}
	ann := events.Announcement
	if len(ann.Mirrors) == 0 {
		return nil, errors.E(op, errors.NoMirrorsAvailable, repoTag,
			fmt.Errorf("announcement for %q declares no mirrors to push to", ann.Identifier))
	}

	localID, err := req.Repo.ResolveRef(req.Ref)
	if err != nil {
		return nil, errors.E(op, errors.Git, err)
	}

	result := &Result{}

	if !req.Force && events.State != nil {
		remoteID := events.State.Refs[req.Ref]
		if remoteID == localID {
			result.UpToDate = true
			return result, nil
		}
		if remoteID != "" {
			if err := c.checkFastForward(req.Repo, req.Ref, remoteID, localID); err != nil {
				return nil, errors.E(op, repoTag, err)
			}
		}
	}

	stateEvent, err := c.buildStateEvent(req.Repo, ann.Identifier)
	if err != nil {
		return nil, errors.E(op, err)
	}

	published := c.events.Publish(ctx, stateEvent, ann.Relays)
	result.Published = !published.AllFailed()
	if published.AllFailed() {
		// eventual consistency: a later push can still converge readers,
		// and the object transfer below is the higher-priority effect
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("state event was not accepted by any relay: %v", published.Failed))
	}

	refSpec := fmt.Sprintf("%s:%s", req.Ref, req.Ref)
	if req.Force {
		refSpec = "+" + refSpec
	}

	var lastErr error
	for _, url := range ann.Mirrors {
		if err := c.pushOne(ctx, req.Repo, url, refSpec, req.Force); err != nil {
			lastErr = err
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("push to mirror %s failed: %v", url, err))
			continue
		}
		result.Mirrors = append(result.Mirrors, url)
	}
	if len(result.Mirrors) == 0 {
		return result, errors.E(op, errors.AllMirrorsFailed, repoTag, lastErr)
	}
	return result, nil
}

// checkFastForward rejects the push unless the local object id descends
// from the remote's recorded one, before anything touches the network.
func (c *Coordinator) checkFastForward(repo git.Repository, ref, remoteID, localID string) error {
	ok, err := repo.IsAncestor(remoteID, localID)
	if err != nil || !ok {
		return errors.E(errors.NonFastForward, fmt.Errorf(
			"the recorded state for %s is %s, which is not an ancestor of %s; "+
				"fetch and integrate the remote changes (gitmesh sync) before pushing again, "+
				"or push with --force to discard them", ref, remoteID, localID))
	}
	return nil
}

// buildStateEvent snapshots every resolvable head and tag plus HEAD into
// a signed state event.
func (c *Coordinator) buildStateEvent(repo git.Repository, identifier string) (*nostr.Event, error) {
	refs, err := repo.ListRefs()
	if err != nil {
		return nil, err
	}

	var head string
	target, symbolic, err := repo.Head()
	switch {
	case err != nil:
		// a repository without a HEAD still has a publishable snapshot
		c.log.WithError(err).Debug("no HEAD to publish")
	case symbolic:
		head = "ref: " + target
	default:
		head = target
	}

	ev := event.NewStateEvent(identifier, head, refs)
	if err := ev.Sign(c.signingKey); err != nil {
		return nil, fmt.Errorf("signing state event: %w", err)
	}
	return ev, nil
}

func (c *Coordinator) pushOne(ctx context.Context, repo git.Repository, url, refSpec string, force bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.pushTimeout)
	defer cancel()

	return repo.Push(ctx, git.PushOptions{
		URL:      url,
		RefSpecs: []string{refSpec},
		Force:    force,
	})
}

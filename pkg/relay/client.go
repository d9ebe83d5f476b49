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

// Package relay queries and publishes repository events against a set of
// relays. Queries prefer the locator's relay under a short timeout and
// fall back to the configured relay group; publishing is best-effort and
// fully parallel, since relays are independent and partial failure is the
// normal operating condition.
package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gitmesh/gitmesh/internal/config"
	"github.com/gitmesh/gitmesh/internal/errors"
	"github.com/gitmesh/gitmesh/internal/util/attempt"
	"github.com/gitmesh/gitmesh/pkg/event"
	"github.com/gitmesh/gitmesh/pkg/locator"
	"github.com/gitmesh/gitmesh/pkg/logging"
)

// Conn is the subset of a relay connection the client uses. *nostr.Relay
// satisfies it; tests substitute fakes.
type Conn interface {
	QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
	Publish(ctx context.Context, ev nostr.Event) error
	Close() error
}

// Dialer opens a connection to one relay URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

func defaultDialer(ctx context.Context, url string) (Conn, error) {
	r, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return nostrConn{r}, nil
}

// nostrConn narrows *nostr.Relay to the Conn interface.
type nostrConn struct {
	relay *nostr.Relay
}

func (c nostrConn) QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	return c.relay.QuerySync(ctx, filter)
}

func (c nostrConn) Publish(ctx context.Context, ev nostr.Event) error {
	return c.relay.Publish(ctx, ev)
}

func (c nostrConn) Close() error {
	return c.relay.Close()
}

// Client is the event store client. It holds no per-operation state; one
// client serves any number of sequential operations.
type Client struct {
	fallbackRelays   []string
	preferredTimeout time.Duration
	fallbackTimeout  time.Duration
	publishTimeout   time.Duration
	dial             Dialer
	log              *logrus.Entry
}

// NewClient builds a client from configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		fallbackRelays:   cfg.Relays,
		preferredTimeout: cfg.PreferredRelayTimeout,
		fallbackTimeout:  cfg.FallbackRelayTimeout,
		publishTimeout:   cfg.PublishTimeout,
		dial:             defaultDialer,
		log:              logging.Default().WithField("component", "relay"),
	}
}

// WithDialer substitutes the relay dialer; tests use this to avoid the
// network.
func (c *Client) WithDialer(dial Dialer) *Client {
	c.dial = dial
	return c
}

// RepoEvents is the result of one metadata fetch: the canonical
// announcement plus the newest state snapshot, when one exists.
type RepoEvents struct {
	Announcement *event.Announcement
	State        *event.State

	// Warnings carries tag-decode problems; they never fail the fetch.
	Warnings []string
}

// FetchRepoEvents queries for the repository's announcement and state.
// The preferred relay, when the locator names one, is tried alone first
// under the short timeout; an empty result widens to the fallback group
// under the longer timeout.
func (c *Client) FetchRepoEvents(ctx context.Context, loc locator.Locator) (*RepoEvents, error) {
	const op errors.Op = "relay.FetchRepoEvents"

	filter := nostr.Filter{
		Kinds:   []int{event.KindRepoAnnouncement, event.KindRepoState},
		Authors: []string{loc.OwnerKey},
		Tags:    nostr.TagMap{"d": []string{loc.Identifier}},
	}

	var found []*nostr.Event
	if loc.PreferredRelay != "" {
		found = c.query(ctx, []string{loc.PreferredRelay}, filter, c.preferredTimeout)
	}
	if len(found) == 0 {
		found = c.query(ctx, c.fallbackRelays, filter, c.fallbackTimeout)
	}

	events, err := collect(found, loc)
	if err != nil {
		return nil, errors.E(op, errors.Repo(loc.String()), err)
	}
	return events, nil
}

// query fans the filter out to every relay in parallel, each under its
// own timeout, and merges the results. Per-relay failures are logged and
// otherwise folded into the fallback logic; only the caller decides what
// an empty merge means.
func (c *Client) query(ctx context.Context, relays []string, filter nostr.Filter, timeout time.Duration) []*nostr.Event {
	var (
		mu     sync.Mutex
		merged []*nostr.Event
		seen   = map[string]bool{}
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, url := range relays {
		url := normalizeRelayURL(url)
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			conn, err := c.dial(qctx, url)
			if err != nil {
				c.log.WithField("relay", url).WithError(err).Debug("relay unreachable")
				return nil
			}
			defer conn.Close()

			evs, err := conn.QuerySync(qctx, filter)
			if err != nil {
				c.log.WithField("relay", url).WithError(err).Debug("relay query failed")
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, ev := range evs {
				if ev == nil || seen[ev.ID] {
					continue
				}
				seen[ev.ID] = true
				merged = append(merged, ev)
			}
			return nil
		})
	}
	// the goroutines swallow errors; Wait only observes ctx cancellation
	_ = g.Wait()
	return merged
}

// collect reduces raw events to the typed pair: one announcement (newest
// when several claim the slot) and the newest state. Events with a bad
// signature are dropped with a warning.
func collect(found []*nostr.Event, loc locator.Locator) (*RepoEvents, error) {
	var verified []*nostr.Event
	var warnings []string
	for _, ev := range found {
		if ok, err := ev.CheckSignature(); err != nil || !ok {
			warnings = append(warnings, fmt.Sprintf("dropping event %s: bad signature", ev.ID))
			continue
		}
		verified = append(verified, ev)
	}

	annEvent := event.Newest(verified, event.KindRepoAnnouncement)
	if annEvent == nil {
		return nil, errors.E(errors.RepositoryNotFound,
			fmt.Errorf("no announcement found for %q", loc.Identifier))
	}
	ann, annWarnings, err := event.ParseAnnouncement(annEvent)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, annWarnings...)

	result := &RepoEvents{Announcement: ann, Warnings: warnings}

	if stEvent := event.Newest(verified, event.KindRepoState); stEvent != nil {
		st, stWarnings, err := event.ParseState(stEvent)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("ignoring unusable state event: %v", err))
		} else {
			result.State = st
			result.Warnings = append(result.Warnings, stWarnings...)
		}
	}
	return result, nil
}

// PublishResult reports the per-relay outcome of a best-effort publish.
type PublishResult struct {
	Succeeded []string

	// Failed folds the per-relay errors; nil when everything succeeded.
	Failed error
}

// AllFailed reports whether no relay accepted the event. Callers treat
// this as a warning, not an error: the event network is eventually
// consistent and object transfer is the higher-priority side effect.
func (r PublishResult) AllFailed() bool {
	return len(r.Succeeded) == 0
}

// Publish fires the signed event at the union of the given relays and
// the configured default set, fully parallel, each under the publish
// timeout.
func (c *Client) Publish(ctx context.Context, ev *nostr.Event, relayURLs []string) PublishResult {
	targets := unionRelays(relayURLs, c.fallbackRelays)

	outcomes := attempt.Broadcast(ctx, targets, c.publishTimeout, func(ctx context.Context, url string) error {
		conn, err := c.dial(ctx, url)
		if err != nil {
			return err
		}
		defer conn.Close()
		return conn.Publish(ctx, *ev)
	})

	result := PublishResult{Failed: attempt.Failed(outcomes)}
	for _, o := range outcomes {
		if o.Err == nil {
			result.Succeeded = append(result.Succeeded, o.Candidate)
		} else {
			c.log.WithField("relay", o.Candidate).WithError(o.Err).Debug("publish failed")
		}
	}
	return result
}

// unionRelays merges the two lists, declared relays first, deduplicated
// after URL normalization.
func unionRelays(declared, defaults []string) []string {
	var union []string
	seen := map[string]bool{}
	for _, url := range append(append([]string{}, declared...), defaults...) {
		url = normalizeRelayURL(url)
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		union = append(union, url)
	}
	return union
}

func normalizeRelayURL(url string) string {
	url = strings.TrimSpace(strings.TrimSuffix(url, "/"))
	if url == "" {
		return ""
	}
	if !strings.Contains(url, "://") {
		return "wss://" + url
	}
	return url
}

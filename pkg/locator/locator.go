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

// Package locator parses decentralized repository locators.
//
// A locator names a repository by its owner's public key and a repository
// identifier, optionally qualified with a preferred relay:
//
//	nostr://<npub-or-hex>/<identifier>
//	nostr://<npub-or-hex>/<relay-host>/<identifier>
//	nostr://<name@domain>/<identifier>
//
// The name@domain form is resolved to a public key at parse time via a
// NIP-05 style lookup.
package locator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr/nip05"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/gitmesh/gitmesh/internal/errors"
)

// Scheme is the URI scheme gitmesh locators use.
const Scheme = "nostr"

const defaultNameLookupTimeout = 3 * time.Second

// Locator identifies a repository on the event network. Immutable once
// parsed; OwnerKey is always a valid 32-byte key (64 hex chars) and
// Identifier is non-empty by the time Parse returns.
type Locator struct {
	// OwnerKey is the repository owner's public key, hex-encoded.
	OwnerKey string

	// Identifier is the repository identifier under that key.
	Identifier string

	// PreferredRelay is the relay the locator asks to be queried first,
	// normalized to a wss:// URL. Empty when the locator carries none.
	PreferredRelay string

	// original is the value before parsing, returned by String() to
	// improve round-trip accuracy.
	original string
}

// NameResolver resolves a name@domain alias to a public key and optional
// relay hints. It must honor the context deadline.
type NameResolver func(ctx context.Context, name string) (pubkey string, relays []string, err error)

// Options controls Parse. The zero value uses the NIP-05 resolver with
// the default lookup timeout.
type Options struct {
	NameResolver      NameResolver
	NameLookupTimeout time.Duration
}

// Parse parses a locator string into a Locator.
func Parse(ctx context.Context, s string, opts Options) (Locator, error) {
	const op errors.Op = "locator.Parse"

	rest, ok := strings.CutPrefix(s, Scheme+"://")
	if !ok {
		return Locator{}, errors.E(op, errors.InvalidLocator,
			fmt.Errorf("locator %q must start with %s://", s, Scheme))
	}

	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 {
		return Locator{}, errors.E(op, errors.InvalidLocator,
			fmt.Errorf("locator %q must name a key and a repository identifier", s))
	}

	loc := Locator{original: s}

	key, hintedRelays, err := resolveKeySegment(ctx, parts[0], opts)
	if err != nil {
		return Locator{}, errors.E(op, err)
	}
	loc.OwnerKey = key

	if len(parts) == 2 {
		loc.Identifier = parts[1]
	} else {
		// relay-qualified triple; anything after the relay host is the
		// identifier, which may itself contain slashes
		loc.PreferredRelay = normalizeRelay(parts[1])
		loc.Identifier = strings.Join(parts[2:], "/")
	}

	if loc.PreferredRelay == "" && len(hintedRelays) > 0 {
		loc.PreferredRelay = normalizeRelay(hintedRelays[0])
	}

	if loc.Identifier == "" {
		return Locator{}, errors.E(op, errors.InvalidLocator,
			fmt.Errorf("locator %q has an empty repository identifier", s))
	}
	return loc, nil
}

// resolveKeySegment turns the first locator segment into a hex public
// key. Structured decode is tried first; only a segment shaped like
// name@domain falls back to the alias lookup.
func resolveKeySegment(ctx context.Context, segment string, opts Options) (string, []string, error) {
	const op errors.Op = "locator.resolveKeySegment"

	if key, ok := decodeKey(segment); ok {
		return key, nil, nil
	}

	if !looksLikeName(segment) {
		return "", nil, errors.E(op, errors.InvalidLocator,
			fmt.Errorf("%q is neither a public key nor a name@domain alias", segment))
	}

	resolver := opts.NameResolver
	if resolver == nil {
		resolver = nip05Resolver
	}
	timeout := opts.NameLookupTimeout
	if timeout == 0 {
		timeout = defaultNameLookupTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	key, relays, err := resolver(ctx, segment)
	if err != nil {
		return "", nil, errors.E(op, errors.NameLookupFailed,
			fmt.Errorf("resolving %q: %w", segment, err))
	}
	if _, ok := decodeKey(key); !ok {
		return "", nil, errors.E(op, errors.NameLookupFailed,
			fmt.Errorf("lookup for %q returned an invalid key", segment))
	}
	return strings.ToLower(key), relays, nil
}

func nip05Resolver(ctx context.Context, name string) (string, []string, error) {
	pointer, err := nip05.QueryIdentifier(ctx, name)
	if err != nil {
		return "", nil, err
	}
	return pointer.PublicKey, pointer.Relays, nil
}

// decodeKey accepts an npub or a 64-char hex key.
func decodeKey(s string) (string, bool) {
	if strings.HasPrefix(s, "npub1") {
		prefix, value, err := nip19.Decode(s)
		if err != nil || prefix != "npub" {
			return "", false
		}
		return value.(string), true
	}
	if len(s) != 64 {
		return "", false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return "", false
		}
	}
	return strings.ToLower(s), true
}

func looksLikeName(s string) bool {
	at := strings.Index(s, "@")
	return at > 0 && at < len(s)-1 && !strings.Contains(s[at+1:], "@")
}

func normalizeRelay(host string) string {
	if strings.Contains(host, "://") {
		return host
	}
	return "wss://" + host
}

// String implements fmt.Stringer. It returns the original input when the
// locator came from Parse, otherwise a canonical rendering.
func (l Locator) String() string {
	if l.original != "" {
		return l.original
	}
	key := l.OwnerKey
	if npub, err := nip19.EncodePublicKey(l.OwnerKey); err == nil {
		key = npub
	}
	if l.PreferredRelay != "" {
		return fmt.Sprintf("%s://%s/%s/%s", Scheme, key, relayHost(l.PreferredRelay), l.Identifier)
	}
	return fmt.Sprintf("%s://%s/%s", Scheme, key, l.Identifier)
}

func relayHost(relayURL string) string {
	if i := strings.Index(relayURL, "://"); i >= 0 {
		return relayURL[i+3:]
	}
	return relayURL
}

// Validate checks the invariants Parse guarantees, for locators built by
// hand.
func (l Locator) Validate() error {
	const op errors.Op = "locator.Validate"
	if _, ok := decodeKey(l.OwnerKey); !ok {
		return errors.E(op, errors.InvalidLocator, fmt.Errorf("owner key must be a 32-byte key"))
	}
	if l.Identifier == "" {
		return errors.E(op, errors.InvalidLocator, fmt.Errorf("identifier must not be empty"))
	}
	return nil
}

// Equal compares the resolved fields, ignoring the original input string.
func (l Locator) Equal(o Locator) bool {
	return l.OwnerKey == o.OwnerKey &&
		l.Identifier == o.Identifier &&
		l.PreferredRelay == o.PreferredRelay
}

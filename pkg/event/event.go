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

// Package event decodes the two declarative event kinds gitmesh consumes
// from relays into strongly typed records, and builds the events gitmesh
// publishes. Decoding happens eagerly at the boundary; malformed tags are
// dropped with a warning instead of propagating raw tag lists through the
// core.
package event

import (
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// Event kinds for git repositories on the event network.
const (
	// KindRepoAnnouncement is the owner-published record declaring a
	// repository's mirrors and relay list.
	KindRepoAnnouncement = 30617

	// KindRepoState is the owner-published snapshot of refs and HEAD.
	KindRepoState = 30618
)

const identifierTag = "d"

// Newest returns the event with the largest created_at among those of the
// given kind, or nil. Ties keep the first seen, which makes selection
// deterministic for a fixed input order.
func Newest(events []*nostr.Event, kind int) *nostr.Event {
	var newest *nostr.Event
	for _, ev := range events {
		if ev == nil || ev.Kind != kind {
			continue
		}
		if newest == nil || ev.CreatedAt > newest.CreatedAt {
			newest = ev
		}
	}
	return newest
}

func identifier(ev *nostr.Event) string {
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == identifierTag {
			return tag[1]
		}
	}
	return ""
}

func isObjectID(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}

func isRefName(s string) bool {
	return strings.HasPrefix(s, "refs/heads/") || strings.HasPrefix(s, "refs/tags/")
}

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

package event

import (
	"fmt"
	"net/url"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// Announcement is the typed form of a repository announcement event: the
// static metadata declaring where a repository lives. Fetched fresh per
// operation and never cached across operations.
type Announcement struct {
	Identifier  string
	Name        string
	Description string
	Web         []string

	// Mirrors are the object-transfer endpoints, deduplicated, in
	// declared order, http/https only.
	Mirrors []string

	// Relays are the relay endpoints the owner asks events for this
	// repository to be published to.
	Relays []string

	// Maintainers are public keys allowed to publish alongside the owner.
	Maintainers []string

	Owner     string
	CreatedAt time.Time
}

// ParseAnnouncement decodes a repository announcement event. Tags it does
// not understand, and mirror URLs with a scheme other than http/https,
// are dropped and reported as warnings.
func ParseAnnouncement(ev *nostr.Event) (*Announcement, []string, error) {
	if ev.Kind != KindRepoAnnouncement {
		return nil, nil, fmt.Errorf("event kind %d is not a repository announcement", ev.Kind)
	}

	a := &Announcement{
		Owner:     ev.PubKey,
		CreatedAt: ev.CreatedAt.Time(),
	}
	var warnings []string
	seenMirror := map[string]bool{}

	for _, tag := range ev.Tags {
		if len(tag) < 2 {
			warnings = append(warnings, fmt.Sprintf("announcement: dropping malformed tag %v", []string(tag)))
			continue
		}
		values := tag[1:]
		switch tag[0] {
		case identifierTag:
			a.Identifier = tag[1]
		case "name":
			a.Name = tag[1]
		case "description":
			a.Description = tag[1]
		case "web":
			a.Web = append(a.Web, values...)
		case "clone":
			for _, raw := range values {
				u, err := url.Parse(raw)
				if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
					warnings = append(warnings, fmt.Sprintf("announcement: dropping mirror %q: not an http(s) URL", raw))
					continue
				}
				if !seenMirror[raw] {
					seenMirror[raw] = true
					a.Mirrors = append(a.Mirrors, raw)
				}
			}
		case "relays":
			a.Relays = append(a.Relays, values...)
		case "maintainers":
			a.Maintainers = append(a.Maintainers, values...)
		}
	}

	if a.Identifier == "" {
		return nil, warnings, fmt.Errorf("announcement event %s has no identifier tag", ev.ID)
	}
	return a, warnings, nil
}

// NewAnnouncementEvent builds the unsigned announcement event for a. The
// caller signs it before publishing.
func NewAnnouncementEvent(a *Announcement) *nostr.Event {
	tags := nostr.Tags{{identifierTag, a.Identifier}}
	if a.Name != "" {
		tags = append(tags, nostr.Tag{"name", a.Name})
	}
	if a.Description != "" {
		tags = append(tags, nostr.Tag{"description", a.Description})
	}
	for _, w := range a.Web {
		tags = append(tags, nostr.Tag{"web", w})
	}
	if len(a.Mirrors) > 0 {
		tags = append(tags, append(nostr.Tag{"clone"}, a.Mirrors...))
	}
	if len(a.Relays) > 0 {
		tags = append(tags, append(nostr.Tag{"relays"}, a.Relays...))
	}
	if len(a.Maintainers) > 0 {
		tags = append(tags, append(nostr.Tag{"maintainers"}, a.Maintainers...))
	}

	return &nostr.Event{
		Kind:      KindRepoAnnouncement,
		CreatedAt: nostr.Now(),
		Tags:      tags,
	}
}

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
	"sort"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

const (
	headTag           = "HEAD"
	symbolicRefPrefix = "ref: "
	headsPrefix       = "refs/heads/"
)

// State is the typed form of a repository state event: the declarative
// "what the refs should be" snapshot. The newest state for the same
// (owner, identifier) wins; conflicting snapshots are never merged.
type State struct {
	Identifier string

	// Head is either a symbolic reference ("ref: refs/heads/main") or a
	// direct object id.
	Head string

	// Refs maps full ref names to object ids.
	Refs map[string]string

	Owner     string
	CreatedAt time.Time
}

// ParseState decodes a repository state event. Ref tags with a malformed
// name or object id are dropped with a warning.
func ParseState(ev *nostr.Event) (*State, []string, error) {
	if ev.Kind != KindRepoState {
		return nil, nil, fmt.Errorf("event kind %d is not a repository state", ev.Kind)
	}

	s := &State{
		Refs:      map[string]string{},
		Owner:     ev.PubKey,
		CreatedAt: ev.CreatedAt.Time(),
	}
	var warnings []string

	for _, tag := range ev.Tags {
		if len(tag) < 2 {
			warnings = append(warnings, fmt.Sprintf("state: dropping malformed tag %v", []string(tag)))
			continue
		}
		switch {
		case tag[0] == identifierTag:
			s.Identifier = tag[1]
		case tag[0] == headTag:
			target := tag[1]
			if !strings.HasPrefix(target, symbolicRefPrefix) && !isObjectID(target) {
				warnings = append(warnings, fmt.Sprintf("state: dropping malformed HEAD %q", target))
				continue
			}
			s.Head = target
		case isRefName(tag[0]):
			if !isObjectID(tag[1]) {
				warnings = append(warnings, fmt.Sprintf("state: dropping ref %q: %q is not an object id", tag[0], tag[1]))
				continue
			}
			s.Refs[tag[0]] = tag[1]
		}
	}

	if s.Identifier == "" {
		return nil, warnings, fmt.Errorf("state event %s has no identifier tag", ev.ID)
	}
	return s, warnings, nil
}

// HeadBranch returns the branch name HEAD points at, when HEAD is a
// symbolic reference to a branch.
func (s *State) HeadBranch() (string, bool) {
	if s == nil || !strings.HasPrefix(s.Head, symbolicRefPrefix) {
		return "", false
	}
	refname := strings.TrimPrefix(s.Head, symbolicRefPrefix)
	if !strings.HasPrefix(refname, headsPrefix) {
		return "", false
	}
	return strings.TrimPrefix(refname, headsPrefix), true
}

// HeadRef returns the full ref name HEAD points at when symbolic.
func (s *State) HeadRef() (string, bool) {
	if s == nil || !strings.HasPrefix(s.Head, symbolicRefPrefix) {
		return "", false
	}
	return strings.TrimPrefix(s.Head, symbolicRefPrefix), true
}

// HeadCommit resolves HEAD to an object id: directly when HEAD carries
// one, through Refs when symbolic. ok is false when the snapshot doesn't
// determine a head commit.
func (s *State) HeadCommit() (string, bool) {
	if s == nil {
		return "", false
	}
	if isObjectID(s.Head) {
		return s.Head, true
	}
	if refname, ok := s.HeadRef(); ok {
		id, found := s.Refs[refname]
		return id, found
	}
	return "", false
}

// NewStateEvent builds the unsigned state event for a full ref snapshot.
// Ref tags are emitted in sorted order so the same snapshot always
// serializes the same way. The caller signs it before publishing.
func NewStateEvent(identifier, head string, refs map[string]string) *nostr.Event {
	tags := nostr.Tags{{identifierTag, identifier}}
	if head != "" {
		tags = append(tags, nostr.Tag{headTag, head})
	}

	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tags = append(tags, nostr.Tag{name, refs[name]})
	}

	return &nostr.Event{
		Kind:      KindRepoState,
		CreatedAt: nostr.Now(),
		Tags:      tags,
	}
}

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

// Package reconcile rewrites a local repository's refs and HEAD to match
// a declarative state snapshot. No single mirror is guaranteed to hold
// the objects a snapshot names, so refs whose objects are missing are
// deferred, backfilled once from the mirrors, and retried; whatever is
// still unresolved after that is a warning, not an error. Partial state
// is tolerated.
package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/gitmesh/gitmesh/internal/errors"
	"github.com/gitmesh/gitmesh/pkg/event"
	"github.com/gitmesh/gitmesh/pkg/git"
	"github.com/gitmesh/gitmesh/pkg/logging"
)

// Backfill fetches additional objects into the repository, typically
// mirror.Orchestrator.FetchInto with unshallow semantics. nil disables
// the backfill round.
type Backfill func(ctx context.Context) error

// Result reports what the reconciliation achieved.
type Result struct {
	// Applied lists refs now pointing at their snapshot object id.
	Applied []string

	// Missing lists refs whose object could not be realized from any
	// reachable mirror.
	Missing []string

	Warnings []string
}

// Reconcile makes repo's refs and HEAD match st. HEAD is written last,
// so a crash mid-reconciliation never leaves HEAD pointing into a
// half-updated ref set.
func Reconcile(ctx context.Context, repo git.Repository, st *event.State, backfill Backfill) (*Result, error) {
	const op errors.Op = "reconcile.Reconcile"
	log := logging.Default().WithField("component", "reconcile")

	result := &Result{}

	deferred := writeRefs(repo, st.Refs, refNames(st.Refs), result, log)

	if len(deferred) > 0 && backfill != nil {
		log.WithField("missing", len(deferred)).Debug("backfilling missing objects")
		if err := backfill(ctx); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("backfill fetch failed: %v", err))
		}
		deferred = writeRefs(repo, st.Refs, deferred, result, log)
	}

	for _, name := range deferred {
		result.Missing = append(result.Missing, name)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("ref %q: object %s not found on any reachable mirror", name, st.Refs[name]))
	}

	if err := writeHead(repo, st); err != nil {
		return result, errors.E(op, err)
	}
	return result, nil
}

// writeRefs writes every ref whose object exists locally and returns the
// names it had to defer.
func writeRefs(repo git.Repository, refs map[string]string, names []string, result *Result, log *logrus.Entry) []string {
	var deferred []string
	for _, name := range names {
		id := refs[name]
		if !repo.HasCommit(id) {
			deferred = append(deferred, name)
			continue
		}
		if err := repo.SetRef(name, id); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("ref %q: %v", name, err))
			continue
		}
		log.WithFields(logging.Fields{"ref": name, "id": id}).Trace("ref written")
		result.Applied = append(result.Applied, name)
	}
	return deferred
}

func writeHead(repo git.Repository, st *event.State) error {
	if refname, ok := st.HeadRef(); ok {
		return repo.SetSymbolicHead(refname)
	}
	if id, ok := st.HeadCommit(); ok {
		return repo.SetHead(id)
	}
	// snapshot carries no HEAD; leave the local one alone
	return nil
}

func refNames(refs map[string]string) []string {
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

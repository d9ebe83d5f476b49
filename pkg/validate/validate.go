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

// Package validate checks a realized local repository against the
// declarative snapshot it was reconciled from. The check is advisory:
// it never fails the operation it follows, callers log the warnings and
// proceed.
package validate

import (
	"fmt"
	"sort"

	"github.com/gitmesh/gitmesh/pkg/event"
	"github.com/gitmesh/gitmesh/pkg/git"
)

// Report is the advisory outcome of a consistency check.
type Report struct {
	Valid    bool
	Warnings []string
}

// Check verifies each expected ref exists locally and points at the
// expected object id, and that the expected HEAD commit is readable.
// One ref's failure never masks another's correctness: every mismatch
// gets its own warning.
func Check(repo git.Repository, st *event.State) Report {
	report := Report{Valid: true}
	if st == nil {
		return report
	}

	names := make([]string, 0, len(st.Refs))
	for name := range st.Refs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		expected := st.Refs[name]
		actual, err := repo.ResolveRef(name)
		switch {
		case err != nil:
			report.warn("ref %q missing locally (expected %s)", name, expected)
		case actual != expected:
			report.warn("ref %q is %s, expected %s", name, actual, expected)
		}
	}

	if headCommit, ok := st.HeadCommit(); ok && !repo.HasCommit(headCommit) {
		report.warn("expected HEAD commit %s is not readable locally", headCommit)
	}
	return report
}

func (r *Report) warn(format string, args ...interface{}) {
	r.Valid = false
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

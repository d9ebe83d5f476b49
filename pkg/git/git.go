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

// Package git is the contract between the reconciliation core and the
// local git engine. The core needs ref advertisement without object
// transfer (for mirror probing), clone/fetch/push against arbitrary
// http(s) URLs under a context, ref and HEAD read/write, an ancestry
// query, remote URL get/set, and a commit existence check.
package git

import "context"

// RemoteRefs is a mirror's ref advertisement.
type RemoteRefs struct {
	// Refs maps full ref names to object ids.
	Refs map[string]string

	// HeadTarget is the ref name the remote's symbolic HEAD points at,
	// when the remote advertises one.
	HeadTarget string
}

// Contains reports whether any advertised ref points at the object id.
func (r *RemoteRefs) Contains(objectID string) bool {
	for _, id := range r.Refs {
		if id == objectID {
			return true
		}
	}
	return false
}

type CloneOptions struct {
	URL  string
	Path string

	// Depth limits history when > 0 (shallow clone).
	Depth int

	// NoCheckout skips populating the worktree; refs and HEAD are
	// written by the reconciler afterwards.
	NoCheckout bool
}

type FetchOptions struct {
	// URL transfers from this endpoint directly, bypassing the
	// configured remote.
	URL string

	// Depth limits history when > 0. Unshallow lifts an earlier shallow
	// limit instead.
	Depth     int
	Unshallow bool
}

type PushOptions struct {
	URL      string
	RefSpecs []string
	Force    bool
}

// Engine creates and opens local repositories.
type Engine interface {
	// ListRemoteRefs asks a remote for its ref advertisement only; no
	// objects are transferred.
	ListRemoteRefs(ctx context.Context, url string) (*RemoteRefs, error)

	Clone(ctx context.Context, opts CloneOptions) (Repository, error)

	Open(path string) (Repository, error)
}

// Repository is the local repository handle an operation exclusively
// owns. Concurrent operations against the same path must be serialized
// by the caller.
type Repository interface {
	Path() string

	Fetch(ctx context.Context, opts FetchOptions) error
	Push(ctx context.Context, opts PushOptions) error

	// HasCommit reports whether the commit object exists locally.
	HasCommit(id string) bool

	// ListRefs returns all local heads and tags with the object ids they
	// point at.
	ListRefs() (map[string]string, error)

	// ResolveRef resolves a full ref name to an object id.
	ResolveRef(name string) (string, error)

	// SetRef writes (or overwrites) a local ref.
	SetRef(name, id string) error

	// Head returns HEAD's target: a ref name with symbolic=true, or an
	// object id with symbolic=false.
	Head() (target string, symbolic bool, err error)

	SetSymbolicHead(refname string) error
	SetHead(id string) error

	// IsAncestor reports whether ancestor is reachable from descendant.
	IsAncestor(ancestor, descendant string) (bool, error)

	RemoteURL(name string) (string, error)
	SetRemoteURL(name, url string) error

	// Checkout makes the worktree match the named branch.
	Checkout(branch string, force bool) error
}

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

// Package errors defines the error handling used by the gitmesh codebase.
package errors

import (
	"fmt"
	"strings"
)

// Error is an implementation of the error interface used in the gitmesh
// codebase.
// It is based on the design in https://commandcenter.blogspot.com/2017/12/error-handling-in-upspin.html
type Error struct {
	// Repo is the repository locator or mirror URL involved in the
	// operation, if any.
	Repo Repo

	// Op is the operation being performed, for ex. locator.Parse, mirror.Clone
	Op Op

	// Kind refers to the class of error
	Kind Kind

	// Err refers to the wrapped error (if any)
	Err error
}

func (e *Error) Error() string {
	b := new(strings.Builder)

	if e.Op != "" {
		pad(b, ": ")
		b.WriteString(string(e.Op))
	}

	if e.Repo != "" {
		pad(b, ": ")
		b.WriteString("repo ")
		b.WriteString(string(e.Repo))
	}

	if e.Kind != 0 {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}

	if e.Err != nil {
		if wrappedErr, ok := e.Err.(*Error); ok {
			if !wrappedErr.Zero() {
				pad(b, ":\n\t")
				b.WriteString(wrappedErr.Error())
			}
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

// pad appends given str to the string buffer.
func pad(b *strings.Builder, str string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(str)
}

func (e *Error) Zero() bool {
	return e.Op == "" && e.Repo == "" && e.Kind == 0 && e.Err == nil
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Op describes the operation being performed.
type Op string

// Repo describes the repository locator or mirror URL an operation is
// being performed against.
type Repo string

// Kind describes the class of errors encountered.
type Kind int

const (
	Other              Kind = iota // Unclassified. Will not be printed.
	InvalidLocator                 // Locator string could not be parsed.
	NameLookupFailed               // name@domain alias lookup failed or timed out.
	RepositoryNotFound             // No announcement event found on any relay.
	NoMirrorsAvailable             // Announcement declares no usable mirrors.
	AllMirrorsFailed               // Every mirror probe/transfer attempt failed.
	NonFastForward                 // Client-side ancestry check rejected the push.
	PublishFailed                  // Every relay publish attempt failed.
	Git                            // Errors from the git engine.
	IO                             // Filesystem errors.
	Internal                       // Internal error.
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case InvalidLocator:
		return "invalid repository locator"
	case NameLookupFailed:
		return "name lookup failed"
	case RepositoryNotFound:
		return "repository not found on any relay"
	case NoMirrorsAvailable:
		return "no mirrors available"
	case AllMirrorsFailed:
		return "all mirrors failed"
	case NonFastForward:
		return "non-fast-forward"
	case PublishFailed:
		return "publish failed"
	case Git:
		return "git error"
	case IO:
		return "io error"
	case Internal:
		return "internal error"
	}
	return "unknown kind"
}

func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("errors.E must have at least one argument")
	}

	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Repo:
			e.Repo = a
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case *Error:
			cp := *a
			e.Err = &cp
		case error:
			e.Err = a
		case string:
			e.Err = fmt.Errorf("%s", a)
		default:
			panic(fmt.Errorf("unknown type %T for value %v in call to errors.E", a, a))
		}
	}

	wrappedErr, ok := e.Err.(*Error)
	if !ok {
		return e
	}

	if e.Repo == wrappedErr.Repo {
		wrappedErr.Repo = ""
	}

	if e.Op == wrappedErr.Op {
		wrappedErr.Op = ""
	}

	if e.Kind == wrappedErr.Kind {
		wrappedErr.Kind = 0
	}

	return e
}

// IsKind reports whether any error in err's chain is an *Error with the
// given kind.
func IsKind(err error, kind Kind) bool {
	for {
		e, ok := err.(*Error)
		if !ok {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
		if err == nil {
			return false
		}
	}
}

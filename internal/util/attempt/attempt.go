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

// Package attempt implements the candidate-list pattern shared by relay
// querying, mirror probing, and mirror pushing: try each candidate under
// its own timeout, stop at the first success, and keep every failure for
// attribution.
package attempt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// First tries candidates in order. try runs under a child context bounded
// by timeout (a zero timeout means no per-candidate bound). The first
// success wins; the winning candidate is returned alongside the result.
// When every candidate fails, First returns the accumulated multierror.
// The parent context aborts the whole sequence.
func First[C any, T any](ctx context.Context, candidates []C, timeout time.Duration, try func(context.Context, C) (T, error)) (T, C, error) {
	var (
		zero     T
		zeroCand C
		errs     *multierror.Error
	)

	if len(candidates) == 0 {
		return zero, zeroCand, fmt.Errorf("no candidates to try")
	}

	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return zero, zeroCand, err
		}

		result, err := tryOne(ctx, cand, timeout, try)
		if err == nil {
			return result, cand, nil
		}
		errs = multierror.Append(errs, err)
	}
	return zero, zeroCand, errs.ErrorOrNil()
}

func tryOne[C any, T any](ctx context.Context, cand C, timeout time.Duration, try func(context.Context, C) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return try(ctx, cand)
}

// Outcome records one candidate's result from Broadcast.
type Outcome[C any] struct {
	Candidate C
	Err       error
}

// Broadcast runs try against every candidate in parallel, each under its
// own timeout. It never short-circuits; all outcomes are returned so the
// caller can decide what partial failure means. Used where candidates are
// independent and partial failure is expected (relay publish, mirror push
// fan-out).
func Broadcast[C any](ctx context.Context, candidates []C, timeout time.Duration, try func(context.Context, C) error) []Outcome[C] {
	outcomes := make([]Outcome[C], len(candidates))

	var wg sync.WaitGroup
	for i, cand := range candidates {
		wg.Add(1)
		go func(i int, cand C) {
			defer wg.Done()
			_, err := tryOne(ctx, cand, timeout, func(ctx context.Context, c C) (struct{}, error) {
				return struct{}{}, try(ctx, c)
			})
			outcomes[i] = Outcome[C]{Candidate: cand, Err: err}
		}(i, cand)
	}
	wg.Wait()
	return outcomes
}

// Failed filters outcomes down to the failures, folded into a multierror
// for reporting.
func Failed[C any](outcomes []Outcome[C]) error {
	var errs *multierror.Error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%v: %w", o.Candidate, o.Err))
		}
	}
	return errs.ErrorOrNil()
}

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

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gitmesh/gitmesh/pkg/git"
	"github.com/gitmesh/gitmesh/pkg/locator"
	"github.com/gitmesh/gitmesh/pkg/mirror"
	"github.com/gitmesh/gitmesh/pkg/push"
	"github.com/gitmesh/gitmesh/pkg/relay"
)

// NewPushCommand returns `gitmesh push`.
func NewPushCommand(ctx context.Context) *cobra.Command {
	r := &pushRunner{ctx: ctx}
	cmd := &cobra.Command{
		Use:   "push [DIRECTORY]",
		Short: "Publish the local state and push objects to the mirrors",
		Long: `Push checks the pushed ref fast-forwards the last declared state, publishes
a new state event over the full local ref snapshot, and pushes objects to
every declared mirror independently. The push succeeds when at least one
mirror accepts the objects; relay publish failures are warnings.`,
		Args: cobra.MaximumNArgs(1),
		RunE: r.runE,
	}
	cmd.Flags().StringVar(&r.ref, "ref", "",
		"full name of the ref to push (defaults to the current branch)")
	cmd.Flags().BoolVar(&r.force, "force", false,
		"skip the fast-forward safety check")
	return cmd
}

type pushRunner struct {
	ctx   context.Context
	ref   string
	force bool
}

func (r *pushRunner) runE(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	signingKey, err := cfg.SigningKey()
	if err != nil {
		return err
	}

	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	repo, err := git.NewEngine().Open(dir)
	if err != nil {
		return err
	}

	originURL, err := repo.RemoteURL(mirror.RemoteName)
	if err != nil {
		return err
	}
	loc, err := locator.Parse(r.ctx, originURL, locator.Options{
		NameLookupTimeout: cfg.NameLookupTimeout,
	})
	if err != nil {
		return fmt.Errorf("remote %q is not a %s:// locator: %w", mirror.RemoteName, locator.Scheme, err)
	}

	ref := r.ref
	if ref == "" {
		target, symbolic, err := repo.Head()
		if err != nil || !symbolic {
			return fmt.Errorf("cannot determine the current branch; use --ref")
		}
		ref = target
	}
	if !strings.HasPrefix(ref, "refs/") {
		ref = "refs/heads/" + ref
	}

	coordinator := push.NewCoordinator(relay.NewClient(cfg), signingKey, cfg)
	result, err := coordinator.Push(r.ctx, push.Request{
		Repo:    repo,
		Locator: loc,
		Ref:     ref,
		Force:   r.force,
	})
	if result != nil {
		printWarnings(cmd, result.Warnings)
	}
	if err != nil {
		return err
	}

	if result.UpToDate {
		fmt.Fprintln(cmd.OutOrStdout(), "Everything up to date")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pushed %s to %d mirror(s)\n", ref, len(result.Mirrors))
	return nil
}

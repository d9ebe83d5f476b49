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
	"path"

	"github.com/spf13/cobra"

	"github.com/gitmesh/gitmesh/pkg/git"
	"github.com/gitmesh/gitmesh/pkg/locator"
	"github.com/gitmesh/gitmesh/pkg/mirror"
	"github.com/gitmesh/gitmesh/pkg/reconcile"
	"github.com/gitmesh/gitmesh/pkg/relay"
	"github.com/gitmesh/gitmesh/pkg/validate"
)

// NewCloneCommand returns `gitmesh clone`.
func NewCloneCommand(ctx context.Context) *cobra.Command {
	r := &cloneRunner{ctx: ctx}
	cmd := &cobra.Command{
		Use:   "clone LOCATOR [DIRECTORY]",
		Short: "Clone a repository discovered through the event network",
		Long: `Clone resolves the locator, fetches the repository's announcement and
state events from the relays, transfers objects from the best mirror, and
reconciles the local refs with the declared state.`,
		Example: `  gitmesh clone nostr://npub1abc.../my-project
  gitmesh clone nostr://alice@example.com/my-project ./my-project`,
		Args: cobra.RangeArgs(1, 2),
		RunE: r.runE,
	}
	cmd.Flags().IntVar(&r.depth, "depth", 0,
		"create a shallow clone truncated to the given number of commits")
	return cmd
}

type cloneRunner struct {
	ctx   context.Context
	depth int
}

func (r *cloneRunner) runE(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	loc, err := locator.Parse(r.ctx, args[0], locator.Options{
		NameLookupTimeout: cfg.NameLookupTimeout,
	})
	if err != nil {
		return err
	}

	dir := path.Base(loc.Identifier)
	if len(args) == 2 {
		dir = args[1]
	}

	client := relay.NewClient(cfg)
	events, err := client.FetchRepoEvents(r.ctx, loc)
	if err != nil {
		return err
	}
	printWarnings(cmd, events.Warnings)

	orchestrator := mirror.NewOrchestrator(git.NewEngine(), cfg)
	cloned, err := orchestrator.Clone(r.ctx, mirror.CloneRequest{
		Locator:      loc,
		Announcement: events.Announcement,
		State:        events.State,
		Path:         dir,
		Depth:        r.depth,
	})
	if err != nil {
		return err
	}
	printWarnings(cmd, cloned.Warnings)

	if events.State != nil {
		reconciled, err := reconcile.Reconcile(r.ctx, cloned.Repo, events.State,
			func(ctx context.Context) error {
				_, err := orchestrator.FetchInto(ctx, cloned.Repo, events.Announcement, events.State, true)
				return err
			})
		if err != nil {
			return err
		}
		printWarnings(cmd, reconciled.Warnings)
		printWarnings(cmd, validate.Check(cloned.Repo, events.State).Warnings)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cloned %q from %s into %s\n",
		loc.Identifier, cloned.Mirror, dir)
	return nil
}

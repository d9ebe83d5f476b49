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

	"github.com/spf13/cobra"

	"github.com/gitmesh/gitmesh/pkg/git"
	"github.com/gitmesh/gitmesh/pkg/locator"
	"github.com/gitmesh/gitmesh/pkg/mirror"
	"github.com/gitmesh/gitmesh/pkg/reconcile"
	"github.com/gitmesh/gitmesh/pkg/relay"
	"github.com/gitmesh/gitmesh/pkg/validate"
)

// NewSyncCommand returns `gitmesh sync`.
func NewSyncCommand(ctx context.Context) *cobra.Command {
	r := &syncRunner{ctx: ctx}
	return &cobra.Command{
		Use:   "sync [DIRECTORY]",
		Short: "Fetch the latest declared state and objects into a local repository",
		Long: `Sync re-resolves the repository's locator from its origin remote, fetches
fresh announcement and state events, transfers missing objects from the
mirrors, and reconciles the local refs and HEAD with the declared state.`,
		Args: cobra.MaximumNArgs(1),
		RunE: r.runE,
	}
}

type syncRunner struct {
	ctx context.Context
}

func (r *syncRunner) runE(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	engine := git.NewEngine()
	repo, err := engine.Open(dir)
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

	client := relay.NewClient(cfg)
	events, err := client.FetchRepoEvents(r.ctx, loc)
	if err != nil {
		return err
	}
	printWarnings(cmd, events.Warnings)

	orchestrator := mirror.NewOrchestrator(engine, cfg)
	used, err := orchestrator.FetchInto(r.ctx, repo, events.Announcement, events.State, false)
	if err != nil {
		return err
	}

	if events.State != nil {
		reconciled, err := reconcile.Reconcile(r.ctx, repo, events.State,
			func(ctx context.Context) error {
				_, err := orchestrator.FetchInto(ctx, repo, events.Announcement, events.State, true)
				return err
			})
		if err != nil {
			return err
		}
		printWarnings(cmd, reconciled.Warnings)
		printWarnings(cmd, validate.Check(repo, events.State).Warnings)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Synchronized %q from %s\n", loc.Identifier, used)
	return nil
}

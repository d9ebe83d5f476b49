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

	"github.com/gitmesh/gitmesh/internal/errors"
	"github.com/gitmesh/gitmesh/pkg/event"
	"github.com/gitmesh/gitmesh/pkg/relay"
)

// NewAnnounceCommand returns `gitmesh announce`.
func NewAnnounceCommand(ctx context.Context) *cobra.Command {
	r := &announceRunner{ctx: ctx}
	cmd := &cobra.Command{
		Use:   "announce IDENTIFIER",
		Short: "Publish or update a repository announcement",
		Long: `Announce publishes the replaceable announcement event that declares the
repository's mirrors and metadata under your key. Running it again with
the same identifier replaces the previous announcement.`,
		Example: `  gitmesh announce my-project \
    --mirror https://github.com/alice/my-project.git \
    --mirror https://codeberg.org/alice/my-project.git`,
		Args: cobra.ExactArgs(1),
		RunE: r.runE,
	}
	cmd.Flags().StringVar(&r.name, "name", "", "human-readable repository name")
	cmd.Flags().StringVar(&r.description, "description", "", "short repository description")
	cmd.Flags().StringArrayVar(&r.web, "web", nil, "browsable web URL (repeatable)")
	cmd.Flags().StringArrayVar(&r.mirrors, "mirror", nil, "http(s) clone URL (repeatable, at least one)")
	cmd.Flags().StringArrayVar(&r.relays, "relay", nil, "relay to publish events for this repository to (repeatable)")
	return cmd
}

type announceRunner struct {
	ctx         context.Context
	name        string
	description string
	web         []string
	mirrors     []string
	relays      []string
}

func (r *announceRunner) runE(cmd *cobra.Command, args []string) error {
	const op errors.Op = "commands.announce"

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	signingKey, err := cfg.SigningKey()
	if err != nil {
		return err
	}
	if len(r.mirrors) == 0 {
		return fmt.Errorf("at least one --mirror is required")
	}

	ev := event.NewAnnouncementEvent(&event.Announcement{
		Identifier:  args[0],
		Name:        r.name,
		Description: r.description,
		Web:         r.web,
		Mirrors:     r.mirrors,
		Relays:      r.relays,
	})
	if err := ev.Sign(signingKey); err != nil {
		return errors.E(op, errors.PublishFailed, err)
	}

	result := relay.NewClient(cfg).Publish(r.ctx, ev, r.relays)
	if result.AllFailed() {
		// announcing has no other side effect, so a total publish
		// failure fails the command
		return errors.E(op, errors.PublishFailed, errors.Repo(args[0]), result.Failed)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Announced %q to %d relay(s)\n", args[0], len(result.Succeeded))
	return nil
}

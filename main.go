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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitmesh/gitmesh/commands"
)

func main() {
	cmd := &cobra.Command{
		Use:   "gitmesh",
		Short: "Decentralized git hosting over the event network",
		Long: `gitmesh clones, syncs, and pushes git repositories whose metadata lives
as signed events on relays and whose objects live on ordinary http(s)
git mirrors. No single host is trusted: state comes from the owner's
signed events, and any declared mirror can serve the objects.`,
		Example: `  # clone a repository by its owner's key
  gitmesh clone nostr://npub1.../my-project

  # bring a clone up to date with the owner's declared state
  gitmesh sync

  # publish new state and push objects to every mirror
  gitmesh push --ref refs/heads/main`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(commands.GetGitmeshCommands(context.Background())...)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

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

	"github.com/gitmesh/gitmesh/pkg/locator"
)

// NewResolveCommand returns `gitmesh resolve`.
func NewResolveCommand(ctx context.Context) *cobra.Command {
	r := &resolveRunner{ctx: ctx}
	return &cobra.Command{
		Use:   "resolve LOCATOR",
		Short: "Parse a locator and print its resolved fields",
		Long: `Resolve parses a locator, performing the name@domain lookup when the
locator uses the alias form, and prints the owner key, identifier, and
preferred relay it resolves to.`,
		Args: cobra.ExactArgs(1),
		RunE: r.runE,
	}
}

type resolveRunner struct {
	ctx context.Context
}

func (r *resolveRunner) runE(cmd *cobra.Command, args []string) error {
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

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "owner:      %s\n", loc.OwnerKey)
	fmt.Fprintf(out, "identifier: %s\n", loc.Identifier)
	if loc.PreferredRelay != "" {
		fmt.Fprintf(out, "relay:      %s\n", loc.PreferredRelay)
	}
	return nil
}

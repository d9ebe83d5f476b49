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

// Package commands assembles the gitmesh command set.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitmesh/gitmesh/internal/config"
	"github.com/gitmesh/gitmesh/pkg/logging"
)

// GetGitmeshCommands returns the commands registered on the gitmesh root.
func GetGitmeshCommands(ctx context.Context) []*cobra.Command {
	return []*cobra.Command{
		NewCloneCommand(ctx),
		NewSyncCommand(ctx),
		NewPushCommand(ctx),
		NewAnnounceCommand(ctx),
		NewResolveCommand(ctx),
	}
}

// loadConfig loads the user configuration and applies the log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// printWarnings writes partial-failure warnings to the command's error
// stream; warnings never change the exit status.
func printWarnings(cmd *cobra.Command, warnings []string) {
	for _, w := range warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
}

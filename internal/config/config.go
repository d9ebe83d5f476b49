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

// Package config loads gitmesh configuration: the default relay set, the
// network timeouts used by the relay client and the mirror orchestrator,
// and the signing key used when publishing events. Values come from
// ~/.gitmesh/config.yaml with GITMESH_* environment overrides; every knob
// has a default so a missing config file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/spf13/viper"
)

const (
	configDirName  = ".gitmesh"
	configFileName = "config.yaml"
	envPrefix      = "GITMESH"
)

// DefaultRelays is the fallback relay group queried when a locator does
// not name a preferred relay, or when the preferred relay returns nothing.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.nostr.band",
}

type Config struct {
	// Relays is the default relay group: the fallback set for queries
	// and part of the publish union.
	Relays []string `mapstructure:"relays"`

	// SecretKey signs state and announcement events on push. Accepts hex
	// or nsec bech32.
	SecretKey string `mapstructure:"secret_key"`

	LogLevel string `mapstructure:"log_level"`

	// Timeouts for the individually cancellable network calls.
	PreferredRelayTimeout time.Duration `mapstructure:"preferred_relay_timeout"`
	FallbackRelayTimeout  time.Duration `mapstructure:"fallback_relay_timeout"`
	PublishTimeout        time.Duration `mapstructure:"publish_timeout"`
	ProbeTimeout          time.Duration `mapstructure:"probe_timeout"`
	CloneTimeout          time.Duration `mapstructure:"clone_timeout"`
	PushTimeout           time.Duration `mapstructure:"push_timeout"`
	NameLookupTimeout     time.Duration `mapstructure:"name_lookup_timeout"`
}

// Default returns the built-in configuration without touching the
// filesystem. Tests use this as a deterministic base.
func Default() *Config {
	return &Config{
		Relays:                append([]string(nil), DefaultRelays...),
		LogLevel:              "warn",
		PreferredRelayTimeout: 1 * time.Second,
		FallbackRelayTimeout:  5 * time.Second,
		PublishTimeout:        5 * time.Second,
		ProbeTimeout:          10 * time.Second,
		CloneTimeout:          30 * time.Second,
		PushTimeout:           30 * time.Second,
		NameLookupTimeout:     3 * time.Second,
	}
}

// Load reads the user configuration, falling back to defaults for any
// value not set in the file or environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	home, err := homedir.Dir()
	if err == nil {
		v.SetConfigFile(filepath.Join(home, configDirName, configFileName))
		if err := v.ReadInConfig(); err != nil {
			// a missing config file is fine; a broken one is not
			if _, statErr := os.Stat(v.ConfigFileUsed()); statErr == nil {
				return nil, fmt.Errorf("reading config %s: %w", v.ConfigFileUsed(), err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("relays", d.Relays)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("preferred_relay_timeout", d.PreferredRelayTimeout)
	v.SetDefault("fallback_relay_timeout", d.FallbackRelayTimeout)
	v.SetDefault("publish_timeout", d.PublishTimeout)
	v.SetDefault("probe_timeout", d.ProbeTimeout)
	v.SetDefault("clone_timeout", d.CloneTimeout)
	v.SetDefault("push_timeout", d.PushTimeout)
	v.SetDefault("name_lookup_timeout", d.NameLookupTimeout)
}

// SigningKey returns the configured secret key as plain hex, decoding an
// nsec value if that is what the user configured.
func (c *Config) SigningKey() (string, error) {
	key := strings.TrimSpace(c.SecretKey)
	if key == "" {
		return "", fmt.Errorf("no secret key configured; set secret_key in the config file or %s_SECRET_KEY", envPrefix)
	}
	if strings.HasPrefix(key, "nsec1") {
		prefix, value, err := nip19.Decode(key)
		if err != nil || prefix != "nsec" {
			return "", fmt.Errorf("invalid nsec secret key")
		}
		return value.(string), nil
	}
	return key, nil
}

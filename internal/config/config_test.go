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

package config

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultRelays, cfg.Relays)
	assert.NotZero(t, cfg.PreferredRelayTimeout)
	assert.NotZero(t, cfg.FallbackRelayTimeout)
	assert.NotZero(t, cfg.ProbeTimeout)
	assert.NotZero(t, cfg.CloneTimeout)
	assert.NotZero(t, cfg.PushTimeout)
	// the preferred relay gets a tighter budget than the fallback group
	assert.Less(t, cfg.PreferredRelayTimeout, cfg.FallbackRelayTimeout)
}

func TestSigningKeyHex(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	cfg := &Config{SecretKey: sk}

	got, err := cfg.SigningKey()
	require.NoError(t, err)
	assert.Equal(t, sk, got)
}

func TestSigningKeyNsec(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	nsec, err := nip19.EncodePrivateKey(sk)
	require.NoError(t, err)

	cfg := &Config{SecretKey: "  " + nsec + "\n"}
	got, err := cfg.SigningKey()
	require.NoError(t, err)
	assert.Equal(t, sk, got)
}

func TestSigningKeyErrors(t *testing.T) {
	_, err := (&Config{}).SigningKey()
	require.Error(t, err)

	_, err = (&Config{SecretKey: "nsec1notakey"}).SigningKey()
	require.Error(t, err)
}

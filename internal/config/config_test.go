// Copyright 2024 The gridloop Authors
// This file is part of the gridloop library.
//
// The gridloop library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The gridloop library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the gridloop library. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gridloop/miner/protocol"
	"github.com/gridloop/miner/session"
)

func TestDefaultHasDocumentedValues(t *testing.T) {
	cfg := Default()
	if cfg.RPC.Endpoint != "http://127.0.0.1:8899" {
		t.Errorf("RPC.Endpoint = %q, want the local validator default", cfg.RPC.Endpoint)
	}
	if cfg.KeystoreDir != "./keystore" {
		t.Errorf("KeystoreDir = %q, want ./keystore", cfg.KeystoreDir)
	}
	if len(cfg.Wallets) != 0 {
		t.Errorf("Wallets = %v, want none configured by default", cfg.Wallets)
	}
	if cfg.Driver.WEndSlots != 10 {
		t.Errorf("Driver.WEndSlots = %d, want 10", cfg.Driver.WEndSlots)
	}
}

func TestLoadDecodesTOMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gridloop.toml")
	body := `
[RPC]
Endpoint = "http://example.invalid:8899"

[[Wallets]]
Wallet = "11111111111111111111111111111111"
Strategy = "AGGRESSIVE"
PerSquareAmount = 2000000
MaxTip = 500000
NumSquares = 3
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := Default()
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPC.Endpoint != "http://example.invalid:8899" {
		t.Errorf("RPC.Endpoint = %q, want the file's override", cfg.RPC.Endpoint)
	}
	if len(cfg.Wallets) != 1 || cfg.Wallets[0].NumSquares != 3 {
		t.Fatalf("Wallets = %+v, want one entry with NumSquares=3", cfg.Wallets)
	}
	// A field the file didn't mention must keep the default.
	if cfg.KeystoreDir != "./keystore" {
		t.Errorf("KeystoreDir = %q, want the untouched default", cfg.KeystoreDir)
	}
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	cfg := Default()
	if err := Load(filepath.Join(t.TempDir(), "missing.toml"), &cfg); err == nil {
		t.Fatalf("expected an error loading a nonexistent config file")
	}
}

func TestSessionConfigsParsesWalletAndStrategy(t *testing.T) {
	var pk protocol.PublicKey
	pk[0] = 7
	cfg := Config{
		Wallets: []WalletConfig{
			{Wallet: pk.String(), Strategy: "CONSERVATIVE", PerSquareAmount: 1_000_000, MaxTip: 100_000, NumSquares: 2},
		},
	}

	sessions, err := cfg.SessionConfigs()
	if err != nil {
		t.Fatalf("SessionConfigs: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	got := sessions[0]
	if got.Wallet != pk {
		t.Errorf("Wallet = %v, want %v", got.Wallet, pk)
	}
	if got.Strategy != protocol.Conservative {
		t.Errorf("Strategy = %v, want Conservative", got.Strategy)
	}
	if got.NumSquares != 2 {
		t.Errorf("NumSquares = %d, want 2", got.NumSquares)
	}
}

func TestSessionConfigsDefaultsUnknownStrategyToBestEV(t *testing.T) {
	var pk protocol.PublicKey
	pk[0] = 1
	cfg := Config{Wallets: []WalletConfig{{Wallet: pk.String(), Strategy: "not-a-real-strategy"}}}

	sessions, err := cfg.SessionConfigs()
	if err != nil {
		t.Fatalf("SessionConfigs: %v", err)
	}
	if sessions[0].Strategy != protocol.BestEV {
		t.Errorf("Strategy = %v, want BestEV for an unrecognized name", sessions[0].Strategy)
	}
}

func TestSessionConfigsRejectsUnparsableWallet(t *testing.T) {
	cfg := Config{Wallets: []WalletConfig{{Wallet: "not-base58!!"}}}
	if _, err := cfg.SessionConfigs(); err == nil {
		t.Fatalf("expected an error for an unparsable wallet address")
	}
}

func TestDriverConfigKeepsDefaultsForZeroFields(t *testing.T) {
	cfg := Config{Driver: DriverConfig{RecommendedTip: 2_000_000}}

	got := cfg.DriverConfig()
	want := session.DefaultDriverConfig()

	if got.RecommendedTip != 2_000_000 {
		t.Errorf("RecommendedTip = %d, want the overridden 2000000", got.RecommendedTip)
	}
	if got.WEnd != want.WEnd {
		t.Errorf("WEnd = %d, want the default %d for an untouched field", got.WEnd, want.WEnd)
	}
	if got.TipFloor != want.TipFloor {
		t.Errorf("TipFloor = %d, want the default %d for an untouched field", got.TipFloor, want.TipFloor)
	}
}

func TestDriverConfigOverridesAllProvidedFields(t *testing.T) {
	cfg := Config{Driver: DriverConfig{
		WEndSlots:        20,
		ComputeUnitLimit: 700_000,
		ComputeUnitPrice: 200_000,
		RecommendedTip:   3_000_000,
		TipFloor:         900_000,
	}}

	got := cfg.DriverConfig()
	if got.WEnd != 20 || got.ComputeUnitLimit != 700_000 || got.ComputeUnitPrice != 200_000 ||
		got.RecommendedTip != 3_000_000 || got.TipFloor != 900_000 {
		t.Errorf("DriverConfig() = %+v, want every field overridden", got)
	}
}

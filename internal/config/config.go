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

// Package config loads the two-layer configuration (an optional TOML
// file, overlaid by CLI flags) that seeds a run of the miner.
package config

import (
	"os"

	"github.com/naoina/toml"

	"github.com/gridloop/miner/protocol"
	"github.com/gridloop/miner/session"
)

// Config is the top-level, on-disk configuration shape.
type Config struct {
	RPC       RPCConfig
	Bundle    BundleConfig
	Driver    DriverConfig
	Wallets   []WalletConfig
	KeystoreDir string
}

// RPCConfig names the chain RPC and optional websocket slot-stream
// endpoints.
type RPCConfig struct {
	Endpoint   string
	WSEndpoint string
}

// BundleConfig names the priority bundle endpoint.
type BundleConfig struct {
	Endpoint string
}

// DriverConfig mirrors session.DriverConfig's tunables in their TOML
// spelling; zero fields fall back to session.DefaultDriverConfig.
type DriverConfig struct {
	WEndSlots        uint64
	ComputeUnitLimit uint32
	ComputeUnitPrice uint64
	RecommendedTip   uint64
	TipFloor         uint64
}

// WalletConfig is one configured session to start at launch.
type WalletConfig struct {
	Wallet          string
	Strategy        string
	PerSquareAmount uint64
	MaxTip          uint64
	NumSquares      int
	Budget          *uint64
}

// Default returns a Config with the chain's documented defaults and no
// configured wallets.
func Default() Config {
	return Config{
		RPC:    RPCConfig{Endpoint: "http://127.0.0.1:8899"},
		Bundle: BundleConfig{Endpoint: "http://127.0.0.1:8899"},
		Driver: DriverConfig{
			WEndSlots:        10,
			ComputeUnitLimit: 500_000,
			ComputeUnitPrice: 100_000,
			RecommendedTip:   1_000_000,
			TipFloor:         500_000,
		},
		KeystoreDir: "./keystore",
	}
}

// Load reads and parses a TOML config file at path into cfg. Callers
// start from Default and decode the file over it, so a field the file
// omits keeps its default value.
func Load(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewDecoder(f).Decode(cfg)
}

// SessionConfigs converts the configured wallets into protocol session
// configs, resolving each wallet's base58 address and strategy name.
func (c *Config) SessionConfigs() ([]protocol.SessionConfig, error) {
	out := make([]protocol.SessionConfig, 0, len(c.Wallets))
	for _, w := range c.Wallets {
		wallet, err := protocol.ParsePublicKey(w.Wallet)
		if err != nil {
			return nil, err
		}
		strategy, ok := protocol.ParseStrategy(w.Strategy)
		if !ok {
			strategy = protocol.BestEV
		}
		out = append(out, protocol.SessionConfig{
			SessionID:       w.Wallet,
			Wallet:          wallet,
			Strategy:        strategy,
			PerSquareAmount: w.PerSquareAmount,
			MaxTip:          w.MaxTip,
			NumSquares:      w.NumSquares,
			Budget:          w.Budget,
		})
	}
	return out, nil
}

// DriverConfig converts the TOML driver tunables into a
// session.DriverConfig, starting from the documented defaults for any
// field the file left at its zero value.
func (c *Config) DriverConfig() session.DriverConfig {
	d := session.DefaultDriverConfig()
	if c.Driver.WEndSlots != 0 {
		d.WEnd = c.Driver.WEndSlots
	}
	if c.Driver.ComputeUnitLimit != 0 {
		d.ComputeUnitLimit = c.Driver.ComputeUnitLimit
	}
	if c.Driver.ComputeUnitPrice != 0 {
		d.ComputeUnitPrice = c.Driver.ComputeUnitPrice
	}
	if c.Driver.RecommendedTip != 0 {
		d.RecommendedTip = c.Driver.RecommendedTip
	}
	if c.Driver.TipFloor != 0 {
		d.TipFloor = c.Driver.TipFloor
	}
	return d
}

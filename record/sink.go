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

// Package record defines the optional persistence hook a session driver
// calls on session and round boundaries. The driver is persistence-
// oblivious: Sink is synchronous-return, fire-and-forget, and a nil
// Sink is always valid.
package record

import (
	"github.com/gridloop/miner/eventbus"
	"github.com/gridloop/miner/protocol"
)

// Sink receives session lifecycle and per-round outcomes. Implementations
// must not block the caller for long; the driver calls these inline on
// its own loop.
type Sink interface {
	SessionStarted(cfg protocol.SessionConfig)
	RoundPlayed(roundID uint64, squares [protocol.Squares]bool, amount, tip uint64, sig protocol.Signature, status eventbus.TxStatus, reward *uint64)
	SessionEnded(wallet protocol.PublicKey, stats protocol.ActiveSessionStats)
}

// NopSink discards every call; it is the default when no sink is
// configured.
type NopSink struct{}

func (NopSink) SessionStarted(protocol.SessionConfig) {}
func (NopSink) RoundPlayed(uint64, [protocol.Squares]bool, uint64, uint64, protocol.Signature, eventbus.TxStatus, *uint64) {
}
func (NopSink) SessionEnded(protocol.PublicKey, protocol.ActiveSessionStats) {}

// LogSink forwards every call to a Logger at Info/Debug level, useful as
// a default observable sink when no durable store is configured.
type LogSink struct {
	log logger
}

type logger interface {
	Info(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
}

// NewLogSink wraps l.
func NewLogSink(l logger) *LogSink { return &LogSink{log: l} }

func (s *LogSink) SessionStarted(cfg protocol.SessionConfig) {
	s.log.Info("session started", "wallet", cfg.Wallet.String(), "strategy", cfg.Strategy.String())
}

func (s *LogSink) RoundPlayed(roundID uint64, squares [protocol.Squares]bool, amount, tip uint64, sig protocol.Signature, status eventbus.TxStatus, reward *uint64) {
	count := 0
	for _, v := range squares {
		if v {
			count++
		}
	}
	ctx := []any{"round", roundID, "squares", count, "amount", amount, "tip", tip, "status", status.String()}
	if !sig.Zero() {
		ctx = append(ctx, "sig", sig.String())
	}
	if reward != nil {
		ctx = append(ctx, "reward", *reward)
	}
	s.log.Debug("round played", ctx...)
}

func (s *LogSink) SessionEnded(wallet protocol.PublicKey, stats protocol.ActiveSessionStats) {
	s.log.Info("session ended", "wallet", wallet.String(), "rounds_played", stats.RoundsPlayed,
		"rounds_skipped", stats.RoundsSkipped, "total_deployed", stats.TotalDeployed, "total_won", stats.TotalWon)
}

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

package session

import "time"

// DriverConfig holds the tunables that govern the driver's loop, as
// opposed to protocol.SessionConfig which governs what it deploys.
// Callers normally start from DefaultDriverConfig.
type DriverConfig struct {
	// WEnd is the slots-remaining threshold that opens the decision
	// window; inclusive.
	WEnd uint64

	// Poll cadences for Phase A, chosen by distance from the window.
	FarPollMin  time.Duration
	FarPollMax  time.Duration
	ClosePoll   time.Duration
	FarSlotEdge uint64 // slots_remaining >= this uses the far cadence

	// FailureBackoffMin/Max bound the extra sleep added to a poll
	// iteration immediately after an RPC failure.
	FailureBackoffMin time.Duration
	FailureBackoffMax time.Duration

	// ReconcileConfirmTimeout bounds the initial confirmation wait for
	// a checkpoint or automate transaction.
	ReconcileConfirmTimeout time.Duration
	// ReconcilePollAttempts/Interval bound the fallback poll of
	// participant state after a reconcile confirmation times out.
	ReconcilePollAttempts int
	ReconcilePollInterval time.Duration

	// WaitNextPollInterval is how often Phase E re-reads board state
	// while waiting for the round to roll over.
	WaitNextPollInterval time.Duration

	// RecommendedTip and TipFloor are starting points for the tip the
	// driver attaches to a deploy; clamped to config.MaxTip.
	RecommendedTip uint64
	TipFloor       uint64

	ComputeUnitLimit uint32
	ComputeUnitPrice uint64
}

// DefaultDriverConfig matches the cadences and timeouts described for
// the driver's per-round protocol.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		WEnd:                    10,
		FarPollMin:              60 * time.Millisecond,
		FarPollMax:              250 * time.Millisecond,
		ClosePoll:               30 * time.Millisecond,
		FarSlotEdge:             25,
		FailureBackoffMin:       50 * time.Millisecond,
		FailureBackoffMax:       150 * time.Millisecond,
		ReconcileConfirmTimeout: 5 * time.Second,
		ReconcilePollAttempts:   5,
		ReconcilePollInterval:   400 * time.Millisecond,
		WaitNextPollInterval:    500 * time.Millisecond,
		RecommendedTip:          1_000_000,
		TipFloor:                500_000,
		ComputeUnitLimit:        500_000,
		ComputeUnitPrice:        100_000,
	}
}

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

package protocol

import "time"

// Squares is the fixed grid size of the board.
const Squares = 25

// BoardState is the composed, always-current view of the board account.
type BoardState struct {
	RoundID   uint64
	StartSlot uint64
	EndSlot   uint64
	EpochID   uint64
}

// RoundSnapshot is an immutable, per-round capture of the grid. Once
// observed by a Session Driver it is never mutated; a new round produces a
// new snapshot.
type RoundSnapshot struct {
	RoundID        uint64
	EndSlot        uint64
	SlotHash       Hash
	Deployed       [Squares]uint64
	MinerCount     [Squares]uint64
	TotalDeployed  uint64
	Motherlode     uint64
	TopMiner       PublicKey
	TopMinerReward uint64
	TotalMiners    uint64
	TotalVaulted   uint64
	TotalWinnings  uint64
}

// UniformGrid reports whether every square carries an identical deployed
// amount, the trigger for the Selection Engine's Skip rule.
func (r *RoundSnapshot) UniformGrid() bool {
	for i := 1; i < Squares; i++ {
		if r.Deployed[i] != r.Deployed[0] {
			return false
		}
	}
	return true
}

// ParticipantState is the decoded per-wallet on-chain miner record. It is
// nil (as a pointer) when the account does not yet exist.
type ParticipantState struct {
	Authority           PublicKey
	Deployed            [Squares]uint64
	Cumulative          [Squares]uint64
	CheckpointFee       uint64
	CheckpointID        uint64
	LastClaimOreAt      int64
	LastClaimSolAt      int64
	RewardsSOL          uint64
	RewardsToken        uint64
	RefinedToken        uint64
	RoundIDLast         uint64
	LifetimeRewardsSOL  uint64
	LifetimeRewardsTok  uint64
	LifetimeDeployed    uint64
}

// NeedsCheckpoint reports whether the participant must settle a prior
// round before it may deploy into currentRound.
func (p *ParticipantState) NeedsCheckpoint(currentRound uint64) bool {
	if p == nil {
		return false
	}
	if p.CheckpointID != p.RoundIDLast {
		return true
	}
	return p.RoundIDLast > 0 && p.RoundIDLast < currentRound
}

// Strategy selects which Selection Engine policy ranks the squares.
type Strategy int

const (
	BestEV Strategy = iota
	Conservative
	Aggressive
)

func (s Strategy) String() string {
	switch s {
	case BestEV:
		return "BEST_EV"
	case Conservative:
		return "CONSERVATIVE"
	case Aggressive:
		return "AGGRESSIVE"
	default:
		return "UNKNOWN"
	}
}

// ParseStrategy parses the config-file/flag spelling of a strategy name.
func ParseStrategy(s string) (Strategy, bool) {
	switch s {
	case "BEST_EV":
		return BestEV, true
	case "CONSERVATIVE":
		return Conservative, true
	case "AGGRESSIVE":
		return Aggressive, true
	default:
		return 0, false
	}
}

// SessionConfig is immutable once a session starts.
type SessionConfig struct {
	SessionID       string
	Wallet          PublicKey
	Strategy        Strategy
	PerSquareAmount uint64
	MaxTip          uint64
	NumSquares      int
	Budget          *uint64 // optional cumulative spend cap, nil means unbounded
}

// Validate enforces the invariants a session start request must satisfy
// before a driver is spawned.
func (c *SessionConfig) Validate() error {
	if c.NumSquares < 1 || c.NumSquares > Squares {
		return &ConfigInvalidError{Reason: "num_squares must be in 1..=25"}
	}
	if c.PerSquareAmount == 0 {
		return &ConfigInvalidError{Reason: "per_square_amount must be nonzero"}
	}
	if c.Wallet.Zero() {
		return &ConfigInvalidError{Reason: "wallet must be set"}
	}
	return nil
}

// Selection is the driver-scoped decision produced by the Selection Engine
// for one round.
type Selection struct {
	Deploy bool
	Skip   *SkipDecision

	Mask            [Squares]bool
	Primary         int
	ExpectedEV      float64
	PerSquareAmount uint64
	Tip             uint64
}

// SkipDecision carries the reason a round was skipped and, when available,
// the best expected value observed across the squares that were rejected.
type SkipDecision struct {
	Reason string
	BestEV float64
}

// SelectedCount returns the number of true entries in the mask.
func (s *Selection) SelectedCount() int {
	n := 0
	for _, v := range s.Mask {
		if v {
			n++
		}
	}
	return n
}

// ActiveSessionStats is the mutable, driver-owned bookkeeping for a running
// session. It is read by the supervisor only for reporting.
type ActiveSessionStats struct {
	RoundsPlayed   uint64
	RoundsSkipped  uint64
	TotalDeployed  uint64
	TotalTips      uint64
	TotalWon       uint64
	LastRoundID    uint64
	LastUpdateTime time.Time
}

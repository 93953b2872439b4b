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

package chain

import (
	"encoding/binary"

	"github.com/holiman/uint256"

	"github.com/gridloop/miner/protocol"
)

const discriminatorLen = 8

// decodeBoard parses the board account: 8-byte discriminator followed by
// round_id, start_slot, end_slot, epoch_id as little-endian u64s.
func decodeBoard(data []byte) (protocol.BoardState, error) {
	const want = discriminatorLen + 8*4
	if len(data) < want {
		return protocol.BoardState{}, &protocol.DecodeError{Account: "board", Reason: "short account data"}
	}
	b := data[discriminatorLen:]
	return protocol.BoardState{
		RoundID:   le64(b[0:8]),
		StartSlot: le64(b[8:16]),
		EndSlot:   le64(b[16:24]),
		EpochID:   le64(b[24:32]),
	}, nil
}

// decodeRound parses the per-round account: discriminator, id, [u64;25]
// deployed, [u8;32] slot_hash, [u64;25] miner_count, expires_at,
// motherlode, rent payer (32B), top miner (32B), top_miner_reward,
// total_deployed, total_miners, total_vaulted, total_winnings.
func decodeRound(data []byte) (protocol.RoundSnapshot, error) {
	const fixed = discriminatorLen + 8 + 8*protocol.Squares + 32 + 8*protocol.Squares + 8 + 8 + 32 + 32 + 8 + 8 + 8 + 8 + 8
	if len(data) < fixed {
		return protocol.RoundSnapshot{}, &protocol.DecodeError{Account: "round", Reason: "short account data"}
	}
	b := data[discriminatorLen:]
	off := 0
	r := protocol.RoundSnapshot{}

	r.RoundID = le64(b[off : off+8])
	off += 8

	for i := 0; i < protocol.Squares; i++ {
		r.Deployed[i] = le64(b[off : off+8])
		off += 8
	}

	copy(r.SlotHash[:], b[off:off+32])
	off += 32

	for i := 0; i < protocol.Squares; i++ {
		r.MinerCount[i] = le64(b[off : off+8])
		off += 8
	}

	expiresAt := le64(b[off : off+8])
	_ = expiresAt
	off += 8

	r.Motherlode = le64(b[off : off+8])
	off += 8

	off += 32 // rent payer, not surfaced to the rest of the system

	copy(r.TopMiner[:], b[off:off+32])
	off += 32

	r.TopMinerReward = le64(b[off : off+8])
	off += 8

	r.TotalDeployed = le64(b[off : off+8])
	off += 8

	r.TotalMiners = le64(b[off : off+8])
	off += 8

	r.TotalVaulted = le64(b[off : off+8])
	off += 8

	r.TotalWinnings = le64(b[off : off+8])

	if err := validateTotalDeployed(&r); err != nil {
		return protocol.RoundSnapshot{}, err
	}
	return r, nil
}

// validateTotalDeployed checks the total_deployed == Σ deployed[i]
// invariant using checked 256-bit accumulation so a corrupt or malicious
// account can never silently wrap a uint64 sum into passing the check.
func validateTotalDeployed(r *protocol.RoundSnapshot) error {
	sum := new(uint256.Int)
	term := new(uint256.Int)
	for _, v := range r.Deployed {
		sum.Add(sum, term.SetUint64(v))
	}
	if !sum.Eq(term.SetUint64(r.TotalDeployed)) {
		return &protocol.DecodeError{Account: "round", Reason: "total_deployed does not match sum of deployed squares"}
	}
	return nil
}

// decodeParticipant parses the miner (participant) account: discriminator,
// authority, [u64;25] deployed, [u64;25] cumulative, checkpoint_fee,
// checkpoint_id, two i64 timestamps, 16-byte numeric, rewards_sol,
// rewards_token, refined_token, round_id, three u64 lifetime counters.
func decodeParticipant(data []byte) (*protocol.ParticipantState, error) {
	const fixed = discriminatorLen + 32 + 8*protocol.Squares + 8*protocol.Squares + 8 + 8 + 8 + 8 + 16 + 8 + 8 + 8 + 8 + 8 + 8 + 8
	if len(data) < fixed {
		return nil, &protocol.DecodeError{Account: "participant", Reason: "short account data"}
	}
	b := data[discriminatorLen:]
	off := 0
	p := &protocol.ParticipantState{}

	copy(p.Authority[:], b[off:off+32])
	off += 32

	for i := 0; i < protocol.Squares; i++ {
		p.Deployed[i] = le64(b[off : off+8])
		off += 8
	}
	for i := 0; i < protocol.Squares; i++ {
		p.Cumulative[i] = le64(b[off : off+8])
		off += 8
	}

	p.CheckpointFee = le64(b[off : off+8])
	off += 8
	p.CheckpointID = le64(b[off : off+8])
	off += 8

	p.LastClaimOreAt = int64(le64(b[off : off+8]))
	off += 8
	p.LastClaimSolAt = int64(le64(b[off : off+8]))
	off += 8

	off += 16 // rewards_factor numeric, not surfaced

	p.RewardsSOL = le64(b[off : off+8])
	off += 8
	p.RewardsToken = le64(b[off : off+8])
	off += 8
	p.RefinedToken = le64(b[off : off+8])
	off += 8
	p.RoundIDLast = le64(b[off : off+8])
	off += 8
	p.LifetimeRewardsSOL = le64(b[off : off+8])
	off += 8
	p.LifetimeRewardsTok = le64(b[off : off+8])
	off += 8
	p.LifetimeDeployed = le64(b[off : off+8])

	return p, nil
}

func le64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

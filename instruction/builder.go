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

// Package instruction builds the program instructions the driver
// sequences: checkpoint, automate, and deploy. Every function here is
// pure and deterministic — given the same arguments, it always returns
// the same bytes. Callers are responsible for wrapping the result in a
// transaction and obtaining a signature.
package instruction

import (
	"encoding/binary"

	"github.com/gridloop/miner/chain"
	"github.com/gridloop/miner/protocol"
)

// Discriminators identify which instruction variant the program should
// dispatch to. These mirror the on-chain program's anchor-style 8-byte
// instruction tags and must never be reordered.
var (
	discCheckpoint = [8]byte{1, 0, 0, 0, 0, 0, 0, 0}
	discAutomate   = [8]byte{2, 0, 0, 0, 0, 0, 0, 0}
	discDeploy     = [8]byte{3, 0, 0, 0, 0, 0, 0, 0}
)

// AutomationStrategy selects how the on-chain automation account applies
// its deposit. DISCRETIONARY means the caller supplies the square mask
// at deploy time, the only mode this system uses.
type AutomationStrategy byte

const DISCRETIONARY AutomationStrategy = 2

// DefaultComputeUnitLimit and DefaultComputeUnitPrice are the
// compute-budget figures prefixed onto every deploy transaction.
const (
	DefaultComputeUnitLimit = uint32(500_000)
	DefaultComputeUnitPrice = uint64(100_000) // micro-units per compute unit
)

// Checkpoint settles wallet's participation in roundToSettle, advancing
// checkpoint_id to roundToSettle so the wallet is eligible to deploy into
// a new round.
func Checkpoint(wallet protocol.PublicKey, roundToSettle uint64) protocol.Instruction {
	data := make([]byte, 0, 16)
	data = append(data, discCheckpoint[:]...)
	data = appendU64(data, roundToSettle)
	return protocol.Instruction{
		ProgramID: chain.ProgramID(),
		Accounts: []protocol.AccountMeta{
			{PubKey: wallet, IsSigner: true, IsWritable: true},
			{PubKey: chain.MinerPDA(wallet), IsSigner: false, IsWritable: true},
			{PubKey: chain.TreasuryPDA(), IsSigner: false, IsWritable: true},
			{PubKey: chain.RoundPDA(roundToSettle), IsSigner: false, IsWritable: false},
			{PubKey: chain.SystemProgramID(), IsSigner: false, IsWritable: false},
		},
		Data: data,
	}
}

// Automate creates or tops up wallet's automation account with deposit
// additional base units, configured for the discretionary strategy this
// system always uses.
func Automate(wallet protocol.PublicKey, perSquareAmount, deposit uint64, executor protocol.PublicKey, fee uint64, mask uint32, strategy AutomationStrategy, reload bool) protocol.Instruction {
	data := make([]byte, 0, 40)
	data = append(data, discAutomate[:]...)
	data = appendU64(data, perSquareAmount)
	data = appendU64(data, deposit)
	data = append(data, executor[:]...)
	data = appendU64(data, fee)
	data = appendU32(data, mask)
	data = append(data, byte(strategy))
	data = append(data, boolByte(reload))
	return protocol.Instruction{
		ProgramID: chain.ProgramID(),
		Accounts: []protocol.AccountMeta{
			{PubKey: wallet, IsSigner: true, IsWritable: true},
			{PubKey: chain.AutomationPDA(wallet), IsSigner: false, IsWritable: true},
			{PubKey: chain.MinerPDA(wallet), IsSigner: false, IsWritable: true},
			{PubKey: chain.SystemProgramID(), IsSigner: false, IsWritable: false},
		},
		Data: data,
	}
}

// Deploy stakes perSquareAmount on every true entry of squares for
// roundID. signer is the transaction's fee payer and must also be
// authority for self-service deploys, the only mode this system drives.
// Deploy panics if squares has no true entry or roundID is zero: the
// component asserts these rather than tolerate ambiguous input, since a
// malformed instruction would either be rejected on-chain (wasting a
// round) or, worse, silently accepted with an unintended mask.
func Deploy(signer, authority protocol.PublicKey, perSquareAmount, roundID uint64, squares [protocol.Squares]bool) protocol.Instruction {
	mask := maskFromSquares(squares)
	if mask == 0 {
		panic("instruction: deploy requires at least one selected square")
	}
	if roundID == 0 {
		panic("instruction: deploy requires a nonzero round id")
	}

	data := make([]byte, 0, 24)
	data = append(data, discDeploy[:]...)
	data = appendU64(data, perSquareAmount)
	data = appendU64(data, roundID)
	data = appendU32(data, mask)

	return protocol.Instruction{
		ProgramID: chain.ProgramID(),
		Accounts: []protocol.AccountMeta{
			{PubKey: signer, IsSigner: true, IsWritable: true},
			{PubKey: authority, IsSigner: false, IsWritable: false},
			{PubKey: chain.MinerPDA(authority), IsSigner: false, IsWritable: true},
			{PubKey: chain.AutomationPDA(authority), IsSigner: false, IsWritable: true},
			{PubKey: chain.RoundPDA(roundID), IsSigner: false, IsWritable: true},
			{PubKey: chain.BoardPDA(), IsSigner: false, IsWritable: false},
			{PubKey: chain.TreasuryPDA(), IsSigner: false, IsWritable: true},
			{PubKey: chain.SystemProgramID(), IsSigner: false, IsWritable: false},
		},
		Data: data,
	}
}

// systemTransferDiscriminator is the 4-byte little-endian instruction tag
// the system program uses for a lamport transfer. Bundle Submitter's tip
// scan recognizes this exact encoding.
const systemTransferDiscriminator = uint32(2)

// SystemTransfer moves lamports from from to to via the system program,
// in the shape the Bundle Submitter's tip scan recognizes. The session
// driver's deploy transaction does not include one.
func SystemTransfer(from, to protocol.PublicKey, lamports uint64) protocol.Instruction {
	data := make([]byte, 0, 12)
	data = appendU32(data, systemTransferDiscriminator)
	data = appendU64(data, lamports)
	return protocol.Instruction{
		ProgramID: chain.SystemProgramID(),
		Accounts: []protocol.AccountMeta{
			{PubKey: from, IsSigner: true, IsWritable: true},
			{PubKey: to, IsSigner: false, IsWritable: true},
		},
		Data: data,
	}
}

// ComputeBudget returns the compute-budget instructions prefixed onto
// every deploy transaction: a unit-limit instruction followed by a
// unit-price instruction, in that order.
func ComputeBudget(limit uint32, microLamportsPerUnit uint64) []protocol.Instruction {
	limitData := make([]byte, 0, 5)
	limitData = append(limitData, 0x02) // SetComputeUnitLimit discriminator
	limitData = appendU32(limitData, limit)

	priceData := make([]byte, 0, 9)
	priceData = append(priceData, 0x03) // SetComputeUnitPrice discriminator
	priceData = appendU64(priceData, microLamportsPerUnit)

	computeBudgetProgram := chain.ComputeBudgetProgramID()
	return []protocol.Instruction{
		{ProgramID: computeBudgetProgram, Data: limitData},
		{ProgramID: computeBudgetProgram, Data: priceData},
	}
}

// maskFromSquares packs squares into a 32-bit bitmask, bit i set when
// squares[i] is true.
func maskFromSquares(squares [protocol.Squares]bool) uint32 {
	var mask uint32
	for i, v := range squares {
		if v {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// SquaresFromMask is the inverse of maskFromSquares, exposed for tests
// and for any future on-chain-event replay.
func SquaresFromMask(mask uint32) [protocol.Squares]bool {
	var squares [protocol.Squares]bool
	for i := range squares {
		squares[i] = mask&(1<<uint(i)) != 0
	}
	return squares
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

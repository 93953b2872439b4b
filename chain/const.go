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
	"crypto/sha256"

	"github.com/gridloop/miner/protocol"
)

// programID is the compile-time program id. The rest of the system never
// hard-codes it; every consumer goes through ProgramID().
var programID = hashKey("gridloop-mining-program-v1")

// systemProgramID is the native system program: 32 zero bytes, the
// well-known address every chain built on this account model reserves for
// lamport transfers.
var systemProgramID = protocol.PublicKey{}

// computeBudgetProgramID is the well-known compute-budget program every
// deploy transaction prefixes its unit-limit/unit-price instructions to.
var computeBudgetProgramID = hashKey("compute-budget-program")

func mustParseKey(s string) protocol.PublicKey {
	k, err := protocol.ParsePublicKey(s)
	if err != nil {
		// Constants are fixed at compile time; a bad literal is a build-time bug.
		panic(err)
	}
	return k
}

// hashKey derives a deterministic 32-byte key from a label, used for
// constants that stand in for a real deployed program id.
func hashKey(label string) protocol.PublicKey {
	sum := sha256.Sum256([]byte(label))
	return protocol.PublicKey(sum)
}

// ProgramID returns the on-chain grid-mining program id.
func ProgramID() protocol.PublicKey { return programID }

// SystemProgramID returns the native system program id, used to recognize
// tip transfers when scanning a bundle.
func SystemProgramID() protocol.PublicKey { return systemProgramID }

// ComputeBudgetProgramID returns the compute-budget program id.
func ComputeBudgetProgramID() protocol.PublicKey { return computeBudgetProgramID }

// tipAccounts is a rotating set of known tip-treasury accounts. The Bundle
// Submitter scans outgoing transfers against this set to report the tip
// paid; a real deployment would source this list from the bundle
// endpoint's operator, mirrored here as a fixed set.
var tipAccounts = [8]protocol.PublicKey{
	mustParseKey("96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"),
	mustParseKey("HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe"),
	mustParseKey("Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY"),
	mustParseKey("ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49"),
	mustParseKey("DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh"),
	mustParseKey("ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt"),
	mustParseKey("DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL"),
	mustParseKey("3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT"),
}

// TipAccounts returns the known tip-treasury accounts.
func TipAccounts() []protocol.PublicKey { return tipAccounts[:] }

// IsTipAccount reports whether k is one of the known tip accounts.
func IsTipAccount(k protocol.PublicKey) bool {
	for _, t := range tipAccounts {
		if t == k {
			return true
		}
	}
	return false
}

// findProgramAddress derives a deterministic address for seeds as
// sha256(seeds... || programID || "ProgramDerivedAddress"). It appends no
// bump seed and does not search for an off-curve point.
func findProgramAddress(seeds ...[]byte) protocol.PublicKey {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write(programID[:])
	h.Write([]byte("ProgramDerivedAddress"))
	var out protocol.PublicKey
	copy(out[:], h.Sum(nil))
	return out
}

// BoardPDA returns the address of the singleton board account.
func BoardPDA() protocol.PublicKey {
	return findProgramAddress([]byte("board"))
}

// RoundPDA returns the address of the per-round account.
func RoundPDA(roundID uint64) protocol.PublicKey {
	return findProgramAddress([]byte("round"), uint64LE(roundID))
}

// MinerPDA returns the address of a wallet's participant (miner) account.
func MinerPDA(wallet protocol.PublicKey) protocol.PublicKey {
	return findProgramAddress([]byte("miner"), wallet[:])
}

// TreasuryPDA returns the address of the protocol treasury account.
func TreasuryPDA() protocol.PublicKey {
	return findProgramAddress([]byte("treasury"))
}

// AutomationPDA returns the address of a wallet's automation account.
func AutomationPDA(wallet protocol.PublicKey) protocol.PublicKey {
	return findProgramAddress([]byte("automation"), wallet[:])
}

func uint64LE(v uint64) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

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

// AccountMeta describes one account reference inside an Instruction, in
// the program's expected account-list order.
type AccountMeta struct {
	PubKey     PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program instruction: a program id, its ordered
// account list, and opaque instruction data. Instruction Builder emits
// these; Chain Gateway and Bundle Submitter never construct them.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// Transaction is an unsigned or partially-signed transaction: a fee payer,
// a recent blockhash observed at a point in time (so the Signer can refuse
// to sign a stale one), a set of instructions, and the signatures
// collected so far keyed by signer public key.
type Transaction struct {
	FeePayer            PublicKey
	RecentBlockhash     Hash
	BlockhashObservedAt time.Time
	Instructions        []Instruction
	Signatures          map[PublicKey]Signature
}

// NewTransaction starts an unsigned transaction for payer, stamped with a
// blockhash observed "now" (the caller should pass the gateway's fetch
// time, not wall time of use, when the two differ).
func NewTransaction(payer PublicKey, blockhash Hash, observedAt time.Time, ixs ...Instruction) *Transaction {
	return &Transaction{
		FeePayer:            payer,
		RecentBlockhash:     blockhash,
		BlockhashObservedAt: observedAt,
		Instructions:        append([]Instruction(nil), ixs...),
		Signatures:          make(map[PublicKey]Signature),
	}
}

// BlockhashAge reports how long ago the transaction's blockhash was
// observed.
func (t *Transaction) BlockhashAge() time.Duration {
	return time.Since(t.BlockhashObservedAt)
}

// SignerKeys returns the distinct set of accounts this transaction
// requires a signature from, derived from each instruction's account list.
func (t *Transaction) SignerKeys() []PublicKey {
	seen := make(map[PublicKey]bool)
	var out []PublicKey
	add := func(k PublicKey) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	add(t.FeePayer)
	for _, ix := range t.Instructions {
		for _, a := range ix.Accounts {
			if a.IsSigner {
				add(a.PubKey)
			}
		}
	}
	return out
}

// FullySigned reports whether every required signer key has a signature.
func (t *Transaction) FullySigned() bool {
	for _, k := range t.SignerKeys() {
		if _, ok := t.Signatures[k]; !ok {
			return false
		}
	}
	return true
}

// PrimarySignature returns the fee payer's signature, used as the
// transaction's on-chain identifier once signed.
func (t *Transaction) PrimarySignature() (Signature, bool) {
	sig, ok := t.Signatures[t.FeePayer]
	return sig, ok
}

// CompileForSigning exposes the compiled message bytes a Signer signs,
// along with the account-key order the signature map is keyed against.
func (t *Transaction) CompileForSigning() ([]byte, []PublicKey, error) {
	return t.compileMessage()
}

// Marshal serializes the transaction to the wire format Chain Gateway and
// Bundle Submitter transmit: a compact-array of signatures followed by the
// compiled message (header, compact account-key array, blockhash, compact
// instruction array). This mirrors the legacy Solana transaction format
// closely enough to exercise every component that touches it; it is not a
// claim of byte-for-byte mainnet compatibility for programs this system
// never talks to.
func (t *Transaction) Marshal() ([]byte, error) {
	msg, keys, err := t.compileMessage()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 64*len(keys)+len(msg)+8)
	buf = appendCompactLen(buf, len(keys))
	for _, k := range keys {
		sig, ok := t.Signatures[k]
		if !ok {
			sig = Signature{}
		}
		buf = append(buf, sig[:]...)
	}
	buf = append(buf, msg...)
	return buf, nil
}

// compileMessage lays out the message header, account keys (fee payer
// first, then other signers, then writable non-signers, then readonly
// non-signers), the recent blockhash, and the compact instruction array
// with indices into the account-key table.
func (t *Transaction) compileMessage() ([]byte, []PublicKey, error) {
	type acct struct {
		key        PublicKey
		isSigner   bool
		isWritable bool
	}
	index := map[PublicKey]*acct{}
	var order []PublicKey
	upsert := func(k PublicKey, signer, writable bool) {
		a, ok := index[k]
		if !ok {
			a = &acct{key: k}
			index[k] = a
			order = append(order, k)
		}
		a.isSigner = a.isSigner || signer
		a.isWritable = a.isWritable || writable
	}
	upsert(t.FeePayer, true, true)
	for _, ix := range t.Instructions {
		upsert(ix.ProgramID, false, false)
		for _, am := range ix.Accounts {
			upsert(am.PubKey, am.IsSigner, am.IsWritable)
		}
	}

	// Four buckets, each preserving first-appearance order: fee payer,
	// other signers, writable non-signers, readonly non-signers.
	var otherSigners, writable, readonly []PublicKey
	for _, k := range order {
		if k == t.FeePayer {
			continue
		}
		a := index[k]
		switch {
		case a.isSigner:
			otherSigners = append(otherSigners, k)
		case a.isWritable:
			writable = append(writable, k)
		default:
			readonly = append(readonly, k)
		}
	}
	keys := make([]PublicKey, 0, len(order))
	keys = append(keys, t.FeePayer)
	keys = append(keys, otherSigners...)
	keys = append(keys, writable...)
	keys = append(keys, readonly...)

	keyIndex := make(map[PublicKey]int, len(keys))
	var numRequiredSignatures, numReadonlySigned, numReadonlyUnsigned byte
	for i, k := range keys {
		keyIndex[k] = i
		a := index[k]
		if a.isSigner {
			numRequiredSignatures++
			if !a.isWritable {
				numReadonlySigned++
			}
		} else if !a.isWritable {
			numReadonlyUnsigned++
		}
	}

	var out []byte
	out = append(out, numRequiredSignatures, numReadonlySigned, numReadonlyUnsigned)
	out = appendCompactLen(out, len(keys))
	for _, k := range keys {
		out = append(out, k[:]...)
	}
	out = append(out, t.RecentBlockhash[:]...)
	out = appendCompactLen(out, len(t.Instructions))
	for _, ix := range t.Instructions {
		programIdx, ok := keyIndex[ix.ProgramID]
		if !ok {
			return nil, nil, &DecodeError{Account: "instruction", Reason: "program id missing from account table"}
		}
		out = append(out, byte(programIdx))
		out = appendCompactLen(out, len(ix.Accounts))
		for _, am := range ix.Accounts {
			out = append(out, byte(keyIndex[am.PubKey]))
		}
		out = appendCompactLen(out, len(ix.Data))
		out = append(out, ix.Data...)
	}
	return out, keys, nil
}

// appendCompactLen appends n encoded as a Solana-style compact-u16
// (7 bits per byte, continuation bit set on all but the last byte).
func appendCompactLen(buf []byte, n int) []byte {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			buf = append(buf, b|0x80)
		} else {
			buf = append(buf, b)
			return buf
		}
	}
}

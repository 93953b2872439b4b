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

// Package protocol holds the wire-level types shared by every component:
// the on-chain account shapes, the selection result, and the session
// configuration. No component other than Chain Gateway decodes these from
// raw bytes, but all of them pass the decoded values by value.
package protocol

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKey is a 32-byte Ed25519 public key, the native address type of
// the chain this system targets.
type PublicKey [32]byte

// Zero reports whether k is the all-zero key (an unset/placeholder value).
func (k PublicKey) Zero() bool { return k == PublicKey{} }

func (k PublicKey) String() string { return base58.Encode(k[:]) }

// Bytes returns the raw 32 bytes backing k.
func (k PublicKey) Bytes() []byte { return k[:] }

// ParsePublicKey decodes a base58-encoded public key.
func ParsePublicKey(s string) (PublicKey, error) {
	var out PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("invalid public key length: got %d, want %d", len(raw), len(out))
	}
	copy(out[:], raw)
	return out, nil
}

// Signature is a 64-byte Ed25519 signature.
type Signature [64]byte

func (s Signature) String() string { return base58.Encode(s[:]) }

// ParseSignature decodes a base58-encoded transaction signature.
func ParseSignature(s string) (Signature, error) {
	var out Signature
	raw, err := base58.Decode(s)
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("invalid signature length: got %d, want %d", len(raw), len(out))
	}
	copy(out[:], raw)
	return out, nil
}

// Zero reports whether s has never been populated.
func (s Signature) Zero() bool { return s == Signature{} }

// Hash is a 32-byte value used for slot hashes and blockhashes alike.
type Hash [32]byte

func (h Hash) String() string { return base58.Encode(h[:]) }

// Zero reports whether h is unset.
func (h Hash) Zero() bool { return h == Hash{} }

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

// Package signer stores wallet keys and applies them to transactions.
// It is shared read-mostly across every session driver: key lookups
// dominate, key insertion is rare.
package signer

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/gridloop/miner/protocol"
)

var errStaleBlockhash = errors.New("blockhash exceeds max sign age")

// MaxSignBlockhashAge is the oldest a transaction's recorded blockhash
// may be for Sign to accept it. Past this age the blockhash has likely
// expired on-chain and signing would just waste a round-trip.
const MaxSignBlockhashAge = 30 * time.Second

// Signer is the capability object the driver depends on. A wallet with
// no registered key runs the session in advisory-only mode.
type Signer interface {
	HasKey(wallet protocol.PublicKey) bool
	Sign(wallet protocol.PublicKey, tx *protocol.Transaction) (*protocol.Transaction, error)
}

// MemorySigner holds ed25519 private keys in process memory, keyed by
// their public key. It never persists a key; callers that need
// durability load keys at startup and register them before any session
// using that wallet is started.
type MemorySigner struct {
	mu   sync.RWMutex
	keys map[protocol.PublicKey]ed25519.PrivateKey
}

// NewMemorySigner returns an empty signer ready for key registration.
func NewMemorySigner() *MemorySigner {
	return &MemorySigner{keys: make(map[protocol.PublicKey]ed25519.PrivateKey)}
}

// AddKey registers priv under its own public key, overwriting any prior
// key for the same wallet.
func (s *MemorySigner) AddKey(priv ed25519.PrivateKey) protocol.PublicKey {
	pub := priv.Public().(ed25519.PublicKey)
	var wallet protocol.PublicKey
	copy(wallet[:], pub)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[wallet] = priv
	return wallet
}

// Generate creates a fresh ed25519 keypair, registers it, and returns the
// resulting wallet address.
func (s *MemorySigner) Generate() (protocol.PublicKey, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return protocol.PublicKey{}, err
	}
	return s.AddKey(priv), nil
}

// HasKey reports whether wallet has a registered signing key.
func (s *MemorySigner) HasKey(wallet protocol.PublicKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[wallet]
	return ok
}

// Sign adds wallet's signature over tx's compiled message to tx. It
// refuses transactions whose recorded blockhash is older than
// MaxSignBlockhashAge: a stale blockhash will be rejected on submission
// regardless, so failing fast here saves a round trip.
func (s *MemorySigner) Sign(wallet protocol.PublicKey, tx *protocol.Transaction) (*protocol.Transaction, error) {
	if tx.BlockhashAge() > MaxSignBlockhashAge {
		return nil, &protocol.ChainUnavailableError{Op: "sign", Err: errStaleBlockhash}
	}

	s.mu.RLock()
	priv, ok := s.keys[wallet]
	s.mu.RUnlock()
	if !ok {
		return nil, protocol.ErrNotSigned
	}

	msg, _, err := tx.CompileForSigning()
	if err != nil {
		return nil, err
	}
	sig := ed25519.Sign(priv, msg)
	var out protocol.Signature
	copy(out[:], sig)
	tx.Signatures[wallet] = out
	return tx, nil
}

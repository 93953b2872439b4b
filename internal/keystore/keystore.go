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

// Package keystore stores ed25519 private keys as one file per wallet in
// a directory, guarded by an advisory file lock so that concurrent CLI
// invocations never interleave a read with a write.
package keystore

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/crypto/ed25519"

	"github.com/gridloop/miner/protocol"
)

// Store is a directory of hex-encoded ed25519 private key files, one per wallet,
// named by the wallet's base58 address.
type Store struct {
	dir string
}

// Open returns a Store rooted at dir, creating dir if it does not exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) lockPath() string {
	return filepath.Join(s.dir, ".lock")
}

func (s *Store) keyPath(wallet protocol.PublicKey) string {
	return filepath.Join(s.dir, wallet.String()+".key")
}

// Generate creates a new ed25519 key, writes it to disk, and returns its
// public key. The on-disk file name carries a throwaway uuid until the
// wallet address is known, then is renamed to its final, addressable name.
func (s *Store) Generate() (protocol.PublicKey, error) {
	lock := flock.New(s.lockPath())
	if err := lock.Lock(); err != nil {
		return protocol.PublicKey{}, fmt.Errorf("keystore: lock: %w", err)
	}
	defer lock.Unlock()

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return protocol.PublicKey{}, err
	}
	var wallet protocol.PublicKey
	copy(wallet[:], pub)

	tmp := filepath.Join(s.dir, uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, []byte(hex.EncodeToString(priv)), 0o600); err != nil {
		return protocol.PublicKey{}, fmt.Errorf("keystore: write: %w", err)
	}
	if err := os.Rename(tmp, s.keyPath(wallet)); err != nil {
		os.Remove(tmp)
		return protocol.PublicKey{}, fmt.Errorf("keystore: rename: %w", err)
	}
	return wallet, nil
}

// Load reads wallet's private key from disk.
func (s *Store) Load(wallet protocol.PublicKey) (ed25519.PrivateKey, error) {
	lock := flock.New(s.lockPath())
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("keystore: lock: %w", err)
	}
	defer lock.Unlock()

	raw, err := os.ReadFile(s.keyPath(wallet))
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	priv, err := hex.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("keystore: corrupt key file: %w", err)
	}
	return ed25519.PrivateKey(priv), nil
}

// List returns every wallet address currently stored.
func (s *Store) List() ([]protocol.PublicKey, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	var out []protocol.PublicKey
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != ".key" {
			continue
		}
		wallet, err := protocol.ParsePublicKey(name[:len(name)-len(".key")])
		if err != nil {
			continue
		}
		out = append(out, wallet)
	}
	return out, nil
}

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

package keystore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ed25519"

	"github.com/gridloop/miner/protocol"
)

func TestOpenCreatesTheDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "keystore")
	if _, err := Open(dir); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Fatalf("Open did not create %s", dir)
	}
}

func TestGenerateLoadRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	wallet, err := s.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if wallet == (protocol.PublicKey{}) {
		t.Fatalf("Generate returned a zero public key")
	}

	priv, err := s.Load(wallet)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		t.Fatalf("Load returned a key of length %d, want %d", len(priv), ed25519.PrivateKeySize)
	}
	if !bytes.Equal(priv.Public().(ed25519.PublicKey), wallet[:]) {
		t.Errorf("the loaded private key's public half does not match the wallet address Generate returned")
	}
}

func TestGenerateLeavesNoTemporaryFilesBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Generate(); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("found a leftover temp file %s after Generate", e.Name())
		}
	}
}

func TestLoadOnUnknownWalletReturnsError(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Load(protocol.PublicKey{9}); err == nil {
		t.Fatalf("expected an error loading a wallet that was never generated")
	}
}

func TestListReturnsEveryGeneratedWallet(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	want := map[protocol.PublicKey]bool{}
	for i := 0; i < 3; i++ {
		wallet, err := s.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		want[wallet] = true
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("List returned %d wallets, want %d", len(got), len(want))
	}
	for _, w := range got {
		if !want[w] {
			t.Errorf("List returned unexpected wallet %v", w)
		}
	}
}

func TestListIgnoresTheLockFileAndNonKeyEntries(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Generate(); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("List returned %d entries, want 1 (lock file and notes.txt must be skipped)", len(got))
	}
}

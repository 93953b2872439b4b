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
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/gridloop/miner/protocol"
)

// boardCache holds the read-mostly board-state snapshot shared by every
// session's poll loop, refreshed at most once per interval.
// Board state is tiny and fixed-shape, so fastcache's byte-slice store is
// used purely for its concurrent-safe, allocation-light get/set path
// rather than for its eviction behavior.
type boardCache struct {
	mu        sync.RWMutex
	store     *fastcache.Cache
	fetchedAt time.Time
	interval  time.Duration
}

func newBoardCache(interval time.Duration) *boardCache {
	return &boardCache{
		store:    fastcache.New(64 * 1024),
		interval: interval,
	}
}

const boardCacheKey = "board"

func (c *boardCache) get() (protocol.BoardState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if time.Since(c.fetchedAt) > c.interval {
		return protocol.BoardState{}, false
	}
	raw, ok := c.store.HasGet(nil, []byte(boardCacheKey))
	if !ok {
		return protocol.BoardState{}, false
	}
	return decodeCachedBoard(raw), true
}

func (c *boardCache) set(b protocol.BoardState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Set([]byte(boardCacheKey), encodeCachedBoard(b))
	c.fetchedAt = time.Now()
}

func encodeCachedBoard(b protocol.BoardState) []byte {
	out := make([]byte, 32)
	putLE64(out[0:8], b.RoundID)
	putLE64(out[8:16], b.StartSlot)
	putLE64(out[16:24], b.EndSlot)
	putLE64(out[24:32], b.EpochID)
	return out
}

func decodeCachedBoard(raw []byte) protocol.BoardState {
	return protocol.BoardState{
		RoundID:   le64(raw[0:8]),
		StartSlot: le64(raw[8:16]),
		EndSlot:   le64(raw[16:24]),
		EpochID:   le64(raw[24:32]),
	}
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

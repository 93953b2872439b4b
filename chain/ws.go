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
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gridloop/miner/log"
)

// slotSubscriber maintains a best-effort websocket subscription to the
// chain's slot notifications, feeding Gateway.Slot a value fresher than
// the poll interval without putting the websocket connection on the path
// of any correctness-sensitive read. If the connection drops it
// reconnects with backoff; callers always have the RPC poll as fallback.
type slotSubscriber struct {
	endpoint string
	log      log.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	stopCh   chan struct{}
	wg       sync.WaitGroup
	slot     atomic.Uint64
	slotSeen atomic.Bool
	lastSeen atomic.Int64 // unix nanos
}

func newSlotSubscriber(endpoint string, logger log.Logger) *slotSubscriber {
	return &slotSubscriber{
		endpoint: endpoint,
		log:      logger.New("component", "slot-subscriber"),
		stopCh:   make(chan struct{}),
	}
}

func (s *slotSubscriber) start() {
	s.wg.Add(1)
	go s.run()
}

func (s *slotSubscriber) stop() {
	close(s.stopCh)
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// latestSlot returns the most recently observed slot if it arrived within
// the last second; otherwise callers should fall back to polling.
func (s *slotSubscriber) latestSlot() (uint64, bool) {
	if !s.slotSeen.Load() {
		return 0, false
	}
	if time.Since(time.Unix(0, s.lastSeen.Load())) > time.Second {
		return 0, false
	}
	return s.slot.Load(), true
}

type slotSubscribeRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type slotNotification struct {
	Params struct {
		Result struct {
			Slot uint64 `json:"slot"`
		} `json:"result"`
	} `json:"params"`
}

func (s *slotSubscriber) run() {
	defer s.wg.Done()
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		if err := s.connectAndRead(); err != nil {
			s.log.Debug("slot subscription dropped", "err", err, "retry_in", backoff)
		}
		select {
		case <-s.stopCh:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *slotSubscriber) connectAndRead() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.endpoint, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer conn.Close()

	req := slotSubscribeRequest{JSONRPC: "2.0", ID: 1, Method: "slotSubscribe"}
	if err := conn.WriteJSON(req); err != nil {
		return err
	}

	for {
		select {
		case <-s.stopCh:
			return nil
		default:
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var note slotNotification
		if err := json.Unmarshal(data, &note); err != nil {
			continue
		}
		if note.Params.Result.Slot == 0 {
			continue
		}
		s.slot.Store(note.Params.Result.Slot)
		s.slotSeen.Store(true)
		s.lastSeen.Store(time.Now().UnixNano())
	}
}

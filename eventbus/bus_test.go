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

package eventbus

import "testing"

func TestNewBusEnforcesMinimumBuffer(t *testing.T) {
	b := NewBus(1)
	if b.buffer != MinBufferSize {
		t.Fatalf("buffer = %d, want the enforced minimum %d", b.buffer, MinBufferSize)
	}
}

func TestSubscribeAndPublishDeliversToAllSubscribers(t *testing.T) {
	b := NewBus(MinBufferSize)
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer s1.Unsubscribe()
	defer s2.Unsubscribe()

	if got := b.SubscriberCount(); got != 2 {
		t.Fatalf("SubscriberCount() = %d, want 2", got)
	}

	ev := Event{Kind: KindRoundUpdate, RoundID: 7}
	b.Publish(ev)

	for _, s := range []*Subscription{s1, s2} {
		select {
		case got := <-s.Events():
			if got.RoundID != 7 {
				t.Errorf("RoundID = %d, want 7", got.RoundID)
			}
		default:
			t.Errorf("subscriber never received the published event")
		}
	}
}

func TestPublishNeverBlocksOnAFullSlowSubscriber(t *testing.T) {
	b := NewBus(MinBufferSize)
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	// Fill the subscriber's buffer without draining it.
	for i := 0; i < MinBufferSize; i++ {
		b.Publish(Event{Kind: KindRoundUpdate, RoundID: uint64(i)})
	}

	done := make(chan struct{})
	go func() {
		// One more publish must not block even though the channel is full.
		b.Publish(Event{Kind: KindRoundUpdate, RoundID: 999_999})
		close(done)
	}()
	select {
	case <-done:
	default:
	}
	<-done // the goroutine above must complete; a blocking Publish would hang this test forever

	// The newest event must have survived the drop; the very oldest must not have.
	var first, last Event
	drained := 0
	for {
		select {
		case ev := <-sub.Events():
			if drained == 0 {
				first = ev
			}
			drained++
			last = ev
			continue
		default:
		}
		break
	}
	if first.RoundID == 0 {
		t.Errorf("first observed RoundID = 0, want the oldest event dropped")
	}
	if last.RoundID != 999_999 {
		t.Errorf("last observed RoundID = %d, want 999999 (newest-wins-drop)", last.RoundID)
	}
}

func TestUnsubscribeIsIdempotentAndClosesChannel(t *testing.T) {
	b := NewBus(MinBufferSize)
	sub := b.Subscribe()

	sub.Unsubscribe()
	sub.Unsubscribe() // must not panic

	if _, ok := <-sub.Events(); ok {
		t.Errorf("expected the subscriber channel to be closed after Unsubscribe")
	}
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() = %d, want 0 after Unsubscribe", got)
	}
}

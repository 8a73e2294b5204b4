// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Publisher is the sending half of the bus.
type Publisher interface {
	Publish(event Event)
}

// Selector filters a subscription. An empty RunID or Types matches all.
type Selector struct {
	RunID string
	Types []EventType
}

func (s Selector) matches(e Event) bool {
	if s.RunID != "" && s.RunID != e.RunID {
		return false
	}
	if len(s.Types) == 0 {
		return true
	}
	for _, t := range s.Types {
		if t == e.Type {
			return true
		}
	}
	return false
}

// Subscription receives events matching its selector.
type Subscription struct {
	bus      *Bus
	selector Selector
	ch       chan Event
	once     sync.Once
}

// Receive waits up to timeout for the next event. A zero timeout polls.
// It returns false on timeout or once the subscription is closed.
func (s *Subscription) Receive(timeout time.Duration) (Event, bool) {
	if timeout <= 0 {
		select {
		case e, ok := <-s.ch:
			return e, ok
		default:
			return Event{}, false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case e, ok := <-s.ch:
		return e, ok
	case <-timer.C:
		return Event{}, false
	}
}

// C exposes the delivery channel for select loops.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close detaches the subscription from the bus. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
	})
}

// Bus is an in-process pub/sub hub. Slow subscribers lose their oldest
// buffered events rather than blocking publishers.
type Bus struct {
	mu         sync.RWMutex
	subs       []*Subscription
	bufferSize int
	dropped    int64
	closed     bool
}

// NewBus creates a Bus whose subscriptions buffer bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{bufferSize: bufferSize}
}

// Subscribe registers a subscription for events matching sel.
func (b *Bus) Subscribe(sel Selector) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{bus: b, selector: sel, ch: make(chan Event, b.bufferSize)}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs = append(b.subs, sub)
	return sub
}

// Publish delivers event to every matching subscription.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if !sub.selector.matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Full: drop the oldest and retry once.
			select {
			case <-sub.ch:
				atomic.AddInt64(&b.dropped, 1)
			default:
			}
			select {
			case sub.ch <- event:
			default:
				atomic.AddInt64(&b.dropped, 1)
			}
		}
	}
}

// Dropped returns how many events were discarded for slow subscribers.
func (b *Bus) Dropped() int64 {
	return atomic.LoadInt64(&b.dropped)
}

// Close closes every subscription. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}

func (b *Bus) remove(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

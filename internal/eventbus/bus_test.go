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
	"testing"
	"time"

	"github.com/tombee/orca/internal/lifecycle"
)

func TestBus_SelectorFiltersByRunAndType(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	mine := bus.Subscribe(Selector{RunID: "R1", Types: []EventType{TypeLoggerStatus}})
	all := bus.Subscribe(Selector{})

	bus.Publish(NewLoggerStatus("R2", 100, StatusEOL))
	bus.Publish(NewShutdownCommand("R1", lifecycle.Now))
	bus.Publish(NewLoggerStatus("R1", 101, StatusEOL))

	e, ok := mine.Receive(100 * time.Millisecond)
	if !ok {
		t.Fatal("expected an event for R1")
	}
	if pid, _ := e.LoggerPID(); pid != 101 {
		t.Errorf("expected logger pid 101, got %d", pid)
	}
	if _, ok := mine.Receive(0); ok {
		t.Error("selector should have filtered the other events")
	}

	for i := 0; i < 3; i++ {
		if _, ok := all.Receive(100 * time.Millisecond); !ok {
			t.Errorf("unfiltered subscription missed event %d", i)
		}
	}
}

func TestSubscription_ReceiveTimeout(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()
	sub := bus.Subscribe(Selector{RunID: "R1"})

	start := time.Now()
	if _, ok := sub.Receive(20 * time.Millisecond); ok {
		t.Fatal("expected timeout")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Receive returned before its timeout")
	}
}

func TestBus_DropsOldestWhenFull(t *testing.T) {
	bus := NewBus(2)
	defer bus.Close()
	sub := bus.Subscribe(Selector{})

	for pid := 1; pid <= 3; pid++ {
		bus.Publish(NewLoggerStatus("R1", pid, StatusEOL))
	}

	if bus.Dropped() != 1 {
		t.Errorf("expected 1 dropped event, got %d", bus.Dropped())
	}
	first, _ := sub.Receive(0)
	if pid, _ := first.LoggerPID(); pid != 2 {
		t.Errorf("expected oldest surviving pid 2, got %d", pid)
	}
}

func TestSubscription_Close(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()
	sub := bus.Subscribe(Selector{})
	sub.Close()
	sub.Close()

	bus.Publish(NewShutdownCommand("R1", lifecycle.Now))
	if _, ok := sub.Receive(10 * time.Millisecond); ok {
		t.Error("closed subscription should not deliver")
	}
}

func TestBus_CloseThenSubscribe(t *testing.T) {
	bus := NewBus(4)
	bus.Close()
	bus.Close()

	sub := bus.Subscribe(Selector{})
	if _, ok := sub.Receive(10 * time.Millisecond); ok {
		t.Error("subscription on a closed bus should be closed")
	}
	bus.Publish(NewShutdownCommand("R1", lifecycle.Now))
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus(1000)
	defer bus.Close()
	sub := bus.Subscribe(Selector{RunID: "R1"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(NewLoggerStatus("R1", i*100+j, "running"))
			}
		}(i)
	}
	wg.Wait()

	received := 0
	for {
		if _, ok := sub.Receive(0); !ok {
			break
		}
		received++
	}
	if received != 500 {
		t.Errorf("expected 500 events, got %d", received)
	}
}

func TestEvent_Accessors(t *testing.T) {
	if u := NewShutdownCommand("R1", lifecycle.Checkpoint).Urgency(); u != lifecycle.Checkpoint {
		t.Errorf("expected checkpoint, got %v", u)
	}
	if u := New(TypeShutdownCommand, "R1", nil).Urgency(); u != lifecycle.Now {
		t.Errorf("missing urgency should default to now, got %v", u)
	}
	if _, ok := NewShutdownCommand("R1", lifecycle.Now).LoggerPID(); ok {
		t.Error("shutdown command carries no logger pid")
	}

	last := NewLastLoggerEvent("R1")
	if last.Type != TypeLogging || last.Properties[PropLogger] != ControlLoggerName || last.Properties[PropStatus] != StatusEOL {
		t.Errorf("unexpected last logger event: %+v", last)
	}
}

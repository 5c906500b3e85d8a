// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package xmpp

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

func bodyFilter(prefix string) Filter {
	return FilterFunc(func(s stanza.Stanza) bool {
		msg, ok := s.(*stanza.Message)
		return ok && len(msg.Body) >= len(prefix) && msg.Body[:len(prefix)] == prefix
	})
}

func testMessage(body string) *stanza.Message {
	return stanza.NewMessage(stanza.MustParseAddress("x"), stanza.MustParseAddress("a@x"), body)
}

func TestCollectorOrder(t *testing.T) {
	d := NewDispatcher()
	c := d.CreateCollector(bodyFilter("a"))
	defer c.Cancel()

	for i := 0; i < 10; i++ {
		d.Dispatch(testMessage(fmt.Sprintf("a%d", i)))
	}

	if n := c.CollectedCount(); n != 10 {
		t.Fatalf("collector has %d stanzas, expected 10", n)
	}

	for i := 0; i < 10; i++ {
		s, err := c.NextResult(time.Second)
		if err != nil {
			t.Fatal(err)
		} else if body := s.(*stanza.Message).Body; body != fmt.Sprintf("a%d", i) {
			t.Fatalf("stanza %d has body %q", i, body)
		}
	}

	if s := c.Poll(); s != nil {
		t.Fatalf("collector should be empty, got %v", s)
	}
}

func TestCollectorIsolation(t *testing.T) {
	d := NewDispatcher()
	ca := d.CreateCollector(bodyFilter("a"))
	cb := d.CreateCollector(bodyFilter("b"))
	defer ca.Cancel()
	defer cb.Cancel()

	for _, body := range []string{"a1", "b1", "a2", "c1", "b2", "a3"} {
		d.Dispatch(testMessage(body))
	}

	if n := ca.CollectedCount(); n != 3 {
		t.Fatalf("collector a has %d stanzas", n)
	}
	if n := cb.CollectedCount(); n != 2 {
		t.Fatalf("collector b has %d stanzas", n)
	}
}

func TestCollectorTimeout(t *testing.T) {
	d := NewDispatcher()
	c := d.CreateCollector(bodyFilter("a"))
	defer c.Cancel()

	start := time.Now()
	if _, err := c.NextResult(100 * time.Millisecond); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	} else if dur := time.Since(start); dur < 100*time.Millisecond {
		t.Fatalf("NextResult returned after %v", dur)
	}
}

func TestCollectorWakeUp(t *testing.T) {
	d := NewDispatcher()
	c := d.CreateCollector(bodyFilter("a"))
	defer c.Cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		d.Dispatch(testMessage("a1"))
	}()

	if s, err := c.NextResult(time.Second); err != nil {
		t.Fatal(err)
	} else if s.(*stanza.Message).Body != "a1" {
		t.Fatalf("unexpected stanza %v", s)
	}
}

func TestCollectorCancel(t *testing.T) {
	d := NewDispatcher()
	c := d.CreateCollector(bodyFilter("a"))

	d.Dispatch(testMessage("a1"))

	if n := d.Len(); n != 1 {
		t.Fatalf("dispatcher has %d collectors", n)
	}

	c.Cancel()
	c.Cancel()

	if n := d.Len(); n != 0 {
		t.Fatalf("dispatcher has %d collectors after cancel", n)
	}
	if !c.IsCancelled() {
		t.Fatal("collector is not cancelled")
	}

	if receivers := d.Dispatch(testMessage("a2")); receivers != 0 {
		t.Fatalf("late stanza reached %d receivers", receivers)
	}

	// Already collected stanzas are still available.
	if s, err := c.NextResult(time.Second); err != nil {
		t.Fatal(err)
	} else if s.(*stanza.Message).Body != "a1" {
		t.Fatalf("unexpected stanza %v", s)
	}

	if _, err := c.NextResult(time.Second); !errors.Is(err, ErrCollectorCancelled) {
		t.Fatalf("expected ErrCollectorCancelled, got %v", err)
	}
	if n := c.CollectedCount(); n != 1 {
		t.Fatalf("collector counted %d stanzas", n)
	}
}

func TestCollectorConcurrentDispatch(t *testing.T) {
	d := NewDispatcher()
	c := d.CreateCollector(bodyFilter("a"))
	defer c.Cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d.Dispatch(testMessage(fmt.Sprintf("a%d-%d", i, j)))
			}
		}(i)
	}
	wg.Wait()

	if n := c.CollectedCount(); n != 800 {
		t.Fatalf("collector has %d stanzas, expected 800", n)
	}
}

func TestNextResultOrErr(t *testing.T) {
	d := NewDispatcher()

	req := stanza.NewIQ(stanza.IQGet, stanza.MustParseAddress("x"), nil)
	c, err := d.CollectAndSend(req, func(s stanza.Stanza) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	defer c.Cancel()

	errReply := stanza.NewErrorReply(req, "item-not-found", "")
	d.Dispatch(errReply)

	var se *StanzaError
	if _, err := c.NextResultOrErr(time.Second); !errors.As(err, &se) {
		t.Fatalf("expected StanzaError, got %v", err)
	} else if se.Condition != "item-not-found" {
		t.Fatalf("unexpected condition %q", se.Condition)
	}
}

func TestCollectAndSendFailure(t *testing.T) {
	d := NewDispatcher()

	sendErr := errors.New("broken pipe")
	req := stanza.NewIQ(stanza.IQGet, stanza.MustParseAddress("x"), nil)
	if c, err := d.CollectAndSend(req, func(s stanza.Stanza) error { return sendErr }); err != sendErr {
		t.Fatalf("expected send error, got %v", err)
	} else if c != nil {
		t.Fatal("collector was returned for failed send")
	}

	if n := d.Len(); n != 0 {
		t.Fatalf("dispatcher leaked %d collectors", n)
	}
}

func TestDispatcherHandler(t *testing.T) {
	d := NewDispatcher()

	var received []string
	remove := d.AddHandler(bodyFilter("h"), func(s stanza.Stanza) {
		received = append(received, s.(*stanza.Message).Body)
	})

	d.Dispatch(testMessage("h1"))
	d.Dispatch(testMessage("x1"))
	remove()
	remove()
	d.Dispatch(testMessage("h2"))

	if len(received) != 1 || received[0] != "h1" {
		t.Fatalf("handler received %v", received)
	}
}

func TestCollectorPollBefore(t *testing.T) {
	d := NewDispatcher()
	ca := d.CreateCollector(bodyFilter("a"))
	cb := d.CreateCollector(bodyFilter("b"))
	defer ca.Cancel()
	defer cb.Cancel()

	for _, body := range []string{"a1", "a2", "b1", "a3"} {
		d.Dispatch(testMessage(body))
	}

	if _, err := cb.NextResult(time.Second); err != nil {
		t.Fatal(err)
	}
	bound := cb.LastSeq()

	var bodies []string
	for s := ca.PollBefore(bound); s != nil; s = ca.PollBefore(bound) {
		bodies = append(bodies, s.(*stanza.Message).Body)
	}

	if len(bodies) != 2 || bodies[0] != "a1" || bodies[1] != "a2" {
		t.Fatalf("expected [a1 a2] before b1, got %v", bodies)
	}

	if s := ca.Poll(); s == nil || s.(*stanza.Message).Body != "a3" {
		t.Fatalf("expected a3 to remain, got %v", s)
	}
}

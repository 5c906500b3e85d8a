// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package xmpp

import (
	"sync"
	"time"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

// Collector queues inbound stanzas accepted by its Filter. A Collector is created by a Dispatcher and must be
// cancelled afterwards, otherwise it stays registered and keeps collecting.
type Collector struct {
	filter     Filter
	dispatcher *Dispatcher

	mutex     sync.Mutex
	queue     []delivery
	collected int
	lastSeq   uint64

	// notify wakes up a waiting consumer. Its buffer of one is sufficient, because the queue is always checked.
	notify chan struct{}

	cancelOnce sync.Once
	cancelled  chan struct{}
}

// delivery is a queued stanza together with its Dispatcher sequence number.
type delivery struct {
	seq uint64
	s   stanza.Stanza
}

func newCollector(filter Filter, dispatcher *Dispatcher) *Collector {
	return &Collector{
		filter:     filter,
		dispatcher: dispatcher,
		notify:     make(chan struct{}, 1),
		cancelled:  make(chan struct{}),
	}
}

// offer a stanza, which will be queued if the Filter accepts it.
func (c *Collector) offer(seq uint64, s stanza.Stanza) bool {
	if !c.filter.Accept(s) {
		return false
	}

	c.mutex.Lock()
	select {
	case <-c.cancelled:
		c.mutex.Unlock()
		return false
	default:
	}

	c.queue = append(c.queue, delivery{seq: seq, s: s})
	c.collected++
	c.mutex.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

// Poll the oldest queued stanza without blocking. If the queue is empty, nil is returned.
func (c *Collector) Poll() stanza.Stanza {
	return c.PollBefore(0)
}

// PollBefore polls the oldest queued stanza only if it was dispatched before the given sequence number, as
// reported by LastSeq. A sequence number of zero disables this bound.
func (c *Collector) PollBefore(seq uint64) stanza.Stanza {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.queue) == 0 || (seq != 0 && c.queue[0].seq >= seq) {
		return nil
	}

	d := c.queue[0]
	c.queue[0] = delivery{}
	c.queue = c.queue[1:]
	c.lastSeq = d.seq
	return d.s
}

// LastSeq is the Dispatcher's sequence number of the most recently consumed stanza.
func (c *Collector) LastSeq() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.lastSeq
}

// NextResult blocks until a stanza is available, the timeout elapses or the Collector gets cancelled.
// Already queued stanzas are returned even after cancellation.
func (c *Collector) NextResult(timeout time.Duration) (stanza.Stanza, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if s := c.Poll(); s != nil {
			return s, nil
		}

		select {
		case <-c.notify:
			continue

		case <-c.cancelled:
			if s := c.Poll(); s != nil {
				return s, nil
			}
			return nil, ErrCollectorCancelled

		case <-timer.C:
			return nil, ErrNoResponse
		}
	}
}

// NextResultOrErr works like NextResult, but converts an error IQ into a StanzaError.
func (c *Collector) NextResultOrErr(timeout time.Duration) (stanza.Stanza, error) {
	s, err := c.NextResult(timeout)
	if err != nil {
		return nil, err
	}

	if iq, ok := s.(*stanza.IQ); ok && iq.Type == stanza.IQError {
		return nil, newStanzaError(iq)
	}
	return s, nil
}

// CollectedCount is the total number of stanzas accepted by this Collector, including consumed ones.
func (c *Collector) CollectedCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.collected
}

// Cancel this Collector and remove it from its Dispatcher. Calling Cancel multiple times is safe.
func (c *Collector) Cancel() {
	c.cancelOnce.Do(func() {
		c.mutex.Lock()
		close(c.cancelled)
		c.mutex.Unlock()

		c.dispatcher.remove(c)
	})
}

// IsCancelled checks if Cancel was called.
func (c *Collector) IsCancelled() bool {
	select {
	case <-c.cancelled:
		return true
	default:
		return false
	}
}

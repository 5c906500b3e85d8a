// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package xmpp

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

// LoopbackConn is an in-process Conn, directly attached to a server side Handler. Outbound stanzas are handled
// sequentially by a background goroutine; the Handler's replies are dispatched to this connection.
type LoopbackConn struct {
	*Dispatcher

	local   stanza.Address
	handler Handler

	// mutex guards all following fields; queueCond signals changes of queue or closed.
	mutex        sync.Mutex
	queueCond    *sync.Cond
	queue        []stanza.Stanza
	replyTimeout time.Duration
	closed       bool
	closeAck     chan struct{}
}

// NewLoopbackConn bound to the local Address. Outbound stanzas are passed to the Handler.
func NewLoopbackConn(local stanza.Address, handler Handler) *LoopbackConn {
	lc := &LoopbackConn{
		Dispatcher:   NewDispatcher(),
		local:        local,
		handler:      handler,
		replyTimeout: DefaultReplyTimeout,
		closeAck:     make(chan struct{}),
	}
	lc.queueCond = sync.NewCond(&lc.mutex)

	go lc.handle()

	return lc
}

// next blocks until an outbound stanza is queued. It returns false after Close, when the queue is drained.
func (lc *LoopbackConn) next() (stanza.Stanza, bool) {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()

	for len(lc.queue) == 0 && !lc.closed {
		lc.queueCond.Wait()
	}
	if len(lc.queue) == 0 {
		return nil, false
	}

	s := lc.queue[0]
	lc.queue[0] = nil
	lc.queue = lc.queue[1:]
	return s, true
}

func (lc *LoopbackConn) handle() {
	defer close(lc.closeAck)

	sess := loopbackSession{lc}
	for {
		s, ok := lc.next()
		if !ok {
			return
		}
		lc.handler.HandleStanza(sess, s)
	}
}

// Send a stanza to the Handler. The sender's Address is filled in, as a server would do. Send never blocks, so
// it might also be called from within a handler of this connection.
func (lc *LoopbackConn) Send(s stanza.Stanza) error {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()

	if lc.closed {
		return ErrNotConnected
	}

	switch s := s.(type) {
	case *stanza.IQ:
		s.From = lc.local
	case *stanza.Message:
		s.From = lc.local
	}

	lc.queue = append(lc.queue, s)
	lc.queueCond.Signal()
	return nil
}

// CreateCollectorAndSend registers a reply Collector for the IQ before sending it.
func (lc *LoopbackConn) CreateCollectorAndSend(iq *stanza.IQ) (*Collector, error) {
	return lc.CollectAndSend(iq, lc.Send)
}

// ReplyTimeout is the default duration to wait for a reply.
func (lc *LoopbackConn) ReplyTimeout() time.Duration {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()

	return lc.replyTimeout
}

// SetReplyTimeout changes the default duration to wait for a reply.
func (lc *LoopbackConn) SetReplyTimeout(timeout time.Duration) {
	lc.mutex.Lock()
	lc.replyTimeout = timeout
	lc.mutex.Unlock()
}

func (lc *LoopbackConn) LocalAddress() stanza.Address {
	return lc.local
}

// Close this connection. Pending outbound stanzas are still handled.
func (lc *LoopbackConn) Close() {
	lc.mutex.Lock()
	if lc.closed {
		lc.mutex.Unlock()
		return
	}
	lc.closed = true
	lc.queueCond.Broadcast()
	lc.mutex.Unlock()

	<-lc.closeAck
	log.WithField("address", lc.local).Debug("Loopback connection closed")
}

// loopbackSession is the Handler's view of a LoopbackConn. Its stanzas are dispatched to the connection.
type loopbackSession struct {
	lc *LoopbackConn
}

func (ls loopbackSession) Send(s stanza.Stanza) error {
	ls.lc.Dispatch(s)
	return nil
}

func (ls loopbackSession) RemoteAddress() stanza.Address {
	return ls.lc.local
}

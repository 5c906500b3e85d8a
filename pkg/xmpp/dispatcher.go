// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package xmpp

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

// HandlerFunc is called for inbound stanzas, see Dispatcher.AddHandler.
type HandlerFunc func(s stanza.Stanza)

type handlerElem struct {
	filter  Filter
	handler HandlerFunc
}

// Dispatcher is the registry of Collectors and handlers for one connection. Each inbound stanza is offered to
// all registered Collectors; a Collector only sees the stanzas its Filter accepts.
type Dispatcher struct {
	// seq numbers each dispatched stanza, starting at one.
	seq uint64

	mutex      sync.RWMutex
	collectors map[*Collector]struct{}
	handlers   map[*handlerElem]struct{}
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		collectors: make(map[*Collector]struct{}),
		handlers:   make(map[*handlerElem]struct{}),
	}
}

// CreateCollector registers a new Collector for the Filter. It must be cancelled after usage.
func (d *Dispatcher) CreateCollector(filter Filter) *Collector {
	c := newCollector(filter, d)

	d.mutex.Lock()
	d.collectors[c] = struct{}{}
	d.mutex.Unlock()

	return c
}

// CollectAndSend registers a Collector for the reply to an IQ request before sending it with the given function.
// If sending fails, the Collector is cancelled and the error is returned.
func (d *Dispatcher) CollectAndSend(iq *stanza.IQ, send func(s stanza.Stanza) error) (*Collector, error) {
	c := d.CreateCollector(IQReplyFilter(iq))

	if err := send(iq); err != nil {
		c.Cancel()
		return nil, err
	}
	return c, nil
}

// AddHandler registers a function to be called synchronously for each accepted stanza. The returned function
// removes this handler again. Handlers must not block.
func (d *Dispatcher) AddHandler(filter Filter, handler HandlerFunc) (remove func()) {
	elem := &handlerElem{filter: filter, handler: handler}

	d.mutex.Lock()
	d.handlers[elem] = struct{}{}
	d.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mutex.Lock()
			delete(d.handlers, elem)
			d.mutex.Unlock()
		})
	}
}

func (d *Dispatcher) remove(c *Collector) {
	d.mutex.Lock()
	delete(d.collectors, c)
	d.mutex.Unlock()
}

// Dispatch an inbound stanza to all matching Collectors and handlers. The number of receivers is returned.
func (d *Dispatcher) Dispatch(s stanza.Stanza) (receivers int) {
	seq := atomic.AddUint64(&d.seq, 1)

	d.mutex.RLock()
	collectors := make([]*Collector, 0, len(d.collectors))
	for c := range d.collectors {
		collectors = append(collectors, c)
	}
	handlers := make([]*handlerElem, 0, len(d.handlers))
	for h := range d.handlers {
		handlers = append(handlers, h)
	}
	d.mutex.RUnlock()

	for _, c := range collectors {
		if c.offer(seq, s) {
			receivers++
		}
	}

	for _, h := range handlers {
		if h.filter.Accept(s) {
			h.handler(s)
			receivers++
		}
	}

	if receivers == 0 {
		log.WithField("stanza", s).Debug("Dispatcher dropped stanza without receiver")
	}
	return
}

// Len is the number of registered Collectors.
func (d *Dispatcher) Len() int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return len(d.collectors)
}

// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/xmppkit/mam-go/pkg/stanza"
	"github.com/xmppkit/mam-go/pkg/xmpp"
)

// SessionKey identifies a session. Session ids are only unique for their initiator.
type SessionKey struct {
	SID       string
	Initiator stanza.Address
}

func (sk SessionKey) String() string {
	return fmt.Sprintf("%s/%v", sk.SID, sk.Initiator)
}

// SessionHandler processes a Jingle IQ for an in-progress session. A returned error results in an error reply,
// otherwise an empty result is sent.
type SessionHandler func(iq *stanza.IQ, j *Jingle) error

// Router delivers inbound Jingle IQs of a connection to the SessionHandler registered for their SessionKey.
// IQs for unknown sessions are answered with an item-not-found error.
type Router struct {
	conn   xmpp.Conn
	remove func()

	mutex    sync.RWMutex
	sessions map[SessionKey]SessionHandler
}

// NewRouter starts routing inbound Jingle IQs of a connection until Close is called.
func NewRouter(conn xmpp.Conn) *Router {
	r := &Router{
		conn:     conn,
		sessions: make(map[SessionKey]SessionHandler),
	}
	r.remove = conn.AddHandler(xmpp.IQPayloadFilter(Element, Namespace), r.handle)
	return r
}

// Register a SessionHandler for a session, possibly replacing an older one.
func (r *Router) Register(key SessionKey, handler SessionHandler) {
	r.mutex.Lock()
	r.sessions[key] = handler
	r.mutex.Unlock()
}

// Unregister a session, e.g., after it was terminated.
func (r *Router) Unregister(key SessionKey) {
	r.mutex.Lock()
	delete(r.sessions, key)
	r.mutex.Unlock()
}

// Len is the number of registered sessions.
func (r *Router) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.sessions)
}

// Close stops routing. Inbound Jingle IQs will not be answered afterwards.
func (r *Router) Close() {
	r.remove()
}

// Route an inbound Jingle IQ to its SessionHandler. If the Jingle element misses an initiator, the IQ's sender is
// assumed for session initiations.
func (r *Router) Route(iq *stanza.IQ) (routed bool) {
	j, ok := iq.Payload.(*Jingle)
	if !ok {
		r.reply(log.WithField("iq", iq.ID), stanza.NewErrorReply(iq, "bad-request", "no jingle payload"))
		return false
	}

	key := j.Key()
	if key.Initiator.IsZero() && j.Action() == SessionInitiate {
		key.Initiator = iq.From
	}

	r.mutex.RLock()
	handler, ok := r.sessions[key]
	r.mutex.RUnlock()

	logger := log.WithFields(log.Fields{
		"session": key,
		"action":  j.Action(),
	})

	var reply *stanza.IQ
	if !ok {
		logger.Info("Rejecting Jingle IQ for an unknown session")
		reply = stanza.NewErrorReply(iq, "item-not-found", "unknown-session")
	} else if err := handler(iq, j); err != nil {
		logger.WithError(err).Info("Session rejected Jingle IQ")
		reply = stanza.NewErrorReply(iq, "bad-request", err.Error())
	} else {
		logger.Debug("Session accepted Jingle IQ")
		reply = stanza.NewResultReply(iq, nil)
	}

	r.reply(logger, reply)
	return ok
}

func (r *Router) reply(logger *log.Entry, reply *stanza.IQ) {
	if err := r.conn.Send(reply); err != nil {
		logger.WithError(err).Warn("Sending reply to Jingle IQ errored")
	}
}

func (r *Router) handle(s stanza.Stanza) {
	r.Route(s.(*stanza.IQ))
}

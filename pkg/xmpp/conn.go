// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package xmpp

import (
	"time"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

// DefaultReplyTimeout is the default duration to wait for a reply.
const DefaultReplyTimeout = 5 * time.Second

// Conn is a client connection to a server.
type Conn interface {
	// Send a stanza to the server.
	Send(s stanza.Stanza) error

	// CreateCollector registers a Collector for inbound stanzas accepted by the Filter.
	CreateCollector(filter Filter) *Collector

	// CreateCollectorAndSend registers a Collector for the reply to an IQ request and sends it afterwards.
	CreateCollectorAndSend(iq *stanza.IQ) (*Collector, error)

	// AddHandler registers a function for inbound stanzas, see Dispatcher.AddHandler.
	AddHandler(filter Filter, handler HandlerFunc) (remove func())

	// ReplyTimeout is the default duration to wait for a reply.
	ReplyTimeout() time.Duration

	// LocalAddress is the Address this connection is bound to.
	LocalAddress() stanza.Address
}

// Session is the server side of a connection.
type Session interface {
	// Send a stanza to the connected client.
	Send(s stanza.Stanza) error

	// RemoteAddress is the Address the client is bound to.
	RemoteAddress() stanza.Address
}

// Handler processes stanzas received by a server. Stanzas of one Session are handled sequentially.
type Handler interface {
	HandleStanza(sess Session, s stanza.Stanza)
}

// HandlerFuncs lets an ordinary function act as a Handler.
type HandlerFuncs func(sess Session, s stanza.Stanza)

func (hf HandlerFuncs) HandleStanza(sess Session, s stanza.Stanza) {
	hf(sess, s)
}

// ServerAddress of a connection, derived from its local Address.
func ServerAddress(conn Conn) stanza.Address {
	return conn.LocalAddress().Server()
}

// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package xmpp provides connections to exchange stanzas with a server and the machinery to correlate inbound
// stanzas with outstanding requests.
//
// Each inbound stanza is offered to a Dispatcher, which passes it on to every registered Collector whose Filter
// accepts it. A Collector queues its stanzas until they are consumed and must be cancelled after use. The Conn
// interface combines sending with this registry. Implementations are the WebSocketConn, talking to a
// WebSocketServer, and the in-process LoopbackConn.
package xmpp

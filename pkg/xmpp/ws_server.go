// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package xmpp

import (
	"fmt"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/websocket"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

// WebSocketServer accepts WebSocketConns and passes their stanzas to a Handler. The ServeHTTP function must be
// bound to a HTTP endpoint, e.g., to /ws by a http.ServeMux.
type WebSocketServer struct {
	domain  stanza.Address
	handler Handler

	upgrader websocket.Upgrader

	sessions sync.Map // *wsSession -> struct{}
}

// NewWebSocketServer for the server's domain Address. Each inbound stanza is passed to the Handler.
func NewWebSocketServer(domain stanza.Address, handler Handler) *WebSocketServer {
	return &WebSocketServer{
		domain:  domain,
		handler: handler,
	}
}

// ServeHTTP upgrades the request to a WebSocket and serves it until the client disconnects.
func (srv *WebSocketServer) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, connErr := srv.upgrader.Upgrade(rw, r, nil)
	if connErr != nil {
		log.WithError(connErr).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}

	sess := &wsSession{srv: srv, conn: conn}
	srv.sessions.Store(sess, struct{}{})
	defer srv.sessions.Delete(sess)

	sess.serve()
}

// Close all open sessions.
func (srv *WebSocketServer) Close() {
	srv.sessions.Range(func(key, _ interface{}) bool {
		key.(*wsSession).close()
		return true
	})
}

// Sessions is the number of currently open sessions.
func (srv *WebSocketServer) Sessions() (n int) {
	srv.sessions.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return
}

// SessionsOf returns all open sessions bound to an Address. A bare Address matches each of its resources.
func (srv *WebSocketServer) SessionsOf(addr stanza.Address) (sessions []Session) {
	srv.sessions.Range(func(key, _ interface{}) bool {
		sess := key.(*wsSession)
		remote := sess.RemoteAddress()
		if !remote.IsZero() && (remote == addr || (addr.Resource == "" && remote.Bare() == addr)) {
			sessions = append(sessions, sess)
		}
		return true
	})
	return
}

// wsSession is the server side of a WebSocketConn.
type wsSession struct {
	srv  *WebSocketServer
	conn *websocket.Conn

	mutex sync.Mutex
	addr  stanza.Address
}

func (sess *wsSession) log() *log.Entry {
	return log.WithFields(log.Fields{
		"websocket session": sess.conn.RemoteAddr().String(),
		"address":           sess.RemoteAddress(),
	})
}

func (sess *wsSession) serve() {
	defer sess.close()

	for {
		if messageType, reader, err := sess.conn.NextReader(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sess.log().Debug("WebSocket session closed by client")
			} else {
				sess.log().WithError(err).Debug("Opening next WebSocket Reader errored")
			}
			return
		} else if messageType != websocket.BinaryMessage {
			sess.log().WithField("message type", messageType).Warn("WebSocket Reader's type is not binary")
			return
		} else if s, err := stanza.Unmarshal(reader); err != nil {
			sess.log().WithError(err).Warn("Unmarshal stanza errored")
			return
		} else if err := sess.handle(s); err != nil {
			sess.log().WithError(err).Warn("Handling stanza errored")
			return
		}
	}
}

func (sess *wsSession) handle(s stanza.Stanza) error {
	if iq, ok := s.(*stanza.IQ); ok && iq.Type == stanza.IQSet {
		if b, ok := iq.Payload.(*bind); ok {
			return sess.handleBind(iq, b)
		}
	}

	addr := sess.RemoteAddress()
	if addr.IsZero() {
		sess.log().WithField("stanza", s).Info("Rejecting stanza of unbound session")
		if iq, ok := s.(*stanza.IQ); ok && iq.Type.IsRequest() {
			return sess.Send(stanza.NewErrorReply(iq, "not-authorized", "bind first"))
		}
		return nil
	}

	switch s := s.(type) {
	case *stanza.IQ:
		s.From = addr
	case *stanza.Message:
		s.From = addr
	}

	sess.srv.handler.HandleStanza(sess, s)
	return nil
}

func (sess *wsSession) handleBind(iq *stanza.IQ, b *bind) error {
	sess.mutex.Lock()
	alreadyBound := !sess.addr.IsZero()
	if !alreadyBound {
		sess.addr = b.addr
	}
	sess.mutex.Unlock()

	var reply *stanza.IQ
	if alreadyBound {
		reply = stanza.NewErrorReply(iq, "conflict", "an address is already bound")
	} else if b.addr.Domain != sess.srv.domain.Domain {
		sess.mutex.Lock()
		sess.addr = stanza.Address{}
		sess.mutex.Unlock()

		reply = stanza.NewErrorReply(iq, "not-allowed",
			fmt.Sprintf("address must belong to %v", sess.srv.domain))
	} else {
		reply = stanza.NewResultReply(iq, nil)
	}
	reply.From = sess.srv.domain

	sess.log().WithField("reply", reply.Type).Info("Processed bind request")
	return sess.Send(reply)
}

// Send a stanza to the client.
func (sess *wsSession) Send(s stanza.Stanza) error {
	sess.mutex.Lock()
	defer sess.mutex.Unlock()

	w, wErr := sess.conn.NextWriter(websocket.BinaryMessage)
	if wErr != nil {
		return wErr
	}

	if cborErr := stanza.Marshal(s, w); cborErr != nil {
		return cborErr
	}

	return w.Close()
}

func (sess *wsSession) RemoteAddress() stanza.Address {
	sess.mutex.Lock()
	defer sess.mutex.Unlock()

	return sess.addr
}

func (sess *wsSession) close() {
	_ = sess.conn.Close()
}

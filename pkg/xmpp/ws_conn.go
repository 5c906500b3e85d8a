// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package xmpp

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/websocket"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

// WebSocketConn is a Conn to a WebSocketServer. Stanzas are exchanged as binary WebSocket messages in CBOR.
type WebSocketConn struct {
	*Dispatcher

	conn  *websocket.Conn
	local stanza.Address

	timeoutMutex sync.Mutex
	replyTimeout time.Duration

	writeMutex sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	readerAck chan struct{}
}

// DialWebSocket connects to a WebSocketServer's URL, e.g., ws://localhost:8080/ws, and binds the connection to
// the local Address.
func DialWebSocket(apiUrl string, local stanza.Address) (wc *WebSocketConn, err error) {
	if validErr := local.CheckValid(); validErr != nil {
		err = validErr
		return
	}

	var conn *websocket.Conn
	if conn, _, err = websocket.DefaultDialer.Dial(apiUrl, nil); err != nil {
		return
	}

	wc = &WebSocketConn{
		Dispatcher:   NewDispatcher(),
		conn:         conn,
		local:        local,
		replyTimeout: DefaultReplyTimeout,
		closed:       make(chan struct{}),
		readerAck:    make(chan struct{}),
	}

	if err = wc.bind(); err != nil {
		_ = conn.Close()
		wc = nil
		return
	}

	go wc.handleReader()

	return
}

func (wc *WebSocketConn) log() *log.Entry {
	return log.WithFields(log.Fields{
		"websocket conn": wc.conn.RemoteAddr().String(),
		"address":        wc.local,
	})
}

// bind synchronously registers the local Address, before the reader goroutine is started.
func (wc *WebSocketConn) bind() error {
	req := stanza.NewIQ(stanza.IQSet, stanza.Address{}, &bind{wc.local})
	if err := wc.writeStanza(req); err != nil {
		return err
	}

	_ = wc.conn.SetReadDeadline(time.Now().Add(wc.ReplyTimeout()))
	defer func() { _ = wc.conn.SetReadDeadline(time.Time{}) }()

	s, err := wc.readStanza()
	if err != nil {
		return err
	}

	if iq, ok := s.(*stanza.IQ); !ok || iq.ID != req.ID {
		return fmt.Errorf("expected bind reply, got %v", s)
	} else if iq.Type == stanza.IQError {
		return newStanzaError(iq)
	}

	wc.log().Debug("Bound WebSocket connection")
	return nil
}

func (wc *WebSocketConn) writeStanza(s stanza.Stanza) error {
	wc.writeMutex.Lock()
	defer wc.writeMutex.Unlock()

	w, wErr := wc.conn.NextWriter(websocket.BinaryMessage)
	if wErr != nil {
		return wErr
	}

	if cborErr := stanza.Marshal(s, w); cborErr != nil {
		return cborErr
	}

	return w.Close()
}

func (wc *WebSocketConn) readStanza() (stanza.Stanza, error) {
	if mt, r, err := wc.conn.NextReader(); err != nil {
		return nil, err
	} else if mt != websocket.BinaryMessage {
		return nil, fmt.Errorf("expected binary message, got %d", mt)
	} else {
		return stanza.Unmarshal(r)
	}
}

func (wc *WebSocketConn) handleReader() {
	defer close(wc.readerAck)
	defer wc.shutdown()

	for {
		s, err := wc.readStanza()
		if err != nil {
			select {
			case <-wc.closed:
				wc.log().WithError(err).Debug("Reader stopped due to closed connection")
			default:
				wc.log().WithError(err).Warn("Reading stanza errored")
			}
			return
		}

		wc.Dispatch(s)
	}
}

func (wc *WebSocketConn) shutdown() {
	wc.closeOnce.Do(func() {
		close(wc.closed)
		_ = wc.conn.Close()
	})
}

// Send a stanza to the server.
func (wc *WebSocketConn) Send(s stanza.Stanza) error {
	select {
	case <-wc.closed:
		return ErrNotConnected
	default:
	}

	if err := wc.writeStanza(s); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// CreateCollectorAndSend registers a reply Collector for the IQ before sending it.
func (wc *WebSocketConn) CreateCollectorAndSend(iq *stanza.IQ) (*Collector, error) {
	return wc.CollectAndSend(iq, wc.Send)
}

// ReplyTimeout is the default duration to wait for a reply.
func (wc *WebSocketConn) ReplyTimeout() time.Duration {
	wc.timeoutMutex.Lock()
	defer wc.timeoutMutex.Unlock()

	return wc.replyTimeout
}

// SetReplyTimeout changes the default duration to wait for a reply.
func (wc *WebSocketConn) SetReplyTimeout(timeout time.Duration) {
	wc.timeoutMutex.Lock()
	wc.replyTimeout = timeout
	wc.timeoutMutex.Unlock()
}

func (wc *WebSocketConn) LocalAddress() stanza.Address {
	return wc.local
}

// Close this connection and wait for the reader to finish.
func (wc *WebSocketConn) Close() error {
	wc.writeMutex.Lock()
	err := wc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	wc.writeMutex.Unlock()

	wc.shutdown()
	<-wc.readerAck

	if err == websocket.ErrCloseSent {
		err = nil
	}
	return err
}

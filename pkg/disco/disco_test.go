// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package disco

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/xmppkit/mam-go/pkg/stanza"
	"github.com/xmppkit/mam-go/pkg/xmpp"
)

func TestServerSupportsFeature(t *testing.T) {
	var requests int32

	responder := NewResponder(Identity{Category: "server", Type: "im"}, "urn:xmpp:mam:0")
	handler := xmpp.HandlerFuncs(func(sess xmpp.Session, s stanza.Stanza) {
		if iq, ok := s.(*stanza.IQ); ok {
			atomic.AddInt32(&requests, 1)
			if iq.To != stanza.MustParseAddress("example.org") {
				t.Errorf("request addressed to %v", iq.To)
			}
			responder.Handle(sess, iq)
		}
	})

	conn := xmpp.NewLoopbackConn(stanza.MustParseAddress("alice@example.org/lo"), handler)
	defer conn.Close()

	m := NewManager(conn)

	for i := 0; i < 3; i++ {
		if ok, err := m.ServerSupportsFeature("urn:xmpp:mam:0"); err != nil {
			t.Fatal(err)
		} else if !ok {
			t.Fatal("feature is not supported")
		}
	}

	if ok, err := m.ServerSupportsFeature("urn:xmpp:unknown"); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Fatal("unknown feature is supported")
	}

	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Fatalf("server received %d requests, expected one due to caching", n)
	}

	m.Forget(stanza.MustParseAddress("example.org"))
	if _, err := m.ServerSupportsFeature("urn:xmpp:mam:0"); err != nil {
		t.Fatal(err)
	} else if n := atomic.LoadInt32(&requests); n != 2 {
		t.Fatalf("server received %d requests after forgetting", n)
	}

	if n := conn.Len(); n != 0 {
		t.Fatalf("connection leaked %d collectors", n)
	}
}

func TestServerSupportsFeatureError(t *testing.T) {
	handler := xmpp.HandlerFuncs(func(sess xmpp.Session, s stanza.Stanza) {
		if iq, ok := s.(*stanza.IQ); ok {
			_ = sess.Send(stanza.NewErrorReply(iq, "service-unavailable", ""))
		}
	})

	conn := xmpp.NewLoopbackConn(stanza.MustParseAddress("alice@example.org/lo"), handler)
	defer conn.Close()

	var se *xmpp.StanzaError
	if _, err := NewManager(conn).ServerSupportsFeature("urn:xmpp:mam:0"); !errors.As(err, &se) {
		t.Fatalf("expected StanzaError, got %v", err)
	}
}

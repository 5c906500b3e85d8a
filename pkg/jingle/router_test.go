// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import (
	"errors"
	"testing"
	"time"

	"github.com/xmppkit/mam-go/pkg/stanza"
	"github.com/xmppkit/mam-go/pkg/xmpp"
)

func TestRouter(t *testing.T) {
	romeo := stanza.MustParseAddress("romeo@montague.example/orchard")
	juliet := stanza.MustParseAddress("juliet@capulet.example/balcony")

	replies := make(chan *stanza.IQ, 8)
	conn := xmpp.NewLoopbackConn(juliet, xmpp.HandlerFuncs(func(_ xmpp.Session, s stanza.Stanza) {
		if iq, ok := s.(*stanza.IQ); ok {
			replies <- iq
		}
	}))
	defer conn.Close()

	r := NewRouter(conn)
	defer r.Close()

	var received []Action
	key := SessionKey{SID: "s1", Initiator: romeo}
	r.Register(key, func(iq *stanza.IQ, j *Jingle) error {
		received = append(received, j.Action())
		if j.Action() == SessionTerminate {
			return errors.New("not now")
		}
		return nil
	})

	inbound := func(sid string, action Action, initiator stanza.Address) *stanza.IQ {
		j, err := New(sid, action, NewContent(CreatorInitiator, "audio"))
		if err != nil {
			t.Fatal(err)
		}
		j.SetInitiator(initiator)

		iq := stanza.NewIQ(stanza.IQSet, juliet, j)
		iq.From = romeo
		return iq
	}

	tests := []struct {
		iq        *stanza.IQ
		replyType stanza.IQType
		condition string
	}{
		{inbound("s1", SessionInitiate, romeo), stanza.IQResult, ""},
		{inbound("s1", SessionInitiate, stanza.Address{}), stanza.IQResult, ""},
		{inbound("s1", TransportInfo, juliet), stanza.IQError, "item-not-found"},
		{inbound("s2", TransportInfo, romeo), stanza.IQError, "item-not-found"},
		{inbound("s1", SessionTerminate, romeo), stanza.IQError, "bad-request"},
	}

	for i, test := range tests {
		if n := conn.Dispatch(test.iq); n != 1 {
			t.Fatalf("test %d: IQ had %d receivers", i, n)
		}

		select {
		case reply := <-replies:
			if reply.ID != test.iq.ID || reply.Type != test.replyType || reply.ErrorCondition != test.condition {
				t.Fatalf("test %d: unexpected reply %v (%s)", i, reply, reply.ErrorCondition)
			}
			if reply.To != romeo {
				t.Fatalf("test %d: reply addressed to %v", i, reply.To)
			}
		case <-time.After(time.Second):
			t.Fatalf("test %d: no reply", i)
		}
	}

	if len(received) != 3 {
		t.Fatalf("session received %v", received)
	}

	r.Unregister(key)
	if n := r.Len(); n != 0 {
		t.Fatalf("router has %d sessions", n)
	}

	r.Close()
	if n := conn.Dispatch(inbound("s1", SessionInfo, romeo)); n != 0 {
		t.Fatalf("closed router still received IQ")
	}
}

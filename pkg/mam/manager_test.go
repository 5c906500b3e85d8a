// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package mam

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xmppkit/mam-go/pkg/dataform"
	"github.com/xmppkit/mam-go/pkg/disco"
	"github.com/xmppkit/mam-go/pkg/rsm"
	"github.com/xmppkit/mam-go/pkg/stanza"
	"github.com/xmppkit/mam-go/pkg/xmpp"
)

var testOwner = stanza.MustParseAddress("a@x/res")

// fakeArchive is a server side Handler, answering disco#info requests and passing archive queries to a script.
type fakeArchive struct {
	responder *disco.Responder

	mutex   sync.Mutex
	queries []*QueryExtension

	script func(sess xmpp.Session, iq *stanza.IQ, qe *QueryExtension)
}

func newFakeArchive(supported bool, script func(sess xmpp.Session, iq *stanza.IQ, qe *QueryExtension)) *fakeArchive {
	features := []string{}
	if supported {
		features = append(features, Namespace)
	}

	return &fakeArchive{
		responder: disco.NewResponder(disco.Identity{Category: "server", Type: "im"}, features...),
		script:    script,
	}
}

func (fa *fakeArchive) HandleStanza(sess xmpp.Session, s stanza.Stanza) {
	iq, ok := s.(*stanza.IQ)
	if !ok || fa.responder.Handle(sess, iq) {
		return
	}

	qe, ok := iq.Payload.(*QueryExtension)
	if !ok {
		_ = sess.Send(stanza.NewErrorReply(iq, "feature-not-implemented", ""))
		return
	}

	fa.mutex.Lock()
	fa.queries = append(fa.queries, qe)
	fa.mutex.Unlock()

	fa.script(sess, iq, qe)
}

func (fa *fakeArchive) query(i int) *QueryExtension {
	fa.mutex.Lock()
	defer fa.mutex.Unlock()

	return fa.queries[i]
}

func sendResult(sess xmpp.Session, from stanza.Address, queryID, archiveID string) {
	res, err := NewResultExtension(queryID, archiveID, stanza.NewForwarded(time.Now(),
		stanza.NewMessage(stanza.MustParseAddress("b@x"), testOwner.Bare(), archiveID)))
	if err != nil {
		panic(err)
	}

	msg := stanza.NewMessage(from, sess.RemoteAddress(), "")
	msg.Type = stanza.MessageNormal
	msg.AddExtension(res)
	_ = sess.Send(msg)
}

func sendFin(sess xmpp.Session, queryID string, last rsm.Token) {
	fin := &FinExtension{QueryID: queryID}
	if !last.IsZero() {
		fin.RSM = &rsm.Set{Last: last}
	}

	msg := stanza.NewMessage(sess.RemoteAddress().Bare(), sess.RemoteAddress(), "")
	msg.Type = stanza.MessageNormal
	msg.AddExtension(fin)
	_ = sess.Send(msg)
}

func newTestManager(t *testing.T, fa *fakeArchive) (*Manager, *xmpp.LoopbackConn) {
	conn := xmpp.NewLoopbackConn(testOwner, fa)
	t.Cleanup(conn.Close)

	return NewManager(conn, disco.NewManager(conn)), conn
}

func resultBodies(pr *PageResult) (bodies []string) {
	for _, msg := range pr.Messages() {
		bodies = append(bodies, msg.Message.Body)
	}
	return
}

func TestQueryArchiveOrder(t *testing.T) {
	for _, n := range []int{0, 1, 5, 50} {
		t.Run(fmt.Sprintf("%d results", n), func(t *testing.T) {
			fa := newFakeArchive(true, func(sess xmpp.Session, iq *stanza.IQ, qe *QueryExtension) {
				for i := 0; i < n; i++ {
					sendResult(sess, testOwner.Bare(), qe.QueryID, fmt.Sprintf("m%02d", i))
				}
				sendFin(sess, qe.QueryID, "")
				_ = sess.Send(stanza.NewResultReply(iq, nil))
			})
			m, conn := newTestManager(t, fa)

			pr, err := m.QueryArchive(Builder())
			if err != nil {
				t.Fatal(err)
			}

			bodies := resultBodies(pr)
			if len(bodies) != n {
				t.Fatalf("got %d messages, expected %d", len(bodies), n)
			}
			for i, body := range bodies {
				if expected := fmt.Sprintf("m%02d", i); body != expected {
					t.Fatalf("message %d is %q, expected %q", i, body, expected)
				}
			}

			if pr.Query.ID() != fa.query(0).QueryID {
				t.Fatalf("result's query %s differs from sent query %s", pr.Query.ID(), fa.query(0).QueryID)
			}
			if fa.query(0).Form != nil || fa.query(0).RSM != nil {
				t.Fatalf("unrestricted query has form %v and rsm %v", fa.query(0).Form, fa.query(0).RSM)
			}

			if _, err := m.PageNext(pr, 10); !errors.Is(err, ErrNoMoreResults) {
				t.Fatalf("paging without continuation: %v", err)
			}

			if l := conn.Len(); l != 0 {
				t.Fatalf("%d collectors are still registered", l)
			}
		})
	}
}

func TestQueryArchiveConcurrent(t *testing.T) {
	var pending *QueryExtension

	fa := newFakeArchive(true, func(sess xmpp.Session, iq *stanza.IQ, qe *QueryExtension) {
		_ = sess.Send(stanza.NewResultReply(iq, nil))

		if pending == nil {
			pending = qe
			return
		}

		a, b := pending, qe
		for i := 0; i < 3; i++ {
			sendResult(sess, testOwner.Bare(), a.QueryID, fmt.Sprintf("%s-%d", a.QueryID, i))
			sendResult(sess, testOwner.Bare(), b.QueryID, fmt.Sprintf("%s-%d", b.QueryID, i))
		}
		sendFin(sess, b.QueryID, "")
		sendResult(sess, testOwner.Bare(), a.QueryID, fmt.Sprintf("%s-%d", a.QueryID, 3))
		sendFin(sess, a.QueryID, "")
	})
	m, conn := newTestManager(t, fa)

	if _, err := m.IsSupportedByServer(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	results := make([]*PageResult, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.QueryArchive(Builder().Max(10))
		}(i)
	}
	wg.Wait()

	for i, pr := range results {
		if errs[i] != nil {
			t.Fatal(errs[i])
		}

		for j, body := range resultBodies(pr) {
			if expected := fmt.Sprintf("%s-%d", pr.Query.ID(), j); body != expected {
				t.Fatalf("query %d: message %d is %q, expected %q", i, j, body, expected)
			}
		}
	}

	if l0, l1 := len(results[0].Results), len(results[1].Results); l0+l1 != 7 || (l0 != 3 && l0 != 4) {
		t.Fatalf("queries got %d and %d results", l0, l1)
	}

	if l := conn.Len(); l != 0 {
		t.Fatalf("%d collectors are still registered", l)
	}
}

func TestQueryArchiveIgnoresLateAndForeignResults(t *testing.T) {
	fa := newFakeArchive(true, func(sess xmpp.Session, iq *stanza.IQ, qe *QueryExtension) {
		sendResult(sess, testOwner.Bare(), qe.QueryID, "early")
		sendResult(sess, stanza.MustParseAddress("mallory@evil"), qe.QueryID, "spoofed")
		sendResult(sess, testOwner.Bare(), "other-query", "foreign")
		sendFin(sess, qe.QueryID, "tok")
		sendResult(sess, testOwner.Bare(), qe.QueryID, "late")
		_ = sess.Send(stanza.NewResultReply(iq, nil))
	})
	m, _ := newTestManager(t, fa)

	pr, err := m.QueryArchive(Builder())
	if err != nil {
		t.Fatal(err)
	}

	if bodies := resultBodies(pr); len(bodies) != 1 || bodies[0] != "early" {
		t.Fatalf("unexpected messages %v", bodies)
	}
	if pr.Continuation() != "tok" {
		t.Fatalf("continuation is %q", pr.Continuation())
	}
}

func TestQueryArchiveTimeout(t *testing.T) {
	fa := newFakeArchive(true, func(sess xmpp.Session, iq *stanza.IQ, qe *QueryExtension) {
		_ = sess.Send(stanza.NewResultReply(iq, nil))
		sendResult(sess, testOwner.Bare(), qe.QueryID, "r1")
		sendResult(sess, testOwner.Bare(), qe.QueryID, "r2")
	})
	m, conn := newTestManager(t, fa)
	conn.SetReplyTimeout(100 * time.Millisecond)

	start := time.Now()
	_, err := m.QueryArchive(Builder())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if dur := time.Since(start); dur < 100*time.Millisecond {
		t.Fatalf("query returned after %v", dur)
	}

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error %v is no TimeoutError", err)
	} else if timeoutErr.Observed != 2 {
		t.Fatalf("observed %d results, expected 2", timeoutErr.Observed)
	} else if timeoutErr.QueryID != fa.query(0).QueryID {
		t.Fatalf("timeout for query %s, expected %s", timeoutErr.QueryID, fa.query(0).QueryID)
	}

	if l := conn.Len(); l != 0 {
		t.Fatalf("%d collectors are still registered", l)
	}

	queryID := fa.query(0).QueryID
	late := stanza.NewMessage(testOwner.Bare(), testOwner, "")
	late.AddExtension(&FinExtension{QueryID: queryID})
	if n := conn.Dispatch(late); n != 0 {
		t.Fatalf("late fin was received %d times", n)
	}
}

func TestQueryArchiveScenario(t *testing.T) {
	t0 := time.Date(2022, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := time.Date(2022, 3, 2, 10, 0, 0, 0, time.UTC)

	fa := newFakeArchive(true, func(sess xmpp.Session, iq *stanza.IQ, qe *QueryExtension) {
		for i := 0; i < 3; i++ {
			sendResult(sess, testOwner.Bare(), qe.QueryID, fmt.Sprintf("r%d", i))
		}
		sendFin(sess, qe.QueryID, "tok-7")
		_ = sess.Send(stanza.NewResultReply(iq, nil))
	})
	m, _ := newTestManager(t, fa)

	pr, err := m.QueryArchive(Builder().Max(10).Start(t0).End(t1).With("b@x"))
	if err != nil {
		t.Fatal(err)
	}
	if n := len(pr.Results); n != 3 {
		t.Fatalf("got %d results", n)
	}

	first := fa.query(0)
	if first.RSM == nil || *first.RSM != (rsm.Set{Max: 10}) {
		t.Fatalf("unexpected page request %v", first.RSM)
	}

	expectedFields := []dataform.Field{
		{Var: dataform.FormTypeVar, Type: dataform.FieldHidden, Values: []string{Namespace}},
		{Var: "start", Type: dataform.FieldTextSingle, Values: []string{"2022-03-01T10:00:00.000Z"}},
		{Var: "end", Type: dataform.FieldTextSingle, Values: []string{"2022-03-02T10:00:00.000Z"}},
		{Var: "with", Type: dataform.FieldJidSingle, Values: []string{"b@x"}},
	}
	if first.Form == nil || first.Form.Type != dataform.TypeSubmit || len(first.Form.Fields) != len(expectedFields) {
		t.Fatalf("unexpected form %v", first.Form)
	}
	for i, field := range expectedFields {
		got := first.Form.Fields[i]
		if got.Var != field.Var || got.Type != field.Type || got.Value() != field.Value() {
			t.Fatalf("field %d is %v, expected %v", i, got, field)
		}
	}

	next, err := m.PageNext(pr, 10)
	if err != nil {
		t.Fatal(err)
	}

	second := fa.query(1)
	if second.RSM == nil || *second.RSM != (rsm.Set{Max: 10, After: "tok-7"}) {
		t.Fatalf("unexpected page request %v", second.RSM)
	}
	if dir, token := second.RSM.Direction(); dir != rsm.After || token != "tok-7" {
		t.Fatalf("page request points %v of %q", dir, token)
	}
	if second.QueryID == first.QueryID || next.Query.ID() == pr.Query.ID() {
		t.Fatalf("query id %s was reused", first.QueryID)
	}
	if next.Query.Filter() != pr.Query.Filter() {
		t.Fatalf("filter changed from %v to %v", pr.Query.Filter(), next.Query.Filter())
	}
	if len(second.Form.Fields) != len(expectedFields) {
		t.Fatalf("paging changed the form to %v", second.Form)
	}
}

func TestQueryArchiveUnsupported(t *testing.T) {
	fa := newFakeArchive(false, func(sess xmpp.Session, iq *stanza.IQ, qe *QueryExtension) {
		t.Errorf("unsupported server received query %s", qe.QueryID)
	})
	m, conn := newTestManager(t, fa)

	if ok, err := m.IsSupportedByServer(); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Fatal("server should not support archive queries")
	}

	if _, err := m.QueryArchive(Builder()); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
	if l := conn.Len(); l != 0 {
		t.Fatalf("%d collectors are still registered", l)
	}
}

func TestQueryArchiveStanzaError(t *testing.T) {
	fa := newFakeArchive(true, func(sess xmpp.Session, iq *stanza.IQ, qe *QueryExtension) {
		_ = sess.Send(stanza.NewErrorReply(iq, "item-not-found", "unknown token"))
	})
	m, conn := newTestManager(t, fa)

	_, err := m.QueryArchive(Builder())

	var stanzaErr *xmpp.StanzaError
	if !errors.As(err, &stanzaErr) {
		t.Fatalf("expected stanza error, got %v", err)
	} else if stanzaErr.Condition != "item-not-found" {
		t.Fatalf("unexpected condition %s", stanzaErr.Condition)
	}
	if l := conn.Len(); l != 0 {
		t.Fatalf("%d collectors are still registered", l)
	}
}

func TestQueryArchiveTransportError(t *testing.T) {
	fa := newFakeArchive(true, func(sess xmpp.Session, iq *stanza.IQ, qe *QueryExtension) {
		sendFin(sess, qe.QueryID, "")
		_ = sess.Send(stanza.NewResultReply(iq, nil))
	})
	m, conn := newTestManager(t, fa)

	if _, err := m.QueryArchive(Builder()); err != nil {
		t.Fatal(err)
	}

	conn.Close()

	_, err := m.QueryArchive(Builder())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !errors.Is(err, xmpp.ErrNotConnected) {
		t.Fatalf("transport error %v does not wrap its cause", err)
	}
	if l := conn.Len(); l != 0 {
		t.Fatalf("%d collectors are still registered", l)
	}
}

func TestPageInvalidArguments(t *testing.T) {
	m, _ := newTestManager(t, newFakeArchive(true, nil))

	q, err := Builder().Build()
	if err != nil {
		t.Fatal(err)
	}
	prev := &PageResult{Fin: &FinExtension{QueryID: q.ID(), RSM: &rsm.Set{Last: "tok"}}, Query: q}

	tests := []struct {
		name string
		f    func() error
	}{
		{"nil previous page", func() error { _, err := m.PageNext(nil, 10); return err }},
		{"zero count", func() error { _, err := m.PageNext(prev, 0); return err }},
		{"nil set", func() error { _, err := m.Page(prev, nil); return err }},
		{"before and after", func() error {
			_, err := m.Page(prev, &rsm.Set{Max: 1, After: "a", Before: "b"})
			return err
		}},
		{"negative extra timeout", func() error { return m.SetExtraTimeout(-time.Second) }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := test.f(); !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestSetTimeoutsWhileQuerying(t *testing.T) {
	fa := newFakeArchive(true, func(sess xmpp.Session, iq *stanza.IQ, qe *QueryExtension) {
		sendResult(sess, testOwner.Bare(), qe.QueryID, "m00")
		sendFin(sess, qe.QueryID, "")
		_ = sess.Send(stanza.NewResultReply(iq, nil))
	})
	m, conn := newTestManager(t, fa)

	var wg sync.WaitGroup
	errs := make(chan error, 16)

	for i := 0; i < 8; i++ {
		wg.Add(2)

		go func(i int) {
			defer wg.Done()
			if err := m.SetExtraTimeout(time.Duration(i) * time.Millisecond); err != nil {
				errs <- err
			}
			conn.SetReplyTimeout(xmpp.DefaultReplyTimeout + time.Duration(i)*time.Millisecond)
		}(i)

		go func() {
			defer wg.Done()
			if pr, err := m.QueryArchive(Builder()); err != nil {
				errs <- err
			} else if len(pr.Results) != 1 {
				errs <- fmt.Errorf("query got %d results", len(pr.Results))
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

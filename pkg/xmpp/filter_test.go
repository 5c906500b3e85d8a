// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package xmpp

import (
	"testing"
	"time"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

func TestIQReplyFilter(t *testing.T) {
	server := stanza.MustParseAddress("x")
	req := stanza.NewIQ(stanza.IQGet, server, nil)
	f := IQReplyFilter(req)

	other := stanza.NewIQ(stanza.IQGet, server, nil)
	spoofed := stanza.NewResultReply(req, nil)
	spoofed.From = stanza.MustParseAddress("mallory@y")

	tests := []struct {
		s      stanza.Stanza
		accept bool
	}{
		{stanza.NewResultReply(req, nil), true},
		{stanza.NewErrorReply(req, "bad-request", ""), true},
		{req, false},
		{stanza.NewResultReply(other, nil), false},
		{spoofed, false},
		{testMessage("a"), false},
	}

	for i, test := range tests {
		if accept := f.Accept(test.s); accept != test.accept {
			t.Fatalf("test %d: expected %t for %v", i, test.accept, test.s)
		}
	}
}

func TestFilterCombinations(t *testing.T) {
	yes := FilterFunc(func(stanza.Stanza) bool { return true })
	no := FilterFunc(func(stanza.Stanza) bool { return false })
	msg := testMessage("a")

	if !And(yes, yes).Accept(msg) || And(yes, no).Accept(msg) {
		t.Fatal("And is broken")
	}
	if !Or(no, yes).Accept(msg) || Or(no, no).Accept(msg) {
		t.Fatal("Or is broken")
	}
	if !And().Accept(msg) || Or().Accept(msg) {
		t.Fatal("empty combinations are broken")
	}
}

func TestMessageExtensionFilter(t *testing.T) {
	f := MessageExtensionFilter(stanza.ForwardedElement, stanza.ForwardedNamespace)

	msg := testMessage("")
	if f.Accept(msg) {
		t.Fatal("message without extension was accepted")
	}

	msg.AddExtension(stanza.NewForwarded(time.Now(), testMessage("inner")))
	if !f.Accept(msg) {
		t.Fatal("message with extension was rejected")
	}
}

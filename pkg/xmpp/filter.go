// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package xmpp

import (
	"github.com/xmppkit/mam-go/pkg/stanza"
)

// Filter is a predicate on inbound stanzas.
type Filter interface {
	Accept(s stanza.Stanza) bool
}

// FilterFunc lets an ordinary function act as a Filter.
type FilterFunc func(s stanza.Stanza) bool

func (f FilterFunc) Accept(s stanza.Stanza) bool {
	return f(s)
}

// And accepts a stanza iff all Filters accept it.
func And(filters ...Filter) Filter {
	return FilterFunc(func(s stanza.Stanza) bool {
		for _, f := range filters {
			if !f.Accept(s) {
				return false
			}
		}
		return true
	})
}

// Or accepts a stanza iff at least one Filter accepts it.
func Or(filters ...Filter) Filter {
	return FilterFunc(func(s stanza.Stanza) bool {
		for _, f := range filters {
			if f.Accept(s) {
				return true
			}
		}
		return false
	})
}

// IQReplyFilter accepts the result or error IQ answering the given request. If the request was addressed to
// some entity, the reply must originate from it.
func IQReplyFilter(req *stanza.IQ) Filter {
	return FilterFunc(func(s stanza.Stanza) bool {
		iq, ok := s.(*stanza.IQ)
		if !ok || iq.ID != req.ID || iq.Type.IsRequest() {
			return false
		}
		return req.To.IsZero() || iq.From.IsZero() || iq.From == req.To
	})
}

// IQPayloadFilter accepts request IQs carrying a payload with the element name and namespace.
func IQPayloadFilter(element, namespace string) Filter {
	return FilterFunc(func(s stanza.Stanza) bool {
		iq, ok := s.(*stanza.IQ)
		if !ok || !iq.Type.IsRequest() || iq.Payload == nil {
			return false
		}
		return iq.Payload.ElementName() == element && iq.Payload.Namespace() == namespace
	})
}

// MessageExtensionFilter accepts Messages carrying an Extension with the element name and namespace.
func MessageExtensionFilter(element, namespace string) Filter {
	return FilterFunc(func(s stanza.Stanza) bool {
		msg, ok := s.(*stanza.Message)
		return ok && msg.Extension(element, namespace) != nil
	})
}

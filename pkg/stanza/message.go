// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stanza

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// MessageType of a Message as defined in RFC 6121.
type MessageType string

const (
	MessageNormal    MessageType = "normal"
	MessageChat      MessageType = "chat"
	MessageGroupchat MessageType = "groupchat"
	MessageHeadline  MessageType = "headline"
	MessageError     MessageType = "error"
)

// Message is a push based Stanza, carrying an optional body and Extensions.
type Message struct {
	ID   string
	Type MessageType
	From Address
	To   Address
	Body string

	Extensions []Extension
}

// NewMessage creates a new chat Message with a fresh id.
func NewMessage(from, to Address, body string) *Message {
	return &Message{
		ID:   NewID(),
		Type: MessageChat,
		From: from,
		To:   to,
		Body: body,
	}
}

func (_ *Message) typeCode() uint64 {
	return messageCode
}

func (m *Message) StanzaID() string {
	return m.ID
}

func (m *Message) Sender() Address {
	return m.From
}

// Extension returns the first Extension matching the element name and namespace, or nil.
func (m *Message) Extension(element, namespace string) Extension {
	for _, ext := range m.Extensions {
		if ext.ElementName() == element && ext.Namespace() == namespace {
			return ext
		}
	}
	return nil
}

// AddExtension appends an Extension to this Message.
func (m *Message) AddExtension(ext Extension) {
	m.Extensions = append(m.Extensions, ext)
}

func (m *Message) String() string {
	return fmt.Sprintf("message(id=%s, type=%s, from=%v, to=%v, extensions=%d)",
		m.ID, m.Type, m.From, m.To, len(m.Extensions))
}

func (m *Message) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(6, w); err != nil {
		return err
	}

	for _, s := range []string{m.ID, string(m.Type)} {
		if err := cboring.WriteTextString(s, w); err != nil {
			return err
		}
	}

	for _, addr := range []*Address{&m.From, &m.To} {
		if err := cboring.Marshal(addr, w); err != nil {
			return err
		}
	}

	if err := cboring.WriteTextString(m.Body, w); err != nil {
		return err
	}

	return marshalExtensions(m.Extensions, w)
}

func (m *Message) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 6 {
		return fmt.Errorf("expected message array of 6 elements, got %d", n)
	}

	if id, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		m.ID = id
	}

	if t, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		m.Type = MessageType(t)
	}

	for _, addr := range []*Address{&m.From, &m.To} {
		if err := cboring.Unmarshal(addr, r); err != nil {
			return err
		}
	}

	if body, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		m.Body = body
	}

	exts, err := unmarshalExtensions(r)
	if err != nil {
		return err
	}
	m.Extensions = exts

	return nil
}

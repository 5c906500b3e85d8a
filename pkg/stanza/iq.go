// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stanza

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// IQType of an IQ, the Info/Query request-response semantic.
type IQType string

const (
	IQGet    IQType = "get"
	IQSet    IQType = "set"
	IQResult IQType = "result"
	IQError  IQType = "error"
)

// IsRequest checks if this IQType requires a reply.
func (t IQType) IsRequest() bool {
	return t == IQGet || t == IQSet
}

// IQ is a request-response Stanza. Each request of type get or set must be answered by exactly one IQ of type
// result or error, carrying the same id.
type IQ struct {
	ID   string
	Type IQType
	From Address
	To   Address

	// Payload is the single child element, might be nil for results.
	Payload Extension

	// ErrorCondition and ErrorText are only set for IQs of type error.
	ErrorCondition string
	ErrorText      string
}

// NewIQ creates a new request IQ with a fresh id.
func NewIQ(t IQType, to Address, payload Extension) *IQ {
	return &IQ{
		ID:      NewID(),
		Type:    t,
		To:      to,
		Payload: payload,
	}
}

// NewResultReply creates a result IQ for some request.
func NewResultReply(req *IQ, payload Extension) *IQ {
	return &IQ{
		ID:      req.ID,
		Type:    IQResult,
		From:    req.To,
		To:      req.From,
		Payload: payload,
	}
}

// NewErrorReply creates an error IQ for some request, e.g., with a condition of "feature-not-implemented".
func NewErrorReply(req *IQ, condition, text string) *IQ {
	return &IQ{
		ID:             req.ID,
		Type:           IQError,
		From:           req.To,
		To:             req.From,
		ErrorCondition: condition,
		ErrorText:      text,
	}
}

func (_ *IQ) typeCode() uint64 {
	return iqCode
}

func (iq *IQ) StanzaID() string {
	return iq.ID
}

func (iq *IQ) Sender() Address {
	return iq.From
}

func (iq *IQ) String() string {
	if iq.Payload == nil {
		return fmt.Sprintf("iq(id=%s, type=%s, from=%v, to=%v)", iq.ID, iq.Type, iq.From, iq.To)
	}
	return fmt.Sprintf("iq(id=%s, type=%s, from=%v, to=%v, payload=%s/%s)",
		iq.ID, iq.Type, iq.From, iq.To, iq.Payload.Namespace(), iq.Payload.ElementName())
}

func (iq *IQ) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(7, w); err != nil {
		return err
	}

	for _, s := range []string{iq.ID, string(iq.Type)} {
		if err := cboring.WriteTextString(s, w); err != nil {
			return err
		}
	}

	for _, addr := range []*Address{&iq.From, &iq.To} {
		if err := cboring.Marshal(addr, w); err != nil {
			return err
		}
	}

	var payload []Extension
	if iq.Payload != nil {
		payload = []Extension{iq.Payload}
	}
	if err := marshalExtensions(payload, w); err != nil {
		return err
	}

	for _, s := range []string{iq.ErrorCondition, iq.ErrorText} {
		if err := cboring.WriteTextString(s, w); err != nil {
			return err
		}
	}

	return nil
}

func (iq *IQ) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 7 {
		return fmt.Errorf("expected IQ array of 7 elements, got %d", n)
	}

	if id, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		iq.ID = id
	}

	if t, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		iq.Type = IQType(t)
	}

	for _, addr := range []*Address{&iq.From, &iq.To} {
		if err := cboring.Unmarshal(addr, r); err != nil {
			return err
		}
	}

	if exts, err := unmarshalExtensions(r); err != nil {
		return err
	} else if len(exts) > 1 {
		return fmt.Errorf("IQ must not contain more than one payload, got %d", len(exts))
	} else if len(exts) == 1 {
		iq.Payload = exts[0]
	}

	if cond, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		iq.ErrorCondition = cond
	}

	if text, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		iq.ErrorText = text
	}

	return nil
}

// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stanza

import (
	"fmt"
	"io"
	"reflect"

	"github.com/dtn7/cboring"
	"github.com/google/uuid"
)

// Stanza is either a Message or an IQ. Both are top-level units sent over a connection.
type Stanza interface {
	// typeCode is an unique identifier for each stanza type.
	typeCode() uint64

	// StanzaID is the id attribute, used to correlate requests and replies.
	StanzaID() string

	// Sender of this Stanza, might be zero.
	Sender() Address

	// CborMarshaler must only be implemented for the type's logic. The type code is written by Marshal.
	cboring.CborMarshaler
}

const (
	messageCode uint64 = 0
	iqCode      uint64 = 1
)

var stanzaMapping = map[uint64]reflect.Type{
	messageCode: reflect.TypeOf(Message{}),
	iqCode:      reflect.TypeOf(IQ{}),
}

// NewID creates a fresh and unique stanza id.
func NewID() string {
	return uuid.NewString()
}

// Marshal writes a Stanza wrapped with its type code as CBOR.
func Marshal(s Stanza, w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(s.typeCode(), w); err != nil {
		return err
	}

	return cboring.Marshal(s, w)
}

// Unmarshal reads the next Stanza based on its type code from CBOR.
func Unmarshal(r io.Reader) (s Stanza, err error) {
	if n, arrErr := cboring.ReadArrayLength(r); arrErr != nil {
		err = arrErr
		return
	} else if n != 2 {
		err = fmt.Errorf("expected array of two elements, got %d", n)
		return
	}

	if n, typeErr := cboring.ReadUInt(r); typeErr != nil {
		err = typeErr
		return
	} else if t, ok := stanzaMapping[n]; !ok {
		err = fmt.Errorf("no known stanza type code %d", n)
		return
	} else {
		s = reflect.New(t).Interface().(Stanza)
	}

	if stanzaErr := cboring.Unmarshal(s, r); stanzaErr != nil {
		err = stanzaErr
		s = nil
	}
	return
}

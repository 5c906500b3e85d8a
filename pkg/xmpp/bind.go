// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package xmpp

import (
	"io"

	"github.com/dtn7/cboring"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

const (
	bindElement   = "bind"
	bindNamespace = "urn:ietf:params:xml:ns:xmpp-bind"
)

// bind is an IQ payload sent from a client to bind its connection to an Address.
type bind struct {
	addr stanza.Address
}

func init() {
	stanza.RegisterExtension(&bind{})
}

func (_ *bind) ElementName() string {
	return bindElement
}

func (_ *bind) Namespace() string {
	return bindNamespace
}

func (b *bind) MarshalCbor(w io.Writer) error {
	return cboring.Marshal(&b.addr, w)
}

func (b *bind) UnmarshalCbor(r io.Reader) error {
	return cboring.Unmarshal(&b.addr, r)
}

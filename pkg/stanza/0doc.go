// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package stanza describes the units exchanged with an XMPP server: Messages and IQs, their typed Extensions
// and the Address of an entity.
//
// Stanzas are transferred as CBOR. Each Stanza is wrapped in an array of its type code and its body, comparable
// to the framing of other message based protocols. Extensions are addressed by their element name and namespace
// and must be registered by RegisterExtension to be decoded into their concrete type. Unknown Extensions are
// preserved as RawExtension.
package stanza

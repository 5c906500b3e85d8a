// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package jingle models XEP-0166 Jingle session signaling: a Jingle element with its ordered Contents, and a
// Router delivering inbound Jingle IQs to the in-progress session they belong to.
//
// A session is identified by its SessionKey, the combination of the session id and the initiator's address.
// Transport and application format negotiation is left to the session's handler.
package jingle

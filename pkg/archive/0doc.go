// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package archive provides a persistent message archive and both sides of its query protocol.
//
// The Store keeps archived messages per owner in a badgerhold database and pages through them with Result Set
// Management. A Responder serves a Store's content to connected clients, answering their mam queries. On the
// client side, a Syncer mirrors the remote archive into a local Store by walking through all pages. Export and
// Import move an owner's archive as a compressed dump.
package archive

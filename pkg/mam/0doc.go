// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package mam is a client for XEP-0313 Message Archive Management, to query a server-held message archive and
// to page through it.
//
// A query is described by an immutable Query, created by a QueryBuilder. Its unique id correlates the
// asynchronously delivered result messages and the terminal fin message with the query. The fin message carries
// an rsm.Set, whose Last Token is the continuation to request the next page:
//
//	m := mam.NewManager(conn, disco.NewManager(conn))
//	page, err := m.QueryArchive(mam.Builder().Max(10).With("bob@example.org"))
//	for err == nil {
//		// process page.Messages
//		page, err = m.PageNext(page, 10)
//	}
//	if !errors.Is(err, mam.ErrNoMoreResults) {
//		// handle error
//	}
package mam

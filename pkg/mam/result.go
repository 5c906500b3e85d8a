// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package mam

import (
	"github.com/xmppkit/mam-go/pkg/rsm"
	"github.com/xmppkit/mam-go/pkg/stanza"
)

// PageResult is one page of archived messages, as returned for a Query.
type PageResult struct {
	// Results in the order they were delivered by the server.
	Results []*ResultExtension

	// Fin terminated this page.
	Fin *FinExtension

	// Query which was used to request this page.
	Query Query
}

// Messages of this page in delivery order.
func (pr *PageResult) Messages() []*stanza.Forwarded {
	msgs := make([]*stanza.Forwarded, len(pr.Results))
	for i, res := range pr.Results {
		msgs[i] = res.Forwarded
	}
	return msgs
}

// Continuation Token for the next page, if present.
func (pr *PageResult) Continuation() rsm.Token {
	if pr.Fin == nil {
		return ""
	}
	return pr.Fin.Continuation()
}

// Complete is reported by the server if this is the last page.
func (pr *PageResult) Complete() bool {
	return pr.Fin != nil && pr.Fin.Complete
}

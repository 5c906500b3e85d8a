// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package archive

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xmppkit/mam-go/pkg/disco"
	"github.com/xmppkit/mam-go/pkg/mam"
	"github.com/xmppkit/mam-go/pkg/rsm"
	"github.com/xmppkit/mam-go/pkg/stanza"
	"github.com/xmppkit/mam-go/pkg/xmpp"
)

const (
	// DefaultPageSize is used for queries without a requested page size.
	DefaultPageSize = 50

	// MaxPageSize limits the requested page size.
	MaxPageSize = 250
)

// Deliverer looks up the sessions of a local address, e.g., a xmpp.WebSocketServer.
type Deliverer interface {
	SessionsOf(addr stanza.Address) []xmpp.Session
}

// Responder is a server side xmpp.Handler, archiving exchanged messages into a Store and answering mam queries.
type Responder struct {
	store  *Store
	domain stanza.Address
	disco  *disco.Responder

	deliverer Deliverer
}

// NewResponder for a server domain, operating on a Store.
func NewResponder(store *Store, domain stanza.Address) *Responder {
	return &Responder{
		store:  store,
		domain: domain.Server(),
		disco:  disco.NewResponder(disco.Identity{Category: "server", Type: "im", Name: "archived"}, mam.Namespace),
	}
}

// SetDeliverer enables the delivery of messages to the recipient's sessions.
func (r *Responder) SetDeliverer(d Deliverer) {
	r.deliverer = d
}

func (r *Responder) HandleStanza(sess xmpp.Session, s stanza.Stanza) {
	switch s := s.(type) {
	case *stanza.IQ:
		r.handleIQ(sess, s)

	case *stanza.Message:
		r.handleMessage(sess, s)
	}
}

func (r *Responder) send(sess xmpp.Session, s stanza.Stanza) {
	if err := sess.Send(s); err != nil {
		log.WithError(err).WithField("session", sess.RemoteAddress()).Warn("Sending stanza errored")
	}
}

func (r *Responder) handleIQ(sess xmpp.Session, iq *stanza.IQ) {
	if !iq.Type.IsRequest() || r.disco.Handle(sess, iq) {
		return
	}

	if qe, ok := iq.Payload.(*mam.QueryExtension); ok && iq.Type == stanza.IQSet {
		r.handleQuery(sess, iq, qe)
		return
	}

	r.send(sess, stanza.NewErrorReply(iq, "feature-not-implemented", ""))
}

// handleQuery answers a mam query with the result messages, the fin message and an empty IQ result.
func (r *Responder) handleQuery(sess xmpp.Session, iq *stanza.IQ, qe *mam.QueryExtension) {
	owner := sess.RemoteAddress().Bare()
	logger := log.WithFields(log.Fields{
		"owner": owner,
		"query": qe.QueryID,
	})

	filter, err := mam.FilterFromForm(qe.Form)
	if err != nil {
		logger.WithError(err).Info("Rejecting archive query with an invalid form")
		r.send(sess, stanza.NewErrorReply(iq, "bad-request", err.Error()))
		return
	}

	set := rsm.NewSet(DefaultPageSize)
	if qe.RSM != nil {
		*set = *qe.RSM
		if set.Max == 0 {
			set.Max = DefaultPageSize
		} else if set.Max > MaxPageSize {
			set.Max = MaxPageSize
		}
	}

	page, err := r.store.Query(owner, filter, set)
	switch {
	case errors.Is(err, ErrItemNotFound):
		r.send(sess, stanza.NewErrorReply(iq, "item-not-found", err.Error()))
		return
	case err != nil:
		logger.WithError(err).Warn("Querying archive errored")
		r.send(sess, stanza.NewErrorReply(iq, "internal-server-error", ""))
		return
	}

	for _, item := range page.Items {
		fwd, err := item.Forwarded()
		if err != nil {
			logger.WithError(err).WithField("item", item.Id).Warn("Skipping undecodable archive item")
			continue
		}

		res, err := mam.NewResultExtension(qe.QueryID, item.Id, fwd)
		if err != nil {
			logger.WithError(err).WithField("item", item.Id).Warn("Skipping invalid archive item")
			continue
		}

		msg := stanza.NewMessage(owner, sess.RemoteAddress(), "")
		msg.Type = stanza.MessageNormal
		msg.AddExtension(res)
		r.send(sess, msg)
	}

	fin := &mam.FinExtension{
		QueryID:  qe.QueryID,
		RSM:      &page.Set,
		Complete: page.Complete,
	}
	finMsg := stanza.NewMessage(owner, sess.RemoteAddress(), "")
	finMsg.Type = stanza.MessageNormal
	finMsg.AddExtension(fin)
	r.send(sess, finMsg)

	r.send(sess, stanza.NewResultReply(iq, nil))

	logger.WithFields(log.Fields{
		"results":  len(page.Items),
		"count":    page.Set.Count,
		"complete": page.Complete,
	}).Info("Answered archive query")
}

// handleMessage archives a message with a body for its local parties and delivers it to the recipient.
func (r *Responder) handleMessage(sess xmpp.Session, msg *stanza.Message) {
	if msg.Body == "" || msg.To.IsZero() {
		return
	}

	logger := log.WithFields(log.Fields{
		"from": msg.From,
		"to":   msg.To,
	})

	fwd := stanza.NewForwarded(time.Now(), msg)
	owners := []stanza.Address{msg.From.Bare()}
	if msg.To.Bare() != msg.From.Bare() {
		owners = append(owners, msg.To.Bare())
	}
	for _, owner := range owners {
		if owner.Domain != r.domain.Domain {
			continue
		}
		if _, err := r.store.Push(owner, "", fwd); err != nil {
			logger.WithError(err).WithField("owner", owner.Bare()).Warn("Archiving message errored")
		}
	}

	if r.deliverer == nil {
		return
	}
	for _, recipient := range r.deliverer.SessionsOf(msg.To) {
		r.send(recipient, msg)
	}
}

// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package archive

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/xmppkit/mam-go/pkg/mam"
	"github.com/xmppkit/mam-go/pkg/rsm"
	"github.com/xmppkit/mam-go/pkg/stanza"
)

// Syncer mirrors a remote archive into a local Store, page by page.
type Syncer struct {
	mam      *mam.Manager
	store    *Store
	owner    stanza.Address
	pageSize int
}

// NewSyncer for the owner's remote archive, queried by the mam.Manager.
func NewSyncer(m *mam.Manager, store *Store, owner stanza.Address, pageSize int) (*Syncer, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w: page size must be positive, is %d", mam.ErrInvalidArgument, pageSize)
	}

	return &Syncer{
		mam:      m,
		store:    store,
		owner:    owner.Bare(),
		pageSize: pageSize,
	}, nil
}

// syncKey identifies the checkpoint of an owner's archive synchronized with a Filter.
func syncKey(owner stanza.Address, filter mam.Filter) string {
	var start, end string
	if !filter.Start.IsZero() {
		start = stanza.FormatTime(filter.Start)
	}
	if !filter.End.IsZero() {
		end = stanza.FormatTime(filter.End)
	}
	return fmt.Sprintf("%v|%s|%s|%v", owner.Bare(), start, end, filter.With)
}

// Sync fetches all messages matching the Filter which are not yet mirrored. A previous Sync with the same Filter
// is resumed after the last message it fetched. The number of newly mirrored messages is returned.
func (s *Syncer) Sync(filter mam.Filter) (n int, err error) {
	key := syncKey(s.owner, filter)
	last, err := s.store.checkpoint(key)
	if err != nil {
		return
	}

	qb := mam.Builder().Max(s.pageSize).Filter(filter)
	if !last.IsZero() {
		qb.After(last)
	}

	logger := log.WithFields(log.Fields{
		"owner":  s.owner,
		"resume": last,
	})

	page, err := s.mam.QueryArchive(qb)
	for err == nil {
		for _, res := range page.Results {
			_, inserted, pushErr := s.store.push(s.owner, res.ID, res.Forwarded)
			if pushErr != nil {
				return n, pushErr
			}
			if inserted {
				n++
			}
		}

		if len(page.Results) > 0 {
			if err = s.store.setCheckpoint(key, rsm.Token(page.Results[len(page.Results)-1].ID)); err != nil {
				break
			}
		}

		logger.WithFields(log.Fields{
			"page":         len(page.Results),
			"synchronized": n,
		}).Debug("Mirrored archive page")

		if page.Complete() {
			break
		}
		page, err = s.mam.PageNext(page, s.pageSize)
	}

	if errors.Is(err, mam.ErrNoMoreResults) {
		err = nil
	}

	if err != nil {
		logger.WithField("synchronized", n).WithError(err).Warn("Archive synchronization errored")
	} else {
		logger.WithField("synchronized", n).Info("Archive synchronization finished")
	}
	return
}

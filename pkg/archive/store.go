// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package archive

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold"

	"github.com/xmppkit/mam-go/pkg/mam"
	"github.com/xmppkit/mam-go/pkg/rsm"
	"github.com/xmppkit/mam-go/pkg/stanza"
)

// ErrItemNotFound is returned for unknown archive ids, also when used as a page reference.
var ErrItemNotFound = errors.New("archive: item not found")

// Store implements a persistent archive of forwarded messages for multiple owners.
type Store struct {
	bh *badgerhold.Store

	seqMutex sync.Mutex
	seq      uint64
}

// NewStore creates a new Store or opens an existing Store from the given path.
func NewStore(dir string) (s *Store, err error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.Logger = log.StandardLogger()
	opts.Options.ValueLogFileSize = 1<<28 - 1

	if dirErr := os.MkdirAll(dir, 0700); dirErr != nil {
		err = dirErr
		return
	}

	bh, bhErr := badgerhold.Open(opts)
	if bhErr != nil {
		err = bhErr
		return
	}

	s = &Store{bh: bh}

	var last []Item
	if err = bh.Find(&last, badgerhold.Where("Seq").Ge(uint64(0)).SortBy("Seq").Reverse().Limit(1)); err != nil {
		_ = bh.Close()
		s = nil
		return
	}
	if len(last) == 1 {
		s.seq = last[0].Seq
	}

	log.WithFields(log.Fields{
		"dir": dir,
		"seq": s.seq,
	}).Debug("Opened archive store")
	return
}

// Close the Store. It must not be used afterwards.
func (s *Store) Close() error {
	return s.bh.Close()
}

// Push a forwarded message into an owner's archive. A new archive id is generated if the given id is empty.
// Pushing an already known id is ignored and returns the known Item.
func (s *Store) Push(owner stanza.Address, id string, fwd *stanza.Forwarded) (item Item, err error) {
	item, _, err = s.push(owner, id, fwd)
	return
}

// push is Push, additionally reporting if a new Item was inserted.
func (s *Store) push(owner stanza.Address, id string, fwd *stanza.Forwarded) (item Item, inserted bool, err error) {
	if id == "" {
		id = uuid.NewString()
	}

	logger := log.WithFields(log.Fields{
		"owner": owner.Bare(),
		"id":    id,
	})

	if item, err = newItem(owner, id, fwd); err != nil {
		return
	}

	s.seqMutex.Lock()
	defer s.seqMutex.Unlock()

	if known, getErr := s.Get(owner, id); getErr == nil {
		logger.Debug("Archive id is known, ignoring push")
		return known, false, nil
	}

	item.Seq = s.seq + 1
	if err = s.bh.Insert(item.Key, item); err != nil {
		logger.WithError(err).Warn("Inserting archive item errored")
		return
	}
	s.seq = item.Seq

	logger.WithField("with", item.With).Debug("Archived message")
	return item, true, nil
}

// Get an Item by its owner and archive id.
func (s *Store) Get(owner stanza.Address, id string) (item Item, err error) {
	err = s.bh.Get(itemKey(owner, id), &item)
	if errors.Is(err, badgerhold.ErrNotFound) {
		err = fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return
}

// Last Item of an owner's archive, in insertion order.
func (s *Store) Last(owner stanza.Address) (item Item, err error) {
	var items []Item
	q := badgerhold.Where("Owner").Eq(owner.Bare().String()).Index("Owner").SortBy("Seq").Reverse().Limit(1)
	if err = s.bh.Find(&items, q); err != nil {
		return
	}
	if len(items) == 0 {
		err = fmt.Errorf("%w: archive of %v is empty", ErrItemNotFound, owner.Bare())
		return
	}
	return items[0], nil
}

// filterQuery selects all Items of an owner matching the Filter.
func filterQuery(owner stanza.Address, filter mam.Filter) *badgerhold.Query {
	q := badgerhold.Where("Owner").Eq(owner.Bare().String()).Index("Owner")
	if !filter.Start.IsZero() {
		q = q.And("Stamp").Ge(filter.Start.UTC())
	}
	if !filter.End.IsZero() {
		q = q.And("Stamp").Le(filter.End.UTC())
	}
	if !filter.With.IsZero() {
		if filter.With.Resource == "" {
			q = q.And("WithBare").Eq(filter.With.String())
		} else {
			q = q.And("With").Eq(filter.With.String())
		}
	}
	return q
}

// find all Items of an owner, matching the Filter, in insertion order.
func (s *Store) find(owner stanza.Address, filter mam.Filter) (items []Item, err error) {
	err = s.bh.Find(&items, filterQuery(owner, filter).SortBy("Seq"))
	return
}

// count the Items of an owner matching the Filter.
func (s *Store) count(owner stanza.Address, filter mam.Filter) (int, error) {
	results, err := s.bh.FindAggregate(&Item{}, filterQuery(owner, filter))
	if err != nil || len(results) == 0 {
		return 0, err
	}
	return results[0].Count(), nil
}

// Count the Items of an owner's archive.
func (s *Store) Count(owner stanza.Address) (int, error) {
	return s.count(owner, mam.Filter{})
}

// Page is a part of an owner's archive, as selected by Query.
type Page struct {
	Items []Item

	// Set names the first and last Item and the total count of matching Items.
	Set rsm.Set

	// Complete is true if this is the last page in the requested direction.
	Complete bool
}

// Query a page of an owner's archive. The request Set might be nil, resulting in all matching Items. Its tokens
// reference archive ids of this owner; the referenced Item itself does not need to match the Filter.
func (s *Store) Query(owner stanza.Address, filter mam.Filter, set *rsm.Set) (page Page, err error) {
	if set == nil {
		set = &rsm.Set{}
	} else if err = set.CheckValid(); err != nil {
		return
	}

	dir, token := set.Direction()

	q := filterQuery(owner, filter)
	if !token.IsZero() {
		anchor, anchorErr := s.Get(owner, string(token))
		if anchorErr != nil {
			err = anchorErr
			return
		}

		if dir == rsm.Before {
			q = q.And("Seq").Lt(anchor.Seq)
		} else {
			q = q.And("Seq").Gt(anchor.Seq)
		}
	}

	q = q.SortBy("Seq")
	if dir == rsm.Before {
		q = q.Reverse()
	}
	// One more Item than requested tells if this page is the last one.
	if set.Max > 0 {
		q = q.Limit(set.Max + 1)
	}

	var items []Item
	if err = s.bh.Find(&items, q); err != nil {
		return
	}

	page.Complete = set.Max == 0 || len(items) <= set.Max
	if !page.Complete {
		items = items[:set.Max]
	}
	if dir == rsm.Before {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}

	if page.Set.Count, err = s.count(owner, filter); err != nil {
		return
	}

	page.Items = items
	if len(page.Items) > 0 {
		page.Set.First = rsm.Token(page.Items[0].Id)
		page.Set.Last = rsm.Token(page.Items[len(page.Items)-1].Id)
	}
	return
}

// checkpoint returns the last archive id mirrored under the key, or an empty Token.
func (s *Store) checkpoint(key string) (rsm.Token, error) {
	var cp checkpoint
	if err := s.bh.Get(key, &cp); errors.Is(err, badgerhold.ErrNotFound) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return rsm.Token(cp.Last), nil
}

// setCheckpoint stores the last archive id mirrored under the key.
func (s *Store) setCheckpoint(key string, last rsm.Token) error {
	return s.bh.Upsert(key, checkpoint{Key: key, Last: string(last)})
}

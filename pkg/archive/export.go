// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package archive

import (
	"bufio"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
	log "github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"

	"github.com/xmppkit/mam-go/pkg/mam"
	"github.com/xmppkit/mam-go/pkg/stanza"
)

// Export an owner's archive as a xz compressed CBOR array of Items, in insertion order.
func (s *Store) Export(owner stanza.Address, w io.Writer) (n int, err error) {
	items, err := s.find(owner, mam.Filter{})
	if err != nil {
		return
	}

	xzW, err := xz.NewWriter(w)
	if err != nil {
		return
	}

	bw := bufio.NewWriter(xzW)
	if err = cboring.WriteArrayLength(uint64(len(items)), bw); err != nil {
		return
	}
	for i := range items {
		if err = cboring.Marshal(&items[i], bw); err != nil {
			return
		}
		n++
	}

	if err = bw.Flush(); err != nil {
		return
	}
	if err = xzW.Close(); err != nil {
		return
	}

	log.WithFields(log.Fields{
		"owner": owner.Bare(),
		"items": n,
	}).Info("Exported archive")
	return
}

// Import an export into the Store. Items already known by their archive id are skipped; the owner of each Item
// is taken from the export.
func (s *Store) Import(r io.Reader) (n int, err error) {
	xzR, err := xz.NewReader(r)
	if err != nil {
		return
	}

	br := bufio.NewReader(xzR)
	length, err := cboring.ReadArrayLength(br)
	if err != nil {
		return
	}

	for i := uint64(0); i < length; i++ {
		var item Item
		if err = cboring.Unmarshal(&item, br); err != nil {
			err = fmt.Errorf("reading item %d errored: %w", i, err)
			return
		}

		owner, ownerErr := stanza.ParseAddress(item.Owner)
		if ownerErr != nil {
			err = fmt.Errorf("item %s has an invalid owner: %w", item.Id, ownerErr)
			return
		}

		fwd, fwdErr := item.Forwarded()
		if fwdErr != nil {
			err = fmt.Errorf("item %s has an invalid message: %w", item.Id, fwdErr)
			return
		}

		if _, err = s.Push(owner, item.Id, fwd); err != nil {
			return
		}
		n++
	}

	log.WithField("items", n).Info("Imported archive")
	return
}

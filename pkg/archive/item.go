// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package archive

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/dtn7/cboring"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

// Item is an archived message together with its meta data. The Store operates on Items.
type Item struct {
	Key string `badgerhold:"key"`
	Id  string

	Seq      uint64    `badgerholdIndex:"Seq"`
	Owner    string    `badgerholdIndex:"Owner"`
	With     string    `badgerholdIndex:"With"`
	WithBare string    `badgerholdIndex:"WithBare"`
	Stamp    time.Time `badgerholdIndex:"Stamp"`

	// Data is the CBOR encoded stanza.Forwarded.
	Data []byte
}

// itemKey is unique for an owner's archive id.
func itemKey(owner stanza.Address, id string) string {
	return owner.Bare().String() + " " + id
}

// newItem for a forwarded message, archived for its owner.
func newItem(owner stanza.Address, id string, fwd *stanza.Forwarded) (item Item, err error) {
	if fwd == nil || fwd.Message == nil {
		err = fmt.Errorf("forwarded message is missing")
		return
	}

	with := fwd.Message.To
	if fwd.Message.From.Bare() != owner.Bare() {
		with = fwd.Message.From
	}

	buf := new(bytes.Buffer)
	if err = cboring.Marshal(fwd, buf); err != nil {
		return
	}

	item = Item{
		Key: itemKey(owner, id),
		Id:  id,

		Owner:    owner.Bare().String(),
		With:     with.String(),
		WithBare: with.Bare().String(),
		Stamp:    fwd.Stamp.UTC(),

		Data: buf.Bytes(),
	}
	return
}

// Forwarded message of this Item.
func (item Item) Forwarded() (*stanza.Forwarded, error) {
	fwd := new(stanza.Forwarded)
	if err := cboring.Unmarshal(fwd, bytes.NewBuffer(item.Data)); err != nil {
		return nil, err
	}
	return fwd, nil
}

func (item Item) String() string {
	return fmt.Sprintf("item(id=%s, owner=%s, with=%s, stamp=%s)",
		item.Id, item.Owner, item.With, stanza.FormatTime(item.Stamp))
}

// MarshalCbor writes this Item for an export. The sequence number and the key are local to a Store.
func (item *Item) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	for _, s := range []string{item.Owner, item.Id} {
		if err := cboring.WriteTextString(s, w); err != nil {
			return err
		}
	}

	return cboring.WriteByteString(item.Data, w)
}

// UnmarshalCbor reads an exported Item. Only the owner, the id and the data are set.
func (item *Item) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return fmt.Errorf("expected item array of 3 elements, got %d", n)
	}

	for _, s := range []*string{&item.Owner, &item.Id} {
		if str, err := cboring.ReadTextString(r); err != nil {
			return err
		} else {
			*s = str
		}
	}

	if data, err := cboring.ReadByteString(r); err != nil {
		return err
	} else {
		item.Data = data
	}
	return nil
}

// checkpoint is the last archive id a Syncer mirrored for one owner and Filter.
type checkpoint struct {
	Key  string `badgerhold:"key"`
	Last string
}

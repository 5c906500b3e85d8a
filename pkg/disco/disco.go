// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package disco implements the info part of XEP-0030 Service Discovery, used to check if an entity supports some
// feature before using it.
package disco

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

const (
	InfoElement   = "query"
	InfoNamespace = "http://jabber.org/protocol/disco#info"
)

// Identity of an entity, e.g., category "server" and type "im".
type Identity struct {
	Category string
	Type     string
	Name     string
}

// Info is both the request and the response payload of a disco#info query. Requests are left empty.
type Info struct {
	Node       string
	Identities []Identity
	Features   []string
}

func init() {
	stanza.RegisterExtension(&Info{})
}

// HasFeature checks if some feature is listed.
func (info *Info) HasFeature(feature string) bool {
	for _, f := range info.Features {
		if f == feature {
			return true
		}
	}
	return false
}

func (_ *Info) ElementName() string {
	return InfoElement
}

func (_ *Info) Namespace() string {
	return InfoNamespace
}

func (info *Info) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	if err := cboring.WriteTextString(info.Node, w); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(uint64(len(info.Identities)), w); err != nil {
		return err
	}
	for _, id := range info.Identities {
		if err := cboring.WriteArrayLength(3, w); err != nil {
			return err
		}
		for _, s := range []string{id.Category, id.Type, id.Name} {
			if err := cboring.WriteTextString(s, w); err != nil {
				return err
			}
		}
	}

	if err := cboring.WriteArrayLength(uint64(len(info.Features)), w); err != nil {
		return err
	}
	for _, f := range info.Features {
		if err := cboring.WriteTextString(f, w); err != nil {
			return err
		}
	}

	return nil
}

func (info *Info) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return fmt.Errorf("expected disco info array of 3 elements, got %d", n)
	}

	if node, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		info.Node = node
	}

	ids, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	for i := uint64(0); i < ids; i++ {
		if n, err := cboring.ReadArrayLength(r); err != nil {
			return err
		} else if n != 3 {
			return fmt.Errorf("expected identity array of 3 elements, got %d", n)
		}

		var id Identity
		for _, s := range []*string{&id.Category, &id.Type, &id.Name} {
			if *s, err = cboring.ReadTextString(r); err != nil {
				return err
			}
		}
		info.Identities = append(info.Identities, id)
	}

	features, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	for i := uint64(0); i < features; i++ {
		if f, err := cboring.ReadTextString(r); err != nil {
			return err
		} else {
			info.Features = append(info.Features, f)
		}
	}

	return nil
}

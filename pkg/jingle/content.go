// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
	"github.com/hashicorp/go-multierror"
)

// Creator of a Content, the party which originally proposed it.
type Creator string

const (
	CreatorInitiator Creator = "initiator"
	CreatorResponder Creator = "responder"
)

// Senders names the parties which will generate content.
type Senders string

const (
	SendersBoth      Senders = "both"
	SendersInitiator Senders = "initiator"
	SendersNone      Senders = "none"
	SendersResponder Senders = "responder"
)

// Content is a negotiated content descriptor of a session, e.g., a single audio stream.
type Content struct {
	XMLName xml.Name `xml:"content"`

	Creator     Creator `xml:"creator,attr"`
	Disposition string  `xml:"disposition,attr,omitempty"`
	Name        string  `xml:"name,attr"`
	Senders     Senders `xml:"senders,attr,omitempty"`
}

// NewContent with the given creator and name, negotiated for both senders.
func NewContent(creator Creator, name string) *Content {
	return &Content{
		Creator: creator,
		Name:    name,
		Senders: SendersBoth,
	}
}

// CheckValid returns an error for incorrect Contents.
func (c *Content) CheckValid() (errs error) {
	if c.Name == "" {
		errs = multierror.Append(errs, fmt.Errorf("content name must not be empty"))
	}

	switch c.Creator {
	case CreatorInitiator, CreatorResponder:
	default:
		errs = multierror.Append(errs, fmt.Errorf("content %q has unknown creator %q", c.Name, c.Creator))
	}

	switch c.Senders {
	case "", SendersBoth, SendersInitiator, SendersNone, SendersResponder:
	default:
		errs = multierror.Append(errs, fmt.Errorf("content %q has unknown senders %q", c.Name, c.Senders))
	}

	return
}

func (c *Content) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}

	for _, s := range []string{string(c.Creator), c.Disposition, c.Name, string(c.Senders)} {
		if err := cboring.WriteTextString(s, w); err != nil {
			return err
		}
	}
	return nil
}

func (c *Content) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 4 {
		return fmt.Errorf("expected content array of 4 elements, got %d", n)
	}

	var fields [4]string
	for i := range fields {
		if s, err := cboring.ReadTextString(r); err != nil {
			return err
		} else {
			fields[i] = s
		}
	}

	c.Creator = Creator(fields[0])
	c.Disposition = fields[1]
	c.Name = fields[2]
	c.Senders = Senders(fields[3])

	return c.CheckValid()
}

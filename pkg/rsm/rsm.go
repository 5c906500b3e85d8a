// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package rsm implements Result Set Management as defined in XEP-0059, used to page through large result sets.
//
// A request Set limits the page size and references an item of the previous page by its opaque Token. A response
// Set names the first and last item of the delivered page, the latter acting as the continuation Token for the
// next page.
package rsm

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
	"github.com/hashicorp/go-multierror"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

const (
	Element   = "set"
	Namespace = "http://jabber.org/protocol/rsm"
)

// Token is an opaque cursor into a result set, issued by the server. Clients must not interpret it.
type Token string

// IsZero checks if this Token is absent.
func (t Token) IsZero() bool {
	return t == ""
}

// Direction to page in, relative to a Token.
type Direction int

const (
	// After requests the page following the Token.
	After Direction = iota

	// Before requests the page preceding the Token.
	Before
)

func (d Direction) String() string {
	switch d {
	case After:
		return "after"
	case Before:
		return "before"
	default:
		return fmt.Sprintf("unknown direction %d", int(d))
	}
}

// Set is both a page request and a page response.
type Set struct {
	// Max is the requested page size. Zero leaves the page size to the server.
	Max int

	// After and Before reference an item for the requested page.
	After  Token
	Before Token

	// First and Last name the first and the last item of the delivered page.
	First Token
	Last  Token

	// Count is the total size of the result set, as reported by the server.
	Count int
}

func init() {
	stanza.RegisterExtension(&Set{})
}

// NewSet creates a page request only limiting the page size.
func NewSet(max int) *Set {
	return &Set{Max: max}
}

// NewPageSet creates a page request for max items in the given Direction of a Token.
func NewPageSet(max int, token Token, dir Direction) *Set {
	s := NewSet(max)
	switch dir {
	case Before:
		s.Before = token
	default:
		s.After = token
	}
	return s
}

// Direction and Token of a page request. A Set without any reference pages forward from the beginning.
func (s *Set) Direction() (Direction, Token) {
	if !s.Before.IsZero() {
		return Before, s.Before
	}
	return After, s.After
}

// CheckValid returns an error for incorrect Sets.
func (s *Set) CheckValid() (errs error) {
	if s.Max < 0 {
		errs = multierror.Append(errs, fmt.Errorf("rsm: max must not be negative, is %d", s.Max))
	}
	if s.Count < 0 {
		errs = multierror.Append(errs, fmt.Errorf("rsm: count must not be negative, is %d", s.Count))
	}
	if !s.After.IsZero() && !s.Before.IsZero() {
		errs = multierror.Append(errs, fmt.Errorf("rsm: after and before are mutually exclusive"))
	}
	return
}

func (_ *Set) ElementName() string {
	return Element
}

func (_ *Set) Namespace() string {
	return Namespace
}

func (s *Set) String() string {
	return fmt.Sprintf("rsm(max=%d, after=%q, before=%q, first=%q, last=%q, count=%d)",
		s.Max, s.After, s.Before, s.First, s.Last, s.Count)
}

func (s *Set) MarshalCbor(w io.Writer) error {
	if err := s.CheckValid(); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(6, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(uint64(s.Max), w); err != nil {
		return err
	}

	for _, token := range []Token{s.After, s.Before, s.First, s.Last} {
		if err := cboring.WriteTextString(string(token), w); err != nil {
			return err
		}
	}

	return cboring.WriteUInt(uint64(s.Count), w)
}

func (s *Set) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 6 {
		return fmt.Errorf("expected rsm array of 6 elements, got %d", n)
	}

	if max, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		s.Max = int(max)
	}

	for _, token := range []*Token{&s.After, &s.Before, &s.First, &s.Last} {
		if str, err := cboring.ReadTextString(r); err != nil {
			return err
		} else {
			*token = Token(str)
		}
	}

	if count, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		s.Count = int(count)
	}

	return s.CheckValid()
}

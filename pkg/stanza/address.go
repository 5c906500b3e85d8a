// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stanza

import (
	"fmt"
	"io"
	"strings"

	"github.com/dtn7/cboring"
	"github.com/hashicorp/go-multierror"
)

// Address of an XMPP entity, commonly called JID, in the form of local@domain/resource. Only the domain part is
// mandatory. An Address is comparable and might be used as a map key.
type Address struct {
	Local    string
	Domain   string
	Resource string
}

// ParseAddress from its string representation.
func ParseAddress(s string) (a Address, err error) {
	rest := s

	if i := strings.Index(rest, "/"); i >= 0 {
		a.Resource = rest[i+1:]
		rest = rest[:i]
	}

	if i := strings.Index(rest, "@"); i >= 0 {
		a.Local = rest[:i]
		rest = rest[i+1:]
	}

	a.Domain = rest

	if validErr := a.CheckValid(); validErr != nil {
		err = fmt.Errorf("address %q: %w", s, validErr)
	}
	return
}

// MustParseAddress parses an Address and panics on errors. Only use this for constant values, e.g., in tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// CheckValid returns an error for incorrect Addresses.
func (a Address) CheckValid() (errs error) {
	if a.Domain == "" {
		errs = multierror.Append(errs, fmt.Errorf("domain part is empty"))
	}
	if strings.ContainsAny(a.Domain, "@/ ") {
		errs = multierror.Append(errs, fmt.Errorf("domain part %q contains illegal characters", a.Domain))
	}
	if strings.ContainsAny(a.Local, "@/ \"&'<>:") {
		errs = multierror.Append(errs, fmt.Errorf("local part %q contains illegal characters", a.Local))
	}
	return
}

// IsZero checks if this Address was left empty.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Bare returns this Address without its resource part.
func (a Address) Bare() Address {
	return Address{Local: a.Local, Domain: a.Domain}
}

// Server returns the domain part as an Address.
func (a Address) Server() Address {
	return Address{Domain: a.Domain}
}

func (a Address) String() string {
	var sb strings.Builder
	if a.Local != "" {
		sb.WriteString(a.Local)
		sb.WriteString("@")
	}
	sb.WriteString(a.Domain)
	if a.Resource != "" {
		sb.WriteString("/")
		sb.WriteString(a.Resource)
	}
	return sb.String()
}

// MarshalCbor writes this Address as a CBOR text string. A zero Address results in an empty string.
func (a *Address) MarshalCbor(w io.Writer) error {
	return cboring.WriteTextString(a.String(), w)
}

// UnmarshalCbor reads an Address from a CBOR text string.
func (a *Address) UnmarshalCbor(r io.Reader) error {
	s, err := cboring.ReadTextString(r)
	if err != nil {
		return err
	}

	if s == "" {
		*a = Address{}
		return nil
	}

	addr, addrErr := ParseAddress(s)
	if addrErr != nil {
		return addrErr
	}
	*a = addr
	return nil
}

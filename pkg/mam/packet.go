// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package mam

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"

	"github.com/xmppkit/mam-go/pkg/dataform"
	"github.com/xmppkit/mam-go/pkg/rsm"
	"github.com/xmppkit/mam-go/pkg/stanza"
)

// Namespace of Message Archive Management.
const Namespace = "urn:xmpp:mam:0"

const (
	QueryElement  = "query"
	ResultElement = "result"
	FinElement    = "fin"
)

func init() {
	stanza.RegisterExtension(&QueryExtension{})
	stanza.RegisterExtension(&ResultExtension{})
	stanza.RegisterExtension(&FinExtension{})
}

// QueryExtension is the payload of the IQ sent to query the archive.
type QueryExtension struct {
	QueryID string
	Form    *dataform.Form
	RSM     *rsm.Set
}

func (_ *QueryExtension) ElementName() string {
	return QueryElement
}

func (_ *QueryExtension) Namespace() string {
	return Namespace
}

func (qe *QueryExtension) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	if err := cboring.WriteTextString(qe.QueryID, w); err != nil {
		return err
	}

	if err := marshalOptional(qe.Form != nil, qe.Form, w); err != nil {
		return err
	}
	return marshalOptional(qe.RSM != nil, qe.RSM, w)
}

func (qe *QueryExtension) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return fmt.Errorf("expected query array of 3 elements, got %d", n)
	}

	if queryID, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		qe.QueryID = queryID
	}

	form := new(dataform.Form)
	if present, err := unmarshalOptional(form, r); err != nil {
		return err
	} else if present {
		qe.Form = form
	}

	set := new(rsm.Set)
	if present, err := unmarshalOptional(set, r); err != nil {
		return err
	} else if present {
		qe.RSM = set
	}

	return nil
}

// ResultExtension is a single archived message, delivered within a Message.
type ResultExtension struct {
	QueryID   string
	ID        string
	Forwarded *stanza.Forwarded
}

// NewResultExtension for an archived message. The archive id must not be empty.
func NewResultExtension(queryID, id string, forwarded *stanza.Forwarded) (*ResultExtension, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: result id must not be empty", ErrInvalidArgument)
	}
	if forwarded == nil || forwarded.Message == nil {
		return nil, fmt.Errorf("%w: result must contain a forwarded message", ErrInvalidArgument)
	}

	return &ResultExtension{
		QueryID:   queryID,
		ID:        id,
		Forwarded: forwarded,
	}, nil
}

// ResultFrom extracts the ResultExtension of a Message. An error is returned if there is none or if it is invalid.
func ResultFrom(msg *stanza.Message) (*ResultExtension, error) {
	re, ok := msg.Extension(ResultElement, Namespace).(*ResultExtension)
	if !ok {
		return nil, fmt.Errorf("message %s contains no archive result", msg.ID)
	}
	return NewResultExtension(re.QueryID, re.ID, re.Forwarded)
}

func (_ *ResultExtension) ElementName() string {
	return ResultElement
}

func (_ *ResultExtension) Namespace() string {
	return Namespace
}

func (re *ResultExtension) MarshalCbor(w io.Writer) error {
	if re.Forwarded == nil {
		return fmt.Errorf("result %s has no forwarded message", re.ID)
	}

	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	for _, s := range []string{re.QueryID, re.ID} {
		if err := cboring.WriteTextString(s, w); err != nil {
			return err
		}
	}

	return cboring.Marshal(re.Forwarded, w)
}

func (re *ResultExtension) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return fmt.Errorf("expected result array of 3 elements, got %d", n)
	}

	for _, s := range []*string{&re.QueryID, &re.ID} {
		if str, err := cboring.ReadTextString(r); err != nil {
			return err
		} else {
			*s = str
		}
	}

	re.Forwarded = new(stanza.Forwarded)
	return cboring.Unmarshal(re.Forwarded, r)
}

// FinExtension terminates the results of a query. Its RSM names the delivered page.
type FinExtension struct {
	QueryID string
	RSM     *rsm.Set

	// Complete is set by the server if the last page was delivered.
	Complete bool
}

// FinFrom extracts the FinExtension of a Message, or returns an error.
func FinFrom(msg *stanza.Message) (*FinExtension, error) {
	fe, ok := msg.Extension(FinElement, Namespace).(*FinExtension)
	if !ok {
		return nil, fmt.Errorf("message %s contains no fin", msg.ID)
	}
	return fe, nil
}

// Continuation is the Token to request the following page. It is empty if the server did not return one.
func (fe *FinExtension) Continuation() rsm.Token {
	if fe.RSM == nil {
		return ""
	}
	return fe.RSM.Last
}

func (_ *FinExtension) ElementName() string {
	return FinElement
}

func (_ *FinExtension) Namespace() string {
	return Namespace
}

func (fe *FinExtension) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}

	if err := cboring.WriteTextString(fe.QueryID, w); err != nil {
		return err
	}

	if err := marshalOptional(fe.RSM != nil, fe.RSM, w); err != nil {
		return err
	}

	return cboring.WriteBoolean(fe.Complete, w)
}

func (fe *FinExtension) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return fmt.Errorf("expected fin array of 3 elements, got %d", n)
	}

	if queryID, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		fe.QueryID = queryID
	}

	set := new(rsm.Set)
	if present, err := unmarshalOptional(set, r); err != nil {
		return err
	} else if present {
		fe.RSM = set
	}

	if complete, err := cboring.ReadBoolean(r); err != nil {
		return err
	} else {
		fe.Complete = complete
	}

	return nil
}

// marshalOptional writes an array of zero or one element.
func marshalOptional(present bool, cm cboring.CborMarshaler, w io.Writer) error {
	if !present {
		return cboring.WriteArrayLength(0, w)
	}

	if err := cboring.WriteArrayLength(1, w); err != nil {
		return err
	}
	return cboring.Marshal(cm, w)
}

// unmarshalOptional reads an array of zero or one element.
func unmarshalOptional(cm cboring.CborMarshaler, r io.Reader) (present bool, err error) {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return
	}

	switch n {
	case 0:
		return false, nil
	case 1:
		return true, cboring.Unmarshal(cm, r)
	default:
		return false, fmt.Errorf("expected optional array of 0 or 1 elements, got %d", n)
	}
}

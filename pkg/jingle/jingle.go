// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dtn7/cboring"
	"github.com/google/uuid"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

const (
	Element   = "jingle"
	Namespace = "urn:xmpp:jingle:1"
)

// ErrInvalidArgument indicates a malformed Jingle element or Content.
var ErrInvalidArgument = errors.New("jingle: invalid argument")

func init() {
	stanza.RegisterExtension(&Jingle{})
}

// NewSID generates a fresh session id.
func NewSID() string {
	return uuid.NewString()
}

// Jingle is the signaling payload of a session. Its Contents are ordered and might be modified concurrently.
type Jingle struct {
	mutex sync.Mutex

	sid       string
	action    Action
	initiator stanza.Address
	responder stanza.Address
	contents  []*Content
}

// New Jingle element for a session and action, starting with some Contents.
func New(sid string, action Action, contents ...*Content) (*Jingle, error) {
	j := &Jingle{
		sid:    sid,
		action: action,
	}

	if err := j.AddContents(contents); err != nil {
		return nil, err
	}
	return j, nil
}

// SID is the session id.
func (j *Jingle) SID() string {
	return j.sid
}

func (j *Jingle) Action() Action {
	return j.action
}

func (j *Jingle) Initiator() stanza.Address {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	return j.initiator
}

func (j *Jingle) SetInitiator(addr stanza.Address) {
	j.mutex.Lock()
	j.initiator = addr
	j.mutex.Unlock()
}

func (j *Jingle) Responder() stanza.Address {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	return j.responder
}

func (j *Jingle) SetResponder(addr stanza.Address) {
	j.mutex.Lock()
	j.responder = addr
	j.mutex.Unlock()
}

// Key of this Jingle's session.
func (j *Jingle) Key() SessionKey {
	return SessionKey{SID: j.sid, Initiator: j.Initiator()}
}

// Contents returns a snapshot of the current Contents in insertion order.
func (j *Jingle) Contents() []*Content {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	contents := make([]*Content, len(j.contents))
	copy(contents, j.contents)
	return contents
}

func checkContent(c *Content) error {
	if c == nil {
		return fmt.Errorf("%w: content must not be nil", ErrInvalidArgument)
	}
	if err := c.CheckValid(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// AddContent appends a single, valid Content.
func (j *Jingle) AddContent(c *Content) error {
	if err := checkContent(c); err != nil {
		return err
	}

	j.mutex.Lock()
	j.contents = append(j.contents, c)
	j.mutex.Unlock()
	return nil
}

// AddContents appends multiple Contents at once, keeping their order. Either all or none are added.
func (j *Jingle) AddContents(contents []*Content) error {
	for i, c := range contents {
		if err := checkContent(c); err != nil {
			return fmt.Errorf("content %d: %w", i, err)
		}
	}

	j.mutex.Lock()
	j.contents = append(j.contents, contents...)
	j.mutex.Unlock()
	return nil
}

func (_ *Jingle) ElementName() string {
	return Element
}

func (_ *Jingle) Namespace() string {
	return Namespace
}

func (j *Jingle) String() string {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	return fmt.Sprintf("jingle(sid=%s, action=%s, initiator=%v, responder=%v, contents=%d)",
		j.sid, j.action, j.initiator, j.responder, len(j.contents))
}

// MarshalXML writes the Jingle element with its optional attributes, followed by its Contents.
func (j *Jingle) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	j.mutex.Lock()
	attrs := []struct{ name, value string }{
		{"initiator", j.initiator.String()},
		{"responder", j.responder.String()},
		{"action", string(j.action)},
		{"sid", j.sid},
	}
	contents := make([]*Content, len(j.contents))
	copy(contents, j.contents)
	j.mutex.Unlock()

	start := xml.StartElement{Name: xml.Name{Space: Namespace, Local: Element}}
	for _, attr := range attrs {
		if attr.value != "" {
			start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: attr.name}, Value: attr.value})
		}
	}

	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, c := range contents {
		if err := e.Encode(c); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// UnmarshalXML reads a Jingle element, as written by MarshalXML.
func (j *Jingle) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		Initiator string     `xml:"initiator,attr"`
		Responder string     `xml:"responder,attr"`
		Action    string     `xml:"action,attr"`
		SID       string     `xml:"sid,attr"`
		Contents  []*Content `xml:"content"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}

	return j.fill(raw.SID, raw.Action, raw.Initiator, raw.Responder, raw.Contents)
}

// fill this Jingle from decoded fields.
func (j *Jingle) fill(sid, action, initiator, responder string, contents []*Content) (err error) {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	j.sid = sid
	if j.action, err = ParseAction(action); err != nil {
		return
	}
	for _, addr := range []struct {
		field *stanza.Address
		value string
	}{{&j.initiator, initiator}, {&j.responder, responder}} {
		if addr.value == "" {
			*addr.field = stanza.Address{}
		} else if *addr.field, err = stanza.ParseAddress(addr.value); err != nil {
			return
		}
	}
	for _, c := range contents {
		if err = checkContent(c); err != nil {
			return
		}
	}
	j.contents = contents
	return
}

func (j *Jingle) MarshalCbor(w io.Writer) error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if err := cboring.WriteArrayLength(5, w); err != nil {
		return err
	}

	for _, s := range []string{j.sid, string(j.action), j.initiator.String(), j.responder.String()} {
		if err := cboring.WriteTextString(s, w); err != nil {
			return err
		}
	}

	if err := cboring.WriteArrayLength(uint64(len(j.contents)), w); err != nil {
		return err
	}
	for _, c := range j.contents {
		if err := cboring.Marshal(c, w); err != nil {
			return err
		}
	}
	return nil
}

func (j *Jingle) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 5 {
		return fmt.Errorf("expected jingle array of 5 elements, got %d", n)
	}

	var fields [4]string
	for i := range fields {
		if s, err := cboring.ReadTextString(r); err != nil {
			return err
		} else {
			fields[i] = s
		}
	}

	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}

	contents := make([]*Content, n)
	for i := range contents {
		contents[i] = new(Content)
		if err := cboring.Unmarshal(contents[i], r); err != nil {
			return err
		}
	}

	return j.fill(fields[0], fields[1], fields[2], fields[3], contents)
}

// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stanza

import (
	"fmt"
	"io"
	"time"

	"github.com/dtn7/cboring"
)

const (
	ForwardedElement   = "forwarded"
	ForwardedNamespace = "urn:xmpp:forward:0"
)

// timeLayout is the XEP-0082 DateTime profile with millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime as a XEP-0082 DateTime in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime from a XEP-0082 DateTime. Both millisecond and second precision is accepted.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Forwarded wraps a Message together with the time it was originally sent, as defined in XEP-0297.
type Forwarded struct {
	Stamp   time.Time
	Message *Message
}

func init() {
	RegisterExtension(&Forwarded{})
}

// NewForwarded wraps a Message.
func NewForwarded(stamp time.Time, msg *Message) *Forwarded {
	return &Forwarded{
		Stamp:   stamp,
		Message: msg,
	}
}

func (_ *Forwarded) ElementName() string {
	return ForwardedElement
}

func (_ *Forwarded) Namespace() string {
	return ForwardedNamespace
}

func (f *Forwarded) String() string {
	return fmt.Sprintf("forwarded(stamp=%s, %v)", FormatTime(f.Stamp), f.Message)
}

func (f *Forwarded) MarshalCbor(w io.Writer) error {
	if f.Message == nil {
		return fmt.Errorf("forwarded has no message")
	}

	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	stamp := ""
	if !f.Stamp.IsZero() {
		stamp = FormatTime(f.Stamp)
	}
	if err := cboring.WriteTextString(stamp, w); err != nil {
		return err
	}

	return cboring.Marshal(f.Message, w)
}

func (f *Forwarded) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("expected forwarded array of 2 elements, got %d", n)
	}

	if stamp, err := cboring.ReadTextString(r); err != nil {
		return err
	} else if stamp != "" {
		if f.Stamp, err = ParseTime(stamp); err != nil {
			return err
		}
	}

	f.Message = new(Message)
	return cboring.Unmarshal(f.Message, r)
}

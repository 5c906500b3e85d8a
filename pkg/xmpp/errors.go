// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package xmpp

import (
	"errors"
	"fmt"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

var (
	// ErrNoResponse indicates that no matching stanza arrived in time.
	ErrNoResponse = errors.New("xmpp: no response within the reply timeout")

	// ErrNotConnected is returned for operations on a closed or broken connection.
	ErrNotConnected = errors.New("xmpp: not connected")

	// ErrCollectorCancelled is returned when waiting on a cancelled Collector.
	ErrCollectorCancelled = errors.New("xmpp: collector was cancelled")
)

// StanzaError is an error reply from the other side, e.g., an IQ of type error.
type StanzaError struct {
	Condition string
	Text      string

	Stanza stanza.Stanza
}

// newStanzaError from an IQ of type error.
func newStanzaError(iq *stanza.IQ) *StanzaError {
	return &StanzaError{
		Condition: iq.ErrorCondition,
		Text:      iq.ErrorText,
		Stanza:    iq,
	}
}

func (se *StanzaError) Error() string {
	if se.Text == "" {
		return fmt.Sprintf("xmpp: stanza error %s", se.Condition)
	}
	return fmt.Sprintf("xmpp: stanza error %s: %s", se.Condition, se.Text)
}

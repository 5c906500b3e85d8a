// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package jingle

import "fmt"

// Action of a Jingle element.
type Action string

const (
	ContentAccept    Action = "content-accept"
	ContentAdd       Action = "content-add"
	ContentModify    Action = "content-modify"
	ContentReject    Action = "content-reject"
	ContentRemove    Action = "content-remove"
	DescriptionInfo  Action = "description-info"
	SecurityInfo     Action = "security-info"
	SessionAccept    Action = "session-accept"
	SessionInfo      Action = "session-info"
	SessionInitiate  Action = "session-initiate"
	SessionTerminate Action = "session-terminate"
	TransportAccept  Action = "transport-accept"
	TransportInfo    Action = "transport-info"
	TransportReject  Action = "transport-reject"
	TransportReplace Action = "transport-replace"
)

var actions = map[Action]struct{}{
	ContentAccept: {}, ContentAdd: {}, ContentModify: {}, ContentReject: {}, ContentRemove: {},
	DescriptionInfo: {}, SecurityInfo: {},
	SessionAccept: {}, SessionInfo: {}, SessionInitiate: {}, SessionTerminate: {},
	TransportAccept: {}, TransportInfo: {}, TransportReject: {}, TransportReplace: {},
}

// ParseAction from its attribute value.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.IsValid() {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidArgument, s)
	}
	return a, nil
}

// IsValid checks if this is a known Action.
func (a Action) IsValid() bool {
	_, ok := actions[a]
	return ok
}

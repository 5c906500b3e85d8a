// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package mam

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument indicates malformed input, detected before anything was sent.
	ErrInvalidArgument = errors.New("mam: invalid argument")

	// ErrNoMoreResults is returned when paging past the end of the archive.
	ErrNoMoreResults = errors.New("mam: no more results")

	// ErrUnsupported is returned if the server does not support Message Archive Management.
	ErrUnsupported = errors.New("mam: not supported by the server")

	// ErrTimeout is matched by each TimeoutError.
	ErrTimeout = errors.New("mam: query timed out")

	// ErrTransport is matched by each TransportError.
	ErrTransport = errors.New("mam: transport failed")
)

// invalidArgument wraps an error as an ErrInvalidArgument.
func invalidArgument(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
}

// TimeoutError is returned if no fin message arrived within the timeout. The already received result messages
// are dropped, but their number is reported.
type TimeoutError struct {
	QueryID  string
	Observed int
}

func (te *TimeoutError) Error() string {
	return fmt.Sprintf("mam: query %s timed out after %d result messages", te.QueryID, te.Observed)
}

func (te *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// TransportError is returned if the query could not be sent.
type TransportError struct {
	QueryID string
	Err     error
}

func (te *TransportError) Error() string {
	return fmt.Sprintf("mam: sending query %s failed: %v", te.QueryID, te.Err)
}

func (te *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (te *TransportError) Unwrap() error {
	return te.Err
}

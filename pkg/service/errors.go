// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import "errors"

var (
	// ErrPeerUnavailable means no presence is known for the target service
	// name. Discovery may simply not have seen the peer yet.
	ErrPeerUnavailable = errors.New("remote peer is not available")

	// ErrBindFailed means no port in the configured listen range was free.
	ErrBindFailed = errors.New("unable to bind a port, no ports available")

	// ErrServiceClosed is returned by operations on a closed service.
	ErrServiceClosed = errors.New("link-local service is closed")

	// ErrTimeout is returned by collectors when no matching stanza arrived
	// within the deadline, and by GetIQResponse when the reply stayed out.
	ErrTimeout = errors.New("timed out waiting for a matching stanza")
)

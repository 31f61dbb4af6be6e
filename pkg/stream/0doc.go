// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package stream drives one peer-to-peer XMPP stream over a TCP connection:
// the stream header exchange, a pull-parsing reader, an in-order writer with
// a bounded queue, and an idle watchdog that reaps dead connections.
package stream

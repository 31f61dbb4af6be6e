// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service orchestrates a link-local XMPP presence: it binds the
// listening socket, registers and browses mDNS presence, dials and accepts
// peer streams, dispatches inbound stanzas to chats, listeners and
// collectors, and correlates request/response exchanges across streams.
package service

// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package stanza models the top-level XML elements exchanged over an XMPP
// stream, the <message/>, <iq/> and <presence/> stanzas, together with their
// serialization, packet filters and error replies.
package stanza

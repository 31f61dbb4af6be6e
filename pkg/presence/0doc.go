// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package presence describes a link-local peer, its identity and status as
// advertised through DNS-SD TXT records, and keeps a store of all presences
// currently visible on the link.
package presence

// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package caps computes XEP-0115 entity capability verification strings and
// publishes them through the hash, node and ver TXT fields of the local
// link-local presence.
package caps

// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package disco implements the XEP-0030 service discovery subset used on
// link-local streams: answering disco#info queries about the local client
// and querying remote peers for their identities and features.
package disco

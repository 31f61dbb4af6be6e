// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery binds the session service to an mDNS/DNS-SD
// implementation. The service only talks to the Discoverer interface; the
// zeroconf backend in this package publishes the local _presence._tcp
// service, browses the link for peers and decodes their TXT records.
package discovery

// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package agent provides application-facing surfaces on top of a link-local
// service.
//
// The RestAgent exposes message dispatch, mailbox fetching and the presence
// listing over plain HTTP for third-party programs; the WebsocketAgent
// streams chat traffic to connected clients and accepts outbound messages on
// the same socket.
package agent

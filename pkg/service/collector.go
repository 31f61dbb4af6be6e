// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"sync"
	"time"

	"github.com/llxmpp/llxmpp-go/pkg/stanza"
)

// collectorQueueSize bounds a collector's backlog. When full, the oldest
// queued stanza is dropped in favor of the new one.
const collectorQueueSize = 512

// Collector aggregates stanzas matching a filter across every stream of the
// service, current and future ones. A request sent on one stream may be
// answered on another; the collector does not care which stream delivered
// the match.
type Collector struct {
	srv    *Service
	filter stanza.Filter

	// queue is the single shared waiter: Next blocks here no matter which
	// stream produced the match.
	queue chan stanza.Packet

	stopSyn    chan struct{}
	cancelOnce sync.Once
}

func newCollector(srv *Service, filter stanza.Filter) *Collector {
	return &Collector{
		srv:     srv,
		filter:  filter,
		queue:   make(chan stanza.Packet, collectorQueueSize),
		stopSyn: make(chan struct{}),
	}
}

// offer enqueues a stanza if the filter accepts it. Reports whether the
// stanza was taken.
func (c *Collector) offer(p stanza.Packet) bool {
	if c.filter != nil && !c.filter(p) {
		return false
	}

	for {
		select {
		case <-c.stopSyn:
			return false

		case c.queue <- p:
			return true

		default:
			// full, sacrifice the oldest entry
			select {
			case <-c.queue:
			default:
			}
		}
	}
}

// Next returns the next matching stanza from any stream, or ErrTimeout after
// the given duration. A non-positive timeout polls: it returns an already
// queued stanza or ErrTimeout immediately. A cancelled collector keeps
// handing out queued stanzas until they run dry.
func (c *Collector) Next(timeout time.Duration) (stanza.Packet, error) {
	if timeout <= 0 {
		select {
		case p := <-c.queue:
			return p, nil
		default:
			return nil, ErrTimeout
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p := <-c.queue:
		return p, nil

	case <-timer.C:
		return nil, ErrTimeout

	case <-c.stopSyn:
		select {
		case p := <-c.queue:
			return p, nil
		default:
			return nil, ErrTimeout
		}
	}
}

// Cancel unsubscribes the collector from the service. Blocked Next calls
// return ErrTimeout.
func (c *Collector) Cancel() {
	c.cancelOnce.Do(func() {
		c.srv.removeCollector(c)
		close(c.stopSyn)
	})
}

// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"sync"
	"time"
)

var _ Clock = (*manualClock)(nil)

type manualClock struct {
	lock sync.Mutex
	now  time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.now = c.now.Add(d)
}

func (c *manualClock) Unix() uint64 {
	return uint64(c.Now().Unix())
}

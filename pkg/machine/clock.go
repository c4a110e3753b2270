// Copyright 2025 The Procyon Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package machine

import (
	"sync"
	"time"
)

// dateLayout is a fixed-width ISO-8601 UTC format. Fixed-width fractional
// seconds make lexicographic order equal chronological order, which the
// status reduction depends on.
const dateLayout = "2006-01-02T15:04:05.000000000Z"

// eventClock issues strictly increasing event dates. On a wall-clock
// collision the date is bumped by one nanosecond so ties never occur and
// the latest-event reduction is deterministic.
type eventClock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *eventClock) Now() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := time.Now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t.Format(dateLayout)
}

// Copyright 2024 VoiceDesk, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry provides bounded-backoff scheduling and loop detection for
// connection and call placement attempts.
package retry

import "time"

// Scheduler decides the delay before the next attempt from a fixed ascending
// delay table. It is a pure lookup: callers own the attempt counter.
type Scheduler struct {
	// Delays holds the delay before attempt N at index N-1. The table length
	// bounds the number of attempts.
	Delays []time.Duration
}

// Next returns the delay to wait before attempt number `attempt` (1-based).
// It reports false once the attempt counter moves beyond the table, at which
// point the caller must stop or escalate to a cooldown before resetting.
func (s Scheduler) Next(attempt uint32) (time.Duration, bool) {
	if attempt == 0 {
		attempt = 1
	}
	if int(attempt) > len(s.Delays) {
		return 0, false
	}
	return s.Delays[attempt-1], true
}

// MaxAttempts is the number of attempts the table allows.
func (s Scheduler) MaxAttempts() int {
	return len(s.Delays)
}

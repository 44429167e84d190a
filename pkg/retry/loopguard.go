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

package retry

import (
	"sync"
	"time"

	"github.com/voicedesk/softphone/pkg/errors"
)

// LoopGuard detects pathological rapid re-initialization of an operation.
// It is distinct from normal backoff accounting: tripping it means a logic
// fault (two components re-triggering each other), not a flaky network.
//
// One guard instance is created at process startup and shared by every
// component that performs guarded operations.
type LoopGuard struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	quiet     time.Duration
	now       func() time.Time
	ops       map[string]*opState
}

type opState struct {
	count      int
	last       time.Time
	quietUntil time.Time
}

func NewLoopGuard(threshold int, window, quiet time.Duration) *LoopGuard {
	return &LoopGuard{
		threshold: threshold,
		window:    window,
		quiet:     quiet,
		now:       time.Now,
		ops:       make(map[string]*opState),
	}
}

// Record notes one attempt of the given operation. It returns
// errors.ErrLoopDetected when more than the threshold number of attempts land
// within the rolling window, and keeps returning it until the forced quiet
// period elapses.
func (g *LoopGuard) Record(op string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	st := g.ops[op]
	if st == nil {
		st = &opState{}
		g.ops[op] = st
	}

	if now.Before(st.quietUntil) {
		return errors.ErrLoopDetected
	}

	if !st.last.IsZero() && now.Sub(st.last) >= g.window {
		st.count = 0
	}
	st.count++
	st.last = now

	if st.count > g.threshold {
		st.quietUntil = now.Add(g.quiet)
		st.count = 0
		return errors.ErrLoopDetected
	}
	return nil
}

// QuietUntil reports the end of the forced quiet period for an operation,
// zero if none is active.
func (g *LoopGuard) QuietUntil(op string) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st := g.ops[op]; st != nil {
		return st.quietUntil
	}
	return time.Time{}
}

// Reset clears all accounting for an operation. Used after a clean,
// user-acknowledged recovery.
func (g *LoopGuard) Reset(op string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.ops, op)
}

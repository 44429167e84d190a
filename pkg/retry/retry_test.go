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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerDelays(t *testing.T) {
	s := Scheduler{Delays: []time.Duration{
		1500 * time.Millisecond,
		3 * time.Second,
		5 * time.Second,
	}}
	require.Equal(t, 3, s.MaxAttempts())

	var prev time.Duration
	for attempt := uint32(1); attempt <= 3; attempt++ {
		d, ok := s.Next(attempt)
		require.True(t, ok, "attempt %d", attempt)
		require.Greater(t, d, prev, "delays must ascend")
		prev = d
	}

	_, ok := s.Next(4)
	require.False(t, ok, "schedule must be exhausted past its table")
}

func TestSchedulerZeroAttempt(t *testing.T) {
	s := Scheduler{Delays: []time.Duration{time.Second}}
	d, ok := s.Next(0)
	require.True(t, ok)
	require.Equal(t, time.Second, d)
}

func TestSchedulerEmpty(t *testing.T) {
	var s Scheduler
	_, ok := s.Next(1)
	require.False(t, ok)
	require.Equal(t, 0, s.MaxAttempts())
}

func TestLoopGuardThreshold(t *testing.T) {
	now := time.Unix(1000, 0)
	g := NewLoopGuard(3, 10*time.Second, time.Minute)
	g.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Record("register"))
		now = now.Add(time.Second)
	}
	// fourth attempt within the window trips the guard
	err := g.Record("register")
	require.Error(t, err)
	require.Equal(t, now.Add(time.Minute), g.QuietUntil("register"))

	// still quiet
	now = now.Add(30 * time.Second)
	require.Error(t, g.Record("register"))

	// quiet period over
	now = now.Add(31 * time.Second)
	require.NoError(t, g.Record("register"))
}

func TestLoopGuardWindowReset(t *testing.T) {
	now := time.Unix(1000, 0)
	g := NewLoopGuard(3, 10*time.Second, time.Minute)
	g.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Record("call"))
	}
	// a gap wider than the window resets the count
	now = now.Add(11 * time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Record("call"))
	}
}

func TestLoopGuardKeysIndependent(t *testing.T) {
	now := time.Unix(1000, 0)
	g := NewLoopGuard(1, 10*time.Second, time.Minute)
	g.now = func() time.Time { return now }

	require.NoError(t, g.Record("register"))
	require.Error(t, g.Record("register"))
	require.NoError(t, g.Record("call"))
}

func TestLoopGuardReset(t *testing.T) {
	now := time.Unix(1000, 0)
	g := NewLoopGuard(1, 10*time.Second, time.Minute)
	g.now = func() time.Time { return now }

	require.NoError(t, g.Record("register"))
	require.Error(t, g.Record("register"))
	g.Reset("register")
	require.NoError(t, g.Record("register"))
}

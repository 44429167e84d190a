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

package phone

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/livekit/protocol/logger"

	"github.com/voicedesk/softphone/pkg/config"
	"github.com/voicedesk/softphone/pkg/engine"
	serrors "github.com/voicedesk/softphone/pkg/errors"
	"github.com/voicedesk/softphone/pkg/retry"
	"github.com/voicedesk/softphone/pkg/stats"
)

// RegistrationManager owns the connect/register lifecycle: it brings the
// signaling engine up, keeps the account registered, retries failures on a
// bounded schedule and enforces a cooldown once the schedule is exhausted.
type RegistrationManager struct {
	conf  *config.Config
	log   logger.Logger
	mon   *stats.Monitor
	eng   engine.Engine
	guard *retry.LoopGuard
	sched retry.Scheduler
	store *stateStore
	post  func(func())
	now   func() time.Time

	mu         sync.Mutex
	state      RegistrationState
	identity   engine.Identity
	inflight   bool
	retryTimer *time.Timer
	listeners  []func(RegistrationState)
}

func NewRegistrationManager(
	conf *config.Config, log logger.Logger, mon *stats.Monitor,
	eng engine.Engine, guard *retry.LoopGuard, post func(func()),
) *RegistrationManager {
	delays := make([]time.Duration, 0, len(conf.ConnectRetryDelays))
	for _, d := range conf.ConnectRetryDelays {
		delays = append(delays, d.Std())
	}
	m := &RegistrationManager{
		conf:  conf,
		log:   log.WithValues("component", "registration"),
		mon:   mon,
		eng:   eng,
		guard: guard,
		sched: retry.Scheduler{Delays: delays},
		store: newStateStore(conf.StateFile, log),
		post:  post,
		now:   time.Now,
	}
	m.state.Phase = PhaseDisconnected
	if st := m.store.load(); m.now().Before(st.CooldownUntil) {
		m.state.CooldownUntil = st.CooldownUntil
		m.state.AttemptCount = st.ConsecutiveErrors
		m.state.LastError = "previous registration attempts exhausted"
		m.log.Infow("restored registration cooldown",
			"until", st.CooldownUntil, "attempts", st.ConsecutiveErrors)
	}
	return m
}

// OnStatusChange registers a listener invoked after every state transition.
// Listeners run outside the manager lock.
func (m *RegistrationManager) OnStatusChange(fn func(RegistrationState)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *RegistrationManager) Status() RegistrationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts the registration lifecycle for the given identity.
// It is idempotent while the account is registered and rejects attempts
// during an active cooldown. A manual connect after a cooldown has expired
// starts with fresh retry accounting.
func (m *RegistrationManager) Connect(id engine.Identity) error {
	m.mu.Lock()
	if m.state.Phase == PhaseRegistered {
		m.mu.Unlock()
		m.log.Debugw("already registered, ignoring connect")
		return nil
	}
	if m.inflight || m.state.Phase == PhaseConnecting || m.state.Phase == PhaseConnected {
		m.mu.Unlock()
		return serrors.ErrConnectInFlight
	}
	if until := m.state.CooldownUntil; m.now().Before(until) {
		m.mu.Unlock()
		return serrors.ErrCooldownActive(until)
	}
	m.identity = id
	m.state.CooldownUntil = time.Time{}
	m.state.AttemptCount = 0
	m.state.LastError = ""
	err := m.attempt()
	m.mu.Unlock()
	m.notify()
	return err
}

// RetryNow attempts to connect immediately, keeping the current retry
// accounting. It is a no-op while registered, mid-attempt or cooling down.
func (m *RegistrationManager) RetryNow() {
	m.mu.Lock()
	if m.state.Phase == PhaseRegistered || m.inflight ||
		m.state.Phase == PhaseConnecting || m.state.Phase == PhaseConnected ||
		m.now().Before(m.state.CooldownUntil) {
		m.mu.Unlock()
		return
	}
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	_ = m.attempt()
	m.mu.Unlock()
	m.notify()
}

// attempt starts one connection attempt. Caller holds m.mu.
func (m *RegistrationManager) attempt() error {
	if err := m.guard.Record("register"); err != nil {
		until := m.guard.QuietUntil("register")
		m.state.Phase = PhaseFailed
		m.state.CooldownUntil = until
		m.state.LastError = "connect loop detected"
		m.log.Warnw("connect loop detected, backing off", nil, "until", until)
		m.persistLocked()
		return err
	}
	m.inflight = true
	m.state.Phase = PhaseConnecting
	m.state.LastAttemptAt = m.now()
	m.mon.RegisterAttempt()
	target := fmt.Sprintf("%s:%d", m.conf.SIPServer, m.conf.SIPPort)
	m.log.Infow("connecting", "target", target, "attempt", m.state.AttemptCount+1)
	if err := m.eng.Connect(context.Background(), target); err != nil {
		m.failLocked(err.Error())
		return nil
	}
	return nil
}

// handleEvent processes connection-level engine events.
func (m *RegistrationManager) handleEvent(ev engine.Event) {
	m.mu.Lock()
	switch ev := ev.(type) {
	case engine.Connected:
		m.state.Phase = PhaseConnected
		m.log.Infow("transport connected, registering", "extension", m.identity.Extension)
		if err := m.eng.Register(context.Background(), m.identity); err != nil {
			m.failLocked(err.Error())
		}
	case engine.Registered:
		m.inflight = false
		m.state.Phase = PhaseRegistered
		m.state.AttemptCount = 0
		m.state.LastError = ""
		m.state.CooldownUntil = time.Time{}
		if m.retryTimer != nil {
			m.retryTimer.Stop()
			m.retryTimer = nil
		}
		m.store.clear()
		m.mon.SetRegistered(true)
		m.guard.Reset("register")
		m.log.Infow("registered", "extension", m.identity.Extension)
	case engine.RegistrationFailed:
		m.log.Warnw("registration failed", nil, "code", ev.Code, "reason", ev.Reason)
		m.failLocked(ev.Reason)
	case engine.Disconnected:
		if m.state.Phase == PhaseDisconnected || m.state.Phase == PhaseFailed {
			m.mu.Unlock()
			return
		}
		m.log.Warnw("transport disconnected", nil, "reason", ev.Reason)
		m.failLocked(ev.Reason)
	default:
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.notify()
}

// failLocked records one failed attempt and schedules the next retry, or
// enters cooldown once the schedule is exhausted. Caller holds m.mu.
func (m *RegistrationManager) failLocked(reason string) {
	m.inflight = false
	m.state.Phase = PhaseFailed
	m.state.AttemptCount++
	m.state.LastError = reason
	m.mon.SetRegistered(false)
	m.mon.RegisterFailure(reason)

	delay, ok := m.sched.Next(m.state.AttemptCount)
	if !ok {
		m.state.CooldownUntil = m.now().Add(m.conf.ConnectCooldown.Std())
		m.log.Warnw("registration retries exhausted", nil,
			"attempts", m.state.AttemptCount, "cooldownUntil", m.state.CooldownUntil)
		m.persistLocked()
		return
	}
	m.persistLocked()
	m.log.Infow("scheduling registration retry",
		"attempt", m.state.AttemptCount, "delay", delay)
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	m.retryTimer = time.AfterFunc(delay, func() {
		m.post(m.autoRetry)
	})
}

func (m *RegistrationManager) autoRetry() {
	m.mu.Lock()
	if m.state.Phase != PhaseFailed || m.inflight || m.now().Before(m.state.CooldownUntil) {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	_ = m.attempt()
	m.mu.Unlock()
	m.notify()
}

func (m *RegistrationManager) persistLocked() {
	m.store.save(persistedState{
		LastErrorAt:       m.now(),
		ConsecutiveErrors: m.state.AttemptCount,
		CooldownUntil:     m.state.CooldownUntil,
	})
}

func (m *RegistrationManager) notify() {
	m.mu.Lock()
	st := m.state
	ls := make([]func(RegistrationState), len(m.listeners))
	copy(ls, m.listeners)
	m.mu.Unlock()
	for _, fn := range ls {
		fn(st)
	}
}

func (m *RegistrationManager) Close() {
	m.mu.Lock()
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.mu.Unlock()
}

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
	"slices"
	"sync"
	"time"

	"github.com/livekit/protocol/logger"

	"github.com/voicedesk/softphone/pkg/config"
	"github.com/voicedesk/softphone/pkg/engine"
	serrors "github.com/voicedesk/softphone/pkg/errors"
	"github.com/voicedesk/softphone/pkg/outcome"
	"github.com/voicedesk/softphone/pkg/retry"
	"github.com/voicedesk/softphone/pkg/stats"
)

// CallController drives the single active call session through its state
// machine. At most one session is live at any time; a newer session
// supersedes the previous one.
type CallController struct {
	conf   *config.Config
	log    logger.Logger
	mon    *stats.Monitor
	eng    engine.Engine
	reg    *RegistrationManager
	guard  *retry.LoopGuard
	sched  retry.Scheduler
	post   func(func())
	now    func() time.Time
	router *EventRouter

	mu         sync.Mutex
	sess       *CallSession
	pending    *callRetry
	lastRaw    string
	tickStop   chan struct{}
	signals    []func()
	onUpdate   []func(CallSession)
	onEnd      []func(CallEndInfo)
	onIncoming []func(CallSession)
}

func NewCallController(
	conf *config.Config, log logger.Logger, mon *stats.Monitor,
	eng engine.Engine, reg *RegistrationManager, guard *retry.LoopGuard,
	post func(func()),
) *CallController {
	delays := make([]time.Duration, 0, len(conf.DialRetryDelays))
	for _, d := range conf.DialRetryDelays {
		delays = append(delays, d.Std())
	}
	return &CallController{
		conf:  conf,
		log:   log.WithValues("component", "call"),
		mon:   mon,
		eng:   eng,
		reg:   reg,
		guard: guard,
		sched: retry.Scheduler{Delays: delays},
		post:  post,
		now:   time.Now,
	}
}

func (c *CallController) setRouter(r *EventRouter) { c.router = r }

// OnSessionUpdate registers a listener receiving a session snapshot after
// every visible change, including once-a-second duration ticks.
func (c *CallController) OnSessionUpdate(fn func(CallSession)) {
	c.mu.Lock()
	c.onUpdate = append(c.onUpdate, fn)
	c.mu.Unlock()
}

// OnCallEnded registers a listener for terminal call outcomes.
func (c *CallController) OnCallEnded(fn func(CallEndInfo)) {
	c.mu.Lock()
	c.onEnd = append(c.onEnd, fn)
	c.mu.Unlock()
}

// OnIncomingCall registers a listener invoked when a new inbound session
// starts ringing.
func (c *CallController) OnIncomingCall(fn func(CallSession)) {
	c.mu.Lock()
	c.onIncoming = append(c.onIncoming, fn)
	c.mu.Unlock()
}

// Session returns a snapshot of the current session, if any.
func (c *CallController) Session() (CallSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return CallSession{}, false
	}
	return *c.sess, true
}

// LiveID returns the ID of the live session, if one exists.
func (c *CallController) LiveID() (engine.SessionID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.Live() {
		return c.sess.ID, true
	}
	return "", false
}

// Dial places an outbound call. If the account is not registered yet the
// call is queued, registration is nudged, and the attempt is retried on a
// bounded schedule until it can be placed or the schedule runs out.
func (c *CallController) Dial(dest string) error {
	c.mu.Lock()
	if c.sess.Live() || c.pending != nil {
		c.mu.Unlock()
		return serrors.ErrCallInProgress
	}
	if err := c.guard.Record("call"); err != nil {
		c.mu.Unlock()
		c.log.Warnw("call setup loop detected", err, "destination", dest)
		return err
	}
	if c.reg.Status().Phase == PhaseRegistered {
		err := c.placeLocked(dest)
		fire := c.takeSignalsLocked()
		c.mu.Unlock()
		fire()
		return err
	}
	c.log.Infow("not registered, queuing call", "destination", dest)
	c.pending = &callRetry{destination: dest}
	c.scheduleDialRetryLocked()
	fire := c.takeSignalsLocked()
	c.mu.Unlock()
	fire()
	c.reg.RetryNow()
	return nil
}

// Hangup terminates the live session, or cancels a queued dial attempt.
// The session transitions to its terminal state immediately, without
// waiting for the engine to confirm.
func (c *CallController) Hangup() error {
	c.mu.Lock()
	if p := c.pending; p != nil {
		if p.timer != nil {
			p.timer.Stop()
		}
		c.pending = nil
		c.mu.Unlock()
		c.log.Infow("queued call canceled", "destination", p.destination)
		return nil
	}
	if !c.sess.Live() {
		c.mu.Unlock()
		return serrors.ErrNoActiveCall
	}
	id := c.sess.ID
	if err := c.eng.Terminate(context.Background(), id); err != nil {
		c.log.Warnw("terminate request failed", err, "sessionID", id)
	}
	c.finalizeFromEventLocked(outcome.CauseTerminated, 0, true, "")
	fire := c.takeSignalsLocked()
	c.mu.Unlock()
	fire()
	return nil
}

// Answer accepts a ringing inbound session.
func (c *CallController) Answer() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || c.sess.State != CallRinging || c.sess.Direction != engine.Incoming {
		return serrors.ErrNoActiveCall
	}
	return c.eng.Answer(context.Background(), c.sess.ID)
}

// ToggleHold flips the hold state of an answered session and returns the
// new hold value. The duration clock keeps running while on hold.
func (c *CallController) ToggleHold() (bool, error) {
	c.mu.Lock()
	if !c.sess.Answered() {
		c.mu.Unlock()
		return false, serrors.ErrNoActiveCall
	}
	hold := c.sess.State == CallAnswered
	if hold {
		c.sess.State = CallHold
	} else {
		c.sess.State = CallAnswered
	}
	id := c.sess.ID
	err := c.eng.SetHold(context.Background(), id, hold)
	c.notifyUpdateLocked()
	fire := c.takeSignalsLocked()
	c.mu.Unlock()
	fire()
	return hold, err
}

// ToggleMic flips the microphone and returns the new enabled value.
func (c *CallController) ToggleMic() (bool, error) {
	c.mu.Lock()
	if !c.sess.Live() {
		c.mu.Unlock()
		return false, serrors.ErrNoActiveCall
	}
	c.sess.MicEnabled = !c.sess.MicEnabled
	enabled := c.sess.MicEnabled
	id := c.sess.ID
	err := c.eng.SetMicEnabled(context.Background(), id, enabled)
	c.notifyUpdateLocked()
	fire := c.takeSignalsLocked()
	c.mu.Unlock()
	fire()
	return enabled, err
}

// ToggleSpeaker flips the speaker flag. Playback routing is a device
// concern, no signaling is involved.
func (c *CallController) ToggleSpeaker() (bool, error) {
	c.mu.Lock()
	if !c.sess.Live() {
		c.mu.Unlock()
		return false, serrors.ErrNoActiveCall
	}
	c.sess.SpeakerEnabled = !c.sess.SpeakerEnabled
	enabled := c.sess.SpeakerEnabled
	c.notifyUpdateLocked()
	fire := c.takeSignalsLocked()
	c.mu.Unlock()
	fire()
	return enabled, nil
}

// handleRegStatus reacts to registration transitions: a queued call is
// placed once registered, or abandoned when registration gives up.
func (c *CallController) handleRegStatus(st RegistrationState) {
	c.mu.Lock()
	p := c.pending
	if p == nil {
		c.mu.Unlock()
		return
	}
	switch {
	case st.Phase == PhaseRegistered:
		if p.timer != nil {
			p.timer.Stop()
		}
		c.pending = nil
		c.log.Infow("registration ready, placing queued call", "destination", p.destination)
		_ = c.placeLocked(p.destination)
	case st.Phase == PhaseFailed && c.now().Before(st.CooldownUntil):
		if p.timer != nil {
			p.timer.Stop()
		}
		c.pending = nil
		c.log.Warnw("registration gave up, abandoning queued call", nil, "destination", p.destination)
		c.emitEndLocked(CallEndInfo{Code: 503, Reason: "could not connect", Successful: false})
	}
	fire := c.takeSignalsLocked()
	c.mu.Unlock()
	fire()
}

// handleEvent processes session-level engine events that passed routing.
func (c *CallController) handleEvent(ev engine.Event) {
	c.mu.Lock()
	switch ev := ev.(type) {
	case engine.NewSession:
		c.adoptLocked(ev)
	case engine.Progress:
		if !c.sess.Live() || c.sess.ID != ev.ID {
			break
		}
		if ev.Raw != "" {
			c.lastRaw = ev.Raw
		}
		if ev.HasMedia && !c.sess.EarlyMediaActive {
			c.sess.EarlyMediaActive = true
			c.log.Infow("early media active", "sessionID", ev.ID)
		}
		c.notifyUpdateLocked()
	case engine.Accepted:
		if !c.sess.Live() || c.sess.ID != ev.ID {
			break
		}
		if ev.Raw != "" {
			c.lastRaw = ev.Raw
		}
		if c.sess.Answered() {
			c.log.Debugw("duplicate accept, ignoring", "sessionID", ev.ID)
			break
		}
		c.sess.State = CallAnswered
		c.sess.AnsweredAt = c.now()
		if !c.sess.EarlyMediaActive {
			c.log.Debugw("binding remote media", "sessionID", ev.ID)
		}
		c.startTickerLocked()
		c.log.Infow("call answered", "sessionID", ev.ID)
		c.notifyUpdateLocked()
	case engine.Confirmed:
		c.log.Debugw("call confirmed", "sessionID", ev.ID)
	case engine.Ended:
		c.finalizeFromEventLocked(ev.Cause, ev.Code, ev.LocalOrigin, ev.Raw)
	case engine.Failed:
		c.finalizeFromEventLocked(ev.Cause, ev.Code, ev.LocalOrigin, ev.Raw)
	}
	fire := c.takeSignalsLocked()
	c.mu.Unlock()
	fire()
}

func (c *CallController) adoptLocked(ev engine.NewSession) {
	if c.sess != nil && c.sess.ID == ev.ID {
		c.log.Debugw("duplicate session announcement, ignoring", "sessionID", ev.ID)
		return
	}
	if c.sess.Live() {
		old := c.sess
		c.log.Warnw("new session while another is live, superseding", nil,
			"oldSessionID", old.ID, "sessionID", ev.ID)
		if err := c.eng.Terminate(context.Background(), old.ID); err != nil {
			c.log.Warnw("terminate request failed", err, "sessionID", old.ID)
		}
		c.finalizeLocked(487)
	}
	if p := c.pending; p != nil {
		if p.timer != nil {
			p.timer.Stop()
		}
		c.pending = nil
		c.log.Infow("queued call dropped for new session", "destination", p.destination)
	}
	c.sess = &CallSession{
		ID:             ev.ID,
		Direction:      ev.Dir,
		State:          CallRinging,
		RemoteIdentity: ev.Remote,
		StartedAt:      c.now(),
		MicEnabled:     true,
		SpeakerEnabled: true,
	}
	c.lastRaw = ""
	c.mon.CallStarted()
	if ev.Dir == engine.Incoming {
		c.log.Infow("incoming call", "sessionID", ev.ID, "remote", ev.Remote)
		s := *c.sess
		ls := slices.Clone(c.onIncoming)
		c.signals = append(c.signals, func() {
			for _, fn := range ls {
				fn(s)
			}
		})
	}
	c.notifyUpdateLocked()
}

func (c *CallController) placeLocked(dest string) error {
	sid, err := c.eng.Dial(context.Background(), dest)
	if err != nil {
		c.log.Warnw("could not place call", err, "destination", dest)
		c.emitEndLocked(CallEndInfo{Code: 500, Reason: outcome.Classify(500).Reason, Successful: false})
		return err
	}
	c.sess = &CallSession{
		ID:             sid,
		Direction:      engine.Outgoing,
		State:          CallRinging,
		RemoteIdentity: dest,
		StartedAt:      c.now(),
		MicEnabled:     true,
		SpeakerEnabled: true,
	}
	c.lastRaw = ""
	c.mon.CallStarted()
	c.log.Infow("call placed", "sessionID", sid, "destination", dest)
	c.notifyUpdateLocked()
	return nil
}

func (c *CallController) scheduleDialRetryLocked() {
	p := c.pending
	delay, ok := c.sched.Next(p.attempts + 1)
	if !ok {
		if p.timer != nil {
			p.timer.Stop()
		}
		c.pending = nil
		c.log.Warnw("dial retries exhausted", nil, "destination", p.destination)
		c.emitEndLocked(CallEndInfo{Code: 503, Reason: "could not connect", Successful: false})
		return
	}
	p.attempts++
	p.nextAt = c.now().Add(delay)
	c.log.Infow("scheduling dial retry",
		"destination", p.destination, "attempt", p.attempts, "delay", delay)
	p.timer = time.AfterFunc(delay, func() {
		c.post(c.dialRetry)
	})
}

func (c *CallController) dialRetry() {
	c.mu.Lock()
	p := c.pending
	if p == nil {
		c.mu.Unlock()
		return
	}
	c.mon.DialRetry()
	st := c.reg.Status()
	if st.Phase == PhaseRegistered {
		c.pending = nil
		_ = c.placeLocked(p.destination)
		fire := c.takeSignalsLocked()
		c.mu.Unlock()
		fire()
		return
	}
	if st.Phase == PhaseFailed && c.now().Before(st.CooldownUntil) {
		c.pending = nil
		c.log.Warnw("registration cooling down, abandoning queued call", nil,
			"destination", p.destination)
		c.emitEndLocked(CallEndInfo{Code: 503, Reason: "could not connect", Successful: false})
		fire := c.takeSignalsLocked()
		c.mu.Unlock()
		fire()
		return
	}
	c.scheduleDialRetryLocked()
	fire := c.takeSignalsLocked()
	c.mu.Unlock()
	fire()
	c.reg.RetryNow()
}

// finalizeFromEventLocked resolves the termination code for the live
// session. Resolution order: local cancellation of a call still being set
// up counts as success, then an explicit event code, then a code extracted
// from the last raw message, then the cause mapping.
func (c *CallController) finalizeFromEventLocked(cause string, code int, localOrigin bool, raw string) {
	if !c.sess.Live() {
		return
	}
	if raw != "" {
		c.lastRaw = raw
	}
	resolved := 0
	switch {
	case localOrigin && cause == outcome.CauseTerminated && c.sess.State == CallRinging:
		resolved = 200
	case code > 0:
		resolved = code
	case c.lastRaw != "":
		if v, ok := outcome.ExtractCode(c.lastRaw); ok {
			resolved = v
		}
	}
	if resolved == 0 {
		resolved = outcome.CodeFromCause(cause, localOrigin)
	}
	c.finalizeLocked(resolved)
}

func (c *CallController) finalizeLocked(code int) {
	s := c.sess
	if !s.Live() {
		return
	}
	now := c.now()
	o := outcome.Classify(code)
	s.State = CallEnded
	s.EndedAt = now
	s.TerminationCode = code
	s.TerminationReason = o.Reason
	c.stopTickerLocked()
	if c.router != nil {
		c.router.MarkEnded(s.ID)
	}
	c.mon.CallEnded(string(o.Category), s.Elapsed(now))
	c.lastRaw = ""
	c.log.Infow("call ended",
		"sessionID", s.ID, "code", code, "reason", o.Reason,
		"duration", s.DurationString(now))
	c.emitEndLocked(CallEndInfo{Code: code, Reason: o.Reason, Successful: o.Successful()})
	c.notifyUpdateLocked()
}

func (c *CallController) startTickerLocked() {
	if c.tickStop != nil {
		return
	}
	stop := make(chan struct{})
	c.tickStop = stop
	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.post(c.tick)
			case <-stop:
				return
			}
		}
	}()
}

func (c *CallController) stopTickerLocked() {
	if c.tickStop != nil {
		close(c.tickStop)
		c.tickStop = nil
	}
}

func (c *CallController) tick() {
	c.mu.Lock()
	if c.sess.Answered() {
		c.notifyUpdateLocked()
	}
	fire := c.takeSignalsLocked()
	c.mu.Unlock()
	fire()
}

func (c *CallController) notifyUpdateLocked() {
	s := *c.sess
	ls := slices.Clone(c.onUpdate)
	c.signals = append(c.signals, func() {
		for _, fn := range ls {
			fn(s)
		}
	})
}

func (c *CallController) emitEndLocked(info CallEndInfo) {
	ls := slices.Clone(c.onEnd)
	c.signals = append(c.signals, func() {
		for _, fn := range ls {
			fn(info)
		}
	})
}

func (c *CallController) takeSignalsLocked() func() {
	sigs := c.signals
	c.signals = nil
	return func() {
		for _, s := range sigs {
			s()
		}
	}
}

func (c *CallController) Close() {
	c.mu.Lock()
	c.stopTickerLocked()
	if c.pending != nil && c.pending.timer != nil {
		c.pending.timer.Stop()
	}
	c.pending = nil
	c.mu.Unlock()
}

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
	"strings"

	"github.com/frostbyte73/core"
	"github.com/livekit/protocol/logger"

	"github.com/voicedesk/softphone/pkg/config"
	"github.com/voicedesk/softphone/pkg/engine"
	serrors "github.com/voicedesk/softphone/pkg/errors"
	"github.com/voicedesk/softphone/pkg/retry"
	"github.com/voicedesk/softphone/pkg/stats"
)

const taskQueueSize = 64

// Phone is the client core. It wires the registration manager, the call
// controller and the event router to one signaling engine, and serializes
// engine callbacks and timer callbacks on a single dispatch goroutine.
// User intents execute synchronously on the caller's goroutine.
type Phone struct {
	conf *config.Config
	log  logger.Logger
	mon  *stats.Monitor
	eng  engine.Engine

	reg    *RegistrationManager
	calls  *CallController
	router *EventRouter

	tasks   chan func()
	started core.Fuse
	closing core.Fuse
	done    chan struct{}
}

func New(conf *config.Config, log logger.Logger, mon *stats.Monitor, eng engine.Engine) *Phone {
	if log == nil {
		log = logger.GetLogger()
	}
	p := &Phone{
		conf:  conf,
		log:   log,
		mon:   mon,
		eng:   eng,
		tasks: make(chan func(), taskQueueSize),
		done:  make(chan struct{}),
	}
	guard := retry.NewLoopGuard(conf.LoopThreshold, conf.LoopWindow.Std(), conf.LoopQuiet.Std())
	p.reg = NewRegistrationManager(conf, log, mon, eng, guard, p.Post)
	p.calls = NewCallController(conf, log, mon, eng, p.reg, guard, p.Post)
	p.router = NewEventRouter(log, mon, p.calls.LiveID)
	p.calls.setRouter(p.router)
	p.reg.OnStatusChange(p.calls.handleRegStatus)
	return p
}

// Start begins processing engine events. Engine callbacks only enqueue,
// the dispatch goroutine does the work.
func (p *Phone) Start() error {
	p.eng.OnEvent(func(ev engine.Event) {
		p.Post(func() { p.dispatch(ev) })
	})
	p.started.Once(func() {
		go p.run()
	})
	return nil
}

// Post enqueues fn on the dispatch goroutine. After Close it is a no-op.
func (p *Phone) Post(fn func()) {
	select {
	case p.tasks <- fn:
	case <-p.closing.Watch():
	}
}

func (p *Phone) run() {
	defer close(p.done)
	for {
		select {
		case fn := <-p.tasks:
			fn()
		case <-p.closing.Watch():
			// drain what was enqueued before the fuse broke
			for {
				select {
				case fn := <-p.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

func (p *Phone) dispatch(ev engine.Event) {
	switch ev.(type) {
	case engine.Connected, engine.Disconnected, engine.Registered, engine.RegistrationFailed:
		p.reg.handleEvent(ev)
	default:
		if p.router.Route(ev) {
			p.calls.handleEvent(ev)
		}
	}
}

// Connect starts the registration lifecycle using the configured identity.
func (p *Phone) Connect() error {
	return p.reg.Connect(engine.Identity{
		Extension:   p.conf.Extension,
		Password:    p.conf.Password,
		ServerHost:  p.conf.SIPServer,
		DisplayName: p.conf.DisplayName,
	})
}

func (p *Phone) Status() RegistrationState { return p.reg.Status() }

func (p *Phone) Session() (CallSession, bool) { return p.calls.Session() }

// Dial places a call to the given destination after normalizing it.
func (p *Phone) Dial(destination string) error {
	dest := CleanDestination(destination)
	if dest == "" {
		return serrors.ErrInvalidDestination
	}
	return p.calls.Dial(dest)
}

func (p *Phone) Hangup() error { return p.calls.Hangup() }

func (p *Phone) Answer() error { return p.calls.Answer() }

func (p *Phone) ToggleHold() (bool, error) { return p.calls.ToggleHold() }

func (p *Phone) ToggleMic() (bool, error) { return p.calls.ToggleMic() }

func (p *Phone) ToggleSpeaker() (bool, error) { return p.calls.ToggleSpeaker() }

func (p *Phone) OnStatusChange(fn func(RegistrationState)) { p.reg.OnStatusChange(fn) }

func (p *Phone) OnSessionUpdate(fn func(CallSession)) { p.calls.OnSessionUpdate(fn) }

func (p *Phone) OnCallEnded(fn func(CallEndInfo)) { p.calls.OnCallEnded(fn) }

func (p *Phone) OnIncomingCall(fn func(CallSession)) { p.calls.OnIncomingCall(fn) }

func (p *Phone) Close() {
	p.closing.Once(func() {
		p.reg.Close()
		p.calls.Close()
		p.eng.Close()
	})
	if p.started.IsBroken() {
		<-p.done
	}
}

// CleanDestination strips everything except digits, a leading plus sign and
// alphanumeric user parts, so both numbers and extension names dial cleanly.
func CleanDestination(destination string) string {
	destination = strings.TrimSpace(destination)
	var b strings.Builder
	for i, r := range destination {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == '*' || r == '#':
			b.WriteRune(r)
		}
	}
	if b.Len() < 3 {
		return ""
	}
	return b.String()
}

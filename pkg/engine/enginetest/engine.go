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

// Package enginetest provides a scripted in-memory engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/voicedesk/softphone/pkg/engine"
)

// Engine records every operation and lets tests emit lifecycle events.
// Zero value is not usable; create with New.
type Engine struct {
	mu      sync.Mutex
	handler func(engine.Event)
	nextID  int

	// Scripted failures. When set, the corresponding operation returns the
	// error instead of succeeding.
	ConnectErr error
	DialErr    error

	ConnectCalls   int
	RegisterCalls  int
	AnswerCalls    int
	CloseCalls     int
	Dialed         []string
	Terminated     []engine.SessionID
	Holds          []bool
	Mics           []bool
	LastIdentity   engine.Identity
	LastTarget     string
}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) OnEvent(fn func(engine.Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = fn
}

// Emit delivers an event to the installed handler, as the real engine would
// from one of its internal goroutines.
func (e *Engine) Emit(ev engine.Event) {
	e.mu.Lock()
	fn := e.handler
	e.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (e *Engine) Connect(ctx context.Context, target string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ConnectCalls++
	e.LastTarget = target
	return e.ConnectErr
}

func (e *Engine) Register(ctx context.Context, id engine.Identity) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.RegisterCalls++
	e.LastIdentity = id
	return nil
}

func (e *Engine) Dial(ctx context.Context, destination string) (engine.SessionID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.DialErr != nil {
		return "", e.DialErr
	}
	e.nextID++
	e.Dialed = append(e.Dialed, destination)
	return engine.SessionID(fmt.Sprintf("sess-%d", e.nextID)), nil
}

func (e *Engine) Answer(ctx context.Context, id engine.SessionID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.AnswerCalls++
	return nil
}

func (e *Engine) SetHold(ctx context.Context, id engine.SessionID, hold bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Holds = append(e.Holds, hold)
	return nil
}

func (e *Engine) SetMicEnabled(ctx context.Context, id engine.SessionID, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Mics = append(e.Mics, enabled)
	return nil
}

func (e *Engine) Terminate(ctx context.Context, id engine.SessionID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Terminated = append(e.Terminated, id)
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCalls++
	return nil
}

// Snapshot helpers: safe concurrent reads for assertions.

func (e *Engine) DialedTo() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.Dialed))
	copy(out, e.Dialed)
	return out
}

func (e *Engine) TerminatedIDs() []engine.SessionID {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.SessionID, len(e.Terminated))
	copy(out, e.Terminated)
	return out
}

func (e *Engine) Counts() (connect, register, answer int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ConnectCalls, e.RegisterCalls, e.AnswerCalls
}

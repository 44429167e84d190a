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

// Package engine defines the signaling/media engine collaborator: the
// component that implements the actual call-setup protocol. The call-control
// core only issues operations on it and observes its event stream.
package engine

import "context"

// SessionID is an opaque, engine-assigned call session identifier.
type SessionID string

func (id SessionID) String() string {
	return string(id)
}

// Direction of a call session.
type Direction bool

const (
	Incoming = Direction(false)
	Outgoing = Direction(true)
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// Identity is the signaling identity bundle supplied by the credential
// collaborator: who we register as and where.
type Identity struct {
	Extension   string
	Password    string
	ServerHost  string
	DisplayName string
}

// Engine is the external signaling engine. All operations must return
// quickly: long-running work (network I/O, media negotiation) happens inside
// the engine and is observed via the event stream. Dial returns a session
// handle synchronously; the call itself proceeds asynchronously.
type Engine interface {
	// Connect opens the signaling transport to the given target.
	Connect(ctx context.Context, target string) error
	// Register requests registration with the signaling server.
	Register(ctx context.Context, id Identity) error
	// Dial places an outbound call and returns its session handle.
	Dial(ctx context.Context, destination string) (SessionID, error)
	// Answer accepts an incoming session.
	Answer(ctx context.Context, id SessionID) error
	// SetHold places the session on or off hold.
	SetHold(ctx context.Context, id SessionID, hold bool) error
	// SetMicEnabled enables or disables the captured audio for the session.
	SetMicEnabled(ctx context.Context, id SessionID, enabled bool) error
	// Terminate ends the session: cancel during setup, hangup once answered.
	Terminate(ctx context.Context, id SessionID) error
	// OnEvent installs the event sink. Must be called before Connect.
	// The engine may invoke the handler from any goroutine; handlers must
	// only enqueue, never mutate state directly.
	OnEvent(fn func(Event))
	// Close tears the engine down, terminating any active sessions.
	Close() error
}

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

package engine

// Event is one notification from the engine's lifecycle stream.
type Event interface {
	event()
}

// SessionEvent is an event targeting a specific call session.
type SessionEvent interface {
	Event
	SID() SessionID
}

// Connected: the signaling transport is up.
type Connected struct{}

// Disconnected: the signaling transport dropped.
type Disconnected struct {
	Reason string
}

// Registered: the server accepted our registration.
type Registered struct{}

// RegistrationFailed: the server rejected registration, or it timed out.
type RegistrationFailed struct {
	Code   int
	Reason string
}

// NewSession: the engine created a call session, either because we dialed or
// because an INVITE arrived.
type NewSession struct {
	ID     SessionID
	Dir    Direction
	Remote string
}

// Progress: a provisional response for the session. HasMedia is set when the
// response carries a media description (early media).
type Progress struct {
	ID       SessionID
	HasMedia bool
	Raw      string
}

// Accepted: the remote side answered.
type Accepted struct {
	ID  SessionID
	Raw string
}

// Confirmed: the session setup handshake completed.
type Confirmed struct {
	ID SessionID
}

// Ended: the session terminated after being established.
type Ended struct {
	ID          SessionID
	Cause       string
	Code        int // 0 when the event carries no explicit code
	LocalOrigin bool
	Raw         string
}

// Failed: the session terminated before being established.
type Failed struct {
	ID          SessionID
	Cause       string
	Code        int
	LocalOrigin bool
	Raw         string
}

func (Connected) event()          {}
func (Disconnected) event()       {}
func (Registered) event()         {}
func (RegistrationFailed) event() {}
func (NewSession) event()         {}
func (Progress) event()           {}
func (Accepted) event()           {}
func (Confirmed) event()          {}
func (Ended) event()              {}
func (Failed) event()             {}

func (e NewSession) SID() SessionID { return e.ID }
func (e Progress) SID() SessionID   { return e.ID }
func (e Accepted) SID() SessionID   { return e.ID }
func (e Confirmed) SID() SessionID  { return e.ID }
func (e Ended) SID() SessionID      { return e.ID }
func (e Failed) SID() SessionID     { return e.ID }

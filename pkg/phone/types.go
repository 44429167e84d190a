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
	"fmt"
	"time"

	"github.com/voicedesk/softphone/pkg/engine"
)

// RegistrationPhase is the lifecycle phase of the signaling connection.
type RegistrationPhase string

const (
	PhaseDisconnected = RegistrationPhase("disconnected")
	PhaseConnecting   = RegistrationPhase("connecting")
	PhaseConnected    = RegistrationPhase("connected")
	PhaseRegistered   = RegistrationPhase("registered")
	PhaseFailed       = RegistrationPhase("failed")
)

// RegistrationState is a snapshot of the connection lifecycle. Mutated
// exclusively by RegistrationManager on the dispatch loop.
type RegistrationState struct {
	Phase         RegistrationPhase
	AttemptCount  uint32
	LastAttemptAt time.Time
	// CooldownUntil is set when automatic retries are suppressed; zero
	// otherwise. Failed phase implies either this is set or a retry is
	// scheduled.
	CooldownUntil time.Time
	LastError     string
}

// CallState is the lifecycle state of a call session.
type CallState string

const (
	CallIdle     = CallState("idle")
	CallRinging  = CallState("ringing")
	CallAnswered = CallState("answered")
	CallHold     = CallState("hold")
	CallEnded    = CallState("ended")
)

// CallSession is the single active call. At most one session is live
// (state not idle/ended) at any time; once ended it becomes immutable and is
// only kept for display.
type CallSession struct {
	ID             engine.SessionID
	Direction      engine.Direction
	State          CallState
	RemoteIdentity string

	StartedAt  time.Time
	AnsweredAt time.Time
	EndedAt    time.Time

	// EarlyMediaActive marks that remote audio was bound from a provisional
	// response, so the answer must not re-attach the stream.
	EarlyMediaActive bool
	MicEnabled       bool
	SpeakerEnabled   bool

	TerminationCode   int
	TerminationReason string
}

// Live reports whether the session still occupies the one active call slot.
func (s *CallSession) Live() bool {
	return s != nil && s.State != CallIdle && s.State != CallEnded
}

// Answered reports whether the call was picked up (including on hold).
func (s *CallSession) Answered() bool {
	return s != nil && (s.State == CallAnswered || s.State == CallHold)
}

// Elapsed is the talk time so far, zero before answer.
func (s *CallSession) Elapsed(now time.Time) time.Duration {
	if s == nil || s.AnsweredAt.IsZero() {
		return 0
	}
	end := now
	if !s.EndedAt.IsZero() {
		end = s.EndedAt
	}
	return end.Sub(s.AnsweredAt)
}

// DurationString renders elapsed talk time as mm:ss.
func (s *CallSession) DurationString(now time.Time) string {
	d := s.Elapsed(now)
	if d <= 0 {
		return ""
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// CallEndInfo is the user-facing summary of a finished call.
type CallEndInfo struct {
	Code       int
	Reason     string
	Successful bool
}

// callRetry is the ephemeral context for an outbound call that could not be
// placed because registration was not ready. Destroyed on success, user
// cancellation, or attempt exhaustion.
type callRetry struct {
	destination string
	attempts    uint32
	nextAt      time.Time
	timer       *time.Timer
}

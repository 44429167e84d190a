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

package errors

import (
	"time"

	"github.com/livekit/psrpc"
)

var (
	ErrNoConfig = psrpc.NewErrorf(psrpc.InvalidArgument, "missing config")

	// ErrNotRegistered is returned for call intents issued before the
	// signaling connection is registered and no retry could be queued.
	ErrNotRegistered = psrpc.NewErrorf(psrpc.FailedPrecondition, "not registered with signaling server")

	// ErrLoopDetected signals pathological re-initialization, not a network
	// condition. Callers must not retry automatically.
	ErrLoopDetected = psrpc.NewErrorf(psrpc.ResourceExhausted, "connection loop detected, cooling down")

	ErrRetriesExhausted   = psrpc.NewErrorf(psrpc.Unavailable, "could not connect: retries exhausted")
	ErrConnectInFlight    = psrpc.NewErrorf(psrpc.Aborted, "a connection attempt is already in flight")
	ErrCallInProgress     = psrpc.NewErrorf(psrpc.FailedPrecondition, "another call is already in progress")
	ErrNoActiveCall       = psrpc.NewErrorf(psrpc.NotFound, "no active call")
	ErrInvalidDestination = psrpc.NewErrorf(psrpc.InvalidArgument, "invalid destination number")
)

func ErrCouldNotParseConfig(err error) psrpc.Error {
	return psrpc.NewErrorf(psrpc.InvalidArgument, "could not parse config: %v", err)
}

func ErrCooldownActive(until time.Time) psrpc.Error {
	return psrpc.NewErrorf(psrpc.Unavailable, "connection cooldown active for another %s", time.Until(until).Round(time.Second))
}

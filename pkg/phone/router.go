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
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/livekit/protocol/logger"

	"github.com/voicedesk/softphone/pkg/engine"
	"github.com/voicedesk/softphone/pkg/stats"
)

const endedCacheSize = 64

// EventRouter filters session events before they reach the call controller.
// Events for sessions that already terminated, and events for sessions other
// than the live one, are dropped. Connection-level events always pass.
type EventRouter struct {
	log   logger.Logger
	mon   *stats.Monitor
	live  func() (engine.SessionID, bool)
	ended *lru.Cache[engine.SessionID, time.Time]
}

func NewEventRouter(log logger.Logger, mon *stats.Monitor, live func() (engine.SessionID, bool)) *EventRouter {
	ended, _ := lru.New[engine.SessionID, time.Time](endedCacheSize)
	return &EventRouter{
		log:   log.WithValues("component", "router"),
		mon:   mon,
		live:  live,
		ended: ended,
	}
}

// MarkEnded records that a session terminated; later events carrying its ID
// will be dropped. The cache is bounded, oldest entries are evicted first.
func (r *EventRouter) MarkEnded(id engine.SessionID) {
	r.ended.Add(id, time.Now())
}

// Route reports whether the event should be delivered.
func (r *EventRouter) Route(ev engine.Event) bool {
	se, ok := ev.(engine.SessionEvent)
	if !ok {
		return true
	}
	id := se.SID()
	if _, gone := r.ended.Get(id); gone {
		r.drop(ev, id, "session already terminated")
		return false
	}
	liveID, haveLive := r.live()
	switch ev.(type) {
	case engine.NewSession:
		if haveLive && liveID == id {
			r.drop(ev, id, "duplicate session announcement")
			return false
		}
	default:
		if !haveLive || liveID != id {
			r.drop(ev, id, "not the live session")
			return false
		}
	}
	return true
}

func (r *EventRouter) drop(ev engine.Event, id engine.SessionID, reason string) {
	kind := eventKind(ev)
	r.log.Debugw("dropping session event", "kind", kind, "sessionID", id, "reason", reason)
	r.mon.EventDropped(kind)
}

func eventKind(ev engine.Event) string {
	switch ev.(type) {
	case engine.NewSession:
		return "new_session"
	case engine.Progress:
		return "progress"
	case engine.Accepted:
		return "accepted"
	case engine.Confirmed:
		return "confirmed"
	case engine.Ended:
		return "ended"
	case engine.Failed:
		return "failed"
	default:
		return "unknown"
	}
}

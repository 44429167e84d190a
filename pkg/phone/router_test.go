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
	"testing"

	"github.com/livekit/protocol/logger"
	"github.com/stretchr/testify/require"

	"github.com/voicedesk/softphone/pkg/engine"
	"github.com/voicedesk/softphone/pkg/stats"
)

func newTestRouter(liveID *engine.SessionID) *EventRouter {
	return NewEventRouter(logger.GetLogger(), stats.NewMonitor(), func() (engine.SessionID, bool) {
		if *liveID == "" {
			return "", false
		}
		return *liveID, true
	})
}

func TestRouterConnectionEventsPass(t *testing.T) {
	live := engine.SessionID("")
	r := newTestRouter(&live)

	require.True(t, r.Route(engine.Connected{}))
	require.True(t, r.Route(engine.Registered{}))
	require.True(t, r.Route(engine.Disconnected{Reason: "timeout"}))
}

func TestRouterLiveSession(t *testing.T) {
	live := engine.SessionID("sess-1")
	r := newTestRouter(&live)

	require.True(t, r.Route(engine.Progress{ID: "sess-1"}))
	require.True(t, r.Route(engine.Accepted{ID: "sess-1"}))
	require.True(t, r.Route(engine.Ended{ID: "sess-1"}))

	// events for any other session are dropped
	require.False(t, r.Route(engine.Progress{ID: "sess-2"}))
	require.False(t, r.Route(engine.Accepted{ID: "sess-2"}))
}

func TestRouterNoLiveSession(t *testing.T) {
	live := engine.SessionID("")
	r := newTestRouter(&live)

	require.False(t, r.Route(engine.Progress{ID: "sess-1"}))
	// a new session may always start when nothing is live
	require.True(t, r.Route(engine.NewSession{ID: "sess-1", Dir: engine.Incoming}))
}

func TestRouterDuplicateNewSession(t *testing.T) {
	live := engine.SessionID("sess-1")
	r := newTestRouter(&live)

	require.False(t, r.Route(engine.NewSession{ID: "sess-1", Dir: engine.Outgoing}))
	// a different session announcement passes, the controller decides
	require.True(t, r.Route(engine.NewSession{ID: "sess-2", Dir: engine.Incoming}))
}

func TestRouterEndedSessionDropped(t *testing.T) {
	live := engine.SessionID("")
	r := newTestRouter(&live)

	r.MarkEnded("sess-1")
	require.False(t, r.Route(engine.Ended{ID: "sess-1"}))
	require.False(t, r.Route(engine.Failed{ID: "sess-1"}))
	// even a re-announcement of a terminated ID is dropped
	require.False(t, r.Route(engine.NewSession{ID: "sess-1", Dir: engine.Incoming}))
}

func TestRouterEndedCacheBounded(t *testing.T) {
	live := engine.SessionID("")
	r := newTestRouter(&live)

	for i := 0; i < endedCacheSize+1; i++ {
		r.MarkEnded(engine.SessionID(fmt.Sprintf("sess-%d", i)))
	}
	// the oldest entry was evicted, so its announcement passes again
	require.True(t, r.Route(engine.NewSession{ID: "sess-0", Dir: engine.Incoming}))
	require.False(t, r.Route(engine.NewSession{ID: "sess-1", Dir: engine.Incoming}))
}

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
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/livekit/protocol/logger"
	"github.com/stretchr/testify/require"

	"github.com/voicedesk/softphone/pkg/config"
	"github.com/voicedesk/softphone/pkg/engine"
	"github.com/voicedesk/softphone/pkg/engine/enginetest"
	"github.com/voicedesk/softphone/pkg/retry"
	"github.com/voicedesk/softphone/pkg/stats"
)

func testConf(t *testing.T) *config.Config {
	t.Helper()
	conf, err := config.NewConfig(`
sip_server: pbx.example.com
extension: "2001"
password: secret
connect_retry_delays: ["5ms", "10ms"]
dial_retry_delays: ["5ms", "10ms", "15ms"]
connect_cooldown: 1m
state_file: ` + filepath.Join(t.TempDir(), "state.yaml") + `
`)
	require.NoError(t, err)
	return conf
}

// directPost runs callbacks inline, keeping unit tests deterministic.
func directPost(fn func()) { fn() }

func testIdentity() engine.Identity {
	return engine.Identity{Extension: "2001", Password: "secret", ServerHost: "pbx.example.com"}
}

func newTestManager(t *testing.T, conf *config.Config, eng *enginetest.Engine) *RegistrationManager {
	t.Helper()
	guard := retry.NewLoopGuard(conf.LoopThreshold, conf.LoopWindow.Std(), conf.LoopQuiet.Std())
	m := NewRegistrationManager(conf, logger.GetLogger(), stats.NewMonitor(), eng, guard, directPost)
	t.Cleanup(m.Close)
	return m
}

func TestRegistrationLifecycle(t *testing.T) {
	conf := testConf(t)
	eng := enginetest.New()
	m := newTestManager(t, conf, eng)

	require.NoError(t, m.Connect(testIdentity()))
	require.Equal(t, PhaseConnecting, m.Status().Phase)

	m.handleEvent(engine.Connected{})
	_, registers, _ := eng.Counts()
	require.Equal(t, 1, registers)

	m.handleEvent(engine.Registered{})
	st := m.Status()
	require.Equal(t, PhaseRegistered, st.Phase)
	require.Zero(t, st.AttemptCount)
	require.True(t, st.CooldownUntil.IsZero())

	// connecting again while registered is a no-op
	require.NoError(t, m.Connect(testIdentity()))
	connects, _, _ := eng.Counts()
	require.Equal(t, 1, connects)
}

func TestRegistrationRetriesExhausted(t *testing.T) {
	conf := testConf(t)
	eng := enginetest.New()
	eng.ConnectErr = errors.New("connection refused")
	m := newTestManager(t, conf, eng)

	// the initial error is not surfaced, retries are automatic
	require.NoError(t, m.Connect(testIdentity()))

	require.Eventually(t, func() bool {
		st := m.Status()
		return st.AttemptCount == 3 && !st.CooldownUntil.IsZero()
	}, time.Second, 2*time.Millisecond)

	st := m.Status()
	require.Equal(t, PhaseFailed, st.Phase)
	require.Equal(t, "connection refused", st.LastError)
	connects, _, _ := eng.Counts()
	require.Equal(t, 3, connects, "initial attempt plus one retry per table entry")

	// no further automatic attempts
	time.Sleep(50 * time.Millisecond)
	connects, _, _ = eng.Counts()
	require.Equal(t, 3, connects)

	// manual connect is rejected during cooldown
	err := m.Connect(testIdentity())
	require.Error(t, err)
}

func TestRegistrationFailureEvent(t *testing.T) {
	conf := testConf(t)
	eng := enginetest.New()
	m := newTestManager(t, conf, eng)

	require.NoError(t, m.Connect(testIdentity()))
	m.handleEvent(engine.Connected{})
	m.handleEvent(engine.RegistrationFailed{Code: 403, Reason: "Forbidden"})

	st := m.Status()
	require.Equal(t, PhaseFailed, st.Phase)
	require.Equal(t, uint32(1), st.AttemptCount)
	require.Equal(t, "Forbidden", st.LastError)

	// a scheduled retry brings it back
	require.Eventually(t, func() bool {
		connects, _, _ := eng.Counts()
		return connects == 2
	}, time.Second, 2*time.Millisecond)
}

func TestRegistrationDisconnectTriggersRetry(t *testing.T) {
	conf := testConf(t)
	eng := enginetest.New()
	m := newTestManager(t, conf, eng)

	require.NoError(t, m.Connect(testIdentity()))
	m.handleEvent(engine.Connected{})
	m.handleEvent(engine.Registered{})
	require.Equal(t, PhaseRegistered, m.Status().Phase)

	m.handleEvent(engine.Disconnected{Reason: "read timeout"})
	st := m.Status()
	require.Equal(t, PhaseFailed, st.Phase)
	require.Equal(t, uint32(1), st.AttemptCount)
}

func TestRegistrationCooldownPersists(t *testing.T) {
	conf := testConf(t)
	eng := enginetest.New()
	eng.ConnectErr = errors.New("connection refused")
	m := newTestManager(t, conf, eng)

	require.NoError(t, m.Connect(testIdentity()))
	require.Eventually(t, func() bool {
		return !m.Status().CooldownUntil.IsZero()
	}, time.Second, 2*time.Millisecond)
	m.Close()

	// a fresh instance, as after an app restart, still honors the cooldown
	m2 := newTestManager(t, conf, eng)
	st := m2.Status()
	require.False(t, st.CooldownUntil.IsZero())
	require.Equal(t, uint32(3), st.AttemptCount)
	require.Error(t, m2.Connect(testIdentity()))
}

func TestRegistrationLoopGuard(t *testing.T) {
	conf := testConf(t)
	eng := enginetest.New()
	eng.ConnectErr = errors.New("connection refused")
	guard := retry.NewLoopGuard(1, 10*time.Second, time.Minute)
	m := NewRegistrationManager(conf, logger.GetLogger(), stats.NewMonitor(), eng, guard, directPost)
	t.Cleanup(m.Close)

	require.NoError(t, m.Connect(testIdentity()))
	// the first retry trips the guard and forces a quiet period
	require.Eventually(t, func() bool {
		return !m.Status().CooldownUntil.IsZero()
	}, time.Second, 2*time.Millisecond)

	connects, _, _ := eng.Counts()
	require.Equal(t, 1, connects)
	require.Error(t, m.Connect(testIdentity()))
}

func TestRegistrationStatusListeners(t *testing.T) {
	conf := testConf(t)
	eng := enginetest.New()
	m := newTestManager(t, conf, eng)

	var phases []RegistrationPhase
	m.OnStatusChange(func(st RegistrationState) {
		phases = append(phases, st.Phase)
	})

	require.NoError(t, m.Connect(testIdentity()))
	m.handleEvent(engine.Connected{})
	m.handleEvent(engine.Registered{})

	require.Equal(t, []RegistrationPhase{PhaseConnecting, PhaseConnected, PhaseRegistered}, phases)
}

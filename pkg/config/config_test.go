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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	conf, err := NewConfig(`
sip_server: pbx.example.com
extension: "2001"
password: secret
`)
	require.NoError(t, err)
	require.Equal(t, "pbx.example.com", conf.SIPServer)
	require.Equal(t, 5060, conf.SIPPort)
	require.Equal(t, 10*time.Minute, conf.RegisterExpiry.Std())
	require.Equal(t, 45*time.Second, conf.RingingTimeout.Std())
	require.Equal(t, 30*time.Second, conf.ConnectCooldown.Std())
	require.Equal(t, 3, conf.LoopThreshold)
	require.Equal(t, 10*time.Second, conf.LoopWindow.Std())
	require.Equal(t, time.Minute, conf.LoopQuiet.Std())

	require.Len(t, conf.ConnectRetryDelays, 2)
	require.Equal(t, 1500*time.Millisecond, conf.ConnectRetryDelays[0].Std())
	require.Equal(t, 3*time.Second, conf.ConnectRetryDelays[1].Std())

	require.Len(t, conf.DialRetryDelays, 3)
	require.Equal(t, 5*time.Second, conf.DialRetryDelays[2].Std())
}

func TestConfigOverrides(t *testing.T) {
	conf, err := NewConfig(`
sip_server: pbx.example.com
extension: "2001"
password: secret
sip_port: 5080
register_expiry: 5m
connect_retry_delays: ["500ms", "1s", "2s"]
connect_cooldown: 10s
state_file: /tmp/softphone-test.yaml
`)
	require.NoError(t, err)
	require.Equal(t, 5080, conf.SIPPort)
	require.Equal(t, 5*time.Minute, conf.RegisterExpiry.Std())
	require.Equal(t, 10*time.Second, conf.ConnectCooldown.Std())
	require.Equal(t, "/tmp/softphone-test.yaml", conf.StateFile)
	require.Len(t, conf.ConnectRetryDelays, 3)
	require.Equal(t, 500*time.Millisecond, conf.ConnectRetryDelays[0].Std())
}

func TestConfigRequiredFields(t *testing.T) {
	t.Setenv("SOFTPHONE_SIP_SERVER", "")
	t.Setenv("SOFTPHONE_EXTENSION", "")

	_, err := NewConfig(`extension: "2001"`)
	require.Error(t, err)

	_, err = NewConfig(`sip_server: pbx.example.com`)
	require.Error(t, err)
}

func TestConfigInvalidDuration(t *testing.T) {
	_, err := NewConfig(`
sip_server: pbx.example.com
extension: "2001"
ringing_timeout: nonsense
`)
	require.Error(t, err)
}

func TestConfigEnvFallback(t *testing.T) {
	t.Setenv("SOFTPHONE_SIP_SERVER", "env.example.com")
	t.Setenv("SOFTPHONE_EXTENSION", "3001")
	t.Setenv("SOFTPHONE_PASSWORD", "envsecret")

	conf, err := NewConfig("")
	require.NoError(t, err)
	require.Equal(t, "env.example.com", conf.SIPServer)
	require.Equal(t, "3001", conf.Extension)
	require.Equal(t, "envsecret", conf.Password)
}

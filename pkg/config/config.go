// Copyright 2024 VoiceDesk, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livekit/protocol/logger"

	"github.com/voicedesk/softphone/pkg/errors"
)

// Duration wraps time.Duration so yaml values can be written as "1.5s".
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	// Signaling identity, normally supplied by the credential service.
	SIPServer   string `yaml:"sip_server"`   // required (env SOFTPHONE_SIP_SERVER)
	Extension   string `yaml:"extension"`    // required (env SOFTPHONE_EXTENSION)
	Password    string `yaml:"password"`     // required (env SOFTPHONE_PASSWORD)
	DisplayName string `yaml:"display_name"` // optional

	SIPPort        int      `yaml:"sip_port"`
	RegisterExpiry Duration `yaml:"register_expiry"`
	RingingTimeout Duration `yaml:"ringing_timeout"`

	// Retry policy. Delay tables are ascending; their length bounds the
	// number of attempts before the cooldown kicks in.
	ConnectRetryDelays []Duration `yaml:"connect_retry_delays"`
	ConnectCooldown    Duration   `yaml:"connect_cooldown"`
	DialRetryDelays    []Duration `yaml:"dial_retry_delays"`

	// Loop guard policy. More than LoopThreshold attempts of one operation
	// within LoopWindow forces a quiet period of LoopQuiet.
	LoopThreshold int      `yaml:"loop_threshold"`
	LoopWindow    Duration `yaml:"loop_window"`
	LoopQuiet     Duration `yaml:"loop_quiet"`

	// StateFile persists registration failure accounting across restarts.
	StateFile string `yaml:"state_file"`

	PrometheusPort int `yaml:"prometheus_port"`

	Logging logger.Config `yaml:"logging"`

	// internal
	ServiceName string `yaml:"-"`
}

func NewConfig(confString string) (*Config, error) {
	conf := &Config{
		SIPServer:   os.Getenv("SOFTPHONE_SIP_SERVER"),
		Extension:   os.Getenv("SOFTPHONE_EXTENSION"),
		Password:    os.Getenv("SOFTPHONE_PASSWORD"),
		ServiceName: "softphone",
	}
	if confString != "" {
		if err := yaml.Unmarshal([]byte(confString), conf); err != nil {
			return nil, errors.ErrCouldNotParseConfig(err)
		}
	}
	conf.applyDefaults()

	if conf.SIPServer == "" {
		return nil, errors.ErrCouldNotParseConfig(fmt.Errorf("sip_server is required"))
	}
	if conf.Extension == "" {
		return nil, errors.ErrCouldNotParseConfig(fmt.Errorf("extension is required"))
	}
	return conf, nil
}

func (conf *Config) applyDefaults() {
	if conf.SIPPort == 0 {
		conf.SIPPort = 5060
	}
	if conf.RegisterExpiry == 0 {
		conf.RegisterExpiry = Duration(600 * time.Second)
	}
	if conf.RingingTimeout == 0 {
		conf.RingingTimeout = Duration(45 * time.Second)
	}
	if len(conf.ConnectRetryDelays) == 0 {
		conf.ConnectRetryDelays = []Duration{
			Duration(1500 * time.Millisecond),
			Duration(3 * time.Second),
		}
	}
	if conf.ConnectCooldown == 0 {
		conf.ConnectCooldown = Duration(30 * time.Second)
	}
	if len(conf.DialRetryDelays) == 0 {
		conf.DialRetryDelays = []Duration{
			Duration(1500 * time.Millisecond),
			Duration(3 * time.Second),
			Duration(5 * time.Second),
		}
	}
	if conf.LoopThreshold == 0 {
		conf.LoopThreshold = 3
	}
	if conf.LoopWindow == 0 {
		conf.LoopWindow = Duration(10 * time.Second)
	}
	if conf.LoopQuiet == 0 {
		conf.LoopQuiet = Duration(60 * time.Second)
	}
	if conf.StateFile == "" {
		conf.StateFile = "softphone-state.yaml"
	}
}

func (conf *Config) Init() error {
	return conf.InitLogger()
}

func (c *Config) InitLogger(values ...interface{}) error {
	zl, err := logger.NewZapLogger(&c.Logging)
	if err != nil {
		return err
	}

	l := zl.WithValues(values...)
	logger.SetLogger(l, c.ServiceName)
	return nil
}

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
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livekit/protocol/logger"
)

// persistedState survives an application restart so a registration cooldown
// cannot be bypassed by relaunching the client.
type persistedState struct {
	LastErrorAt       time.Time `yaml:"last_error_at"`
	ConsecutiveErrors uint32    `yaml:"consecutive_errors"`
	CooldownUntil     time.Time `yaml:"cooldown_until"`
}

type stateStore struct {
	path string
	log  logger.Logger
}

func newStateStore(path string, log logger.Logger) *stateStore {
	return &stateStore{path: path, log: log}
}

func (s *stateStore) load() persistedState {
	var st persistedState
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnw("could not read state file", err, "path", s.path)
		}
		return st
	}
	if err := yaml.Unmarshal(b, &st); err != nil {
		s.log.Warnw("could not parse state file", err, "path", s.path)
		return persistedState{}
	}
	return st
}

func (s *stateStore) save(st persistedState) {
	b, err := yaml.Marshal(st)
	if err != nil {
		s.log.Warnw("could not encode state file", err)
		return
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		s.log.Warnw("could not write state file", err, "path", s.path)
	}
}

func (s *stateStore) clear() {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.log.Warnw("could not remove state file", err, "path", s.path)
	}
}

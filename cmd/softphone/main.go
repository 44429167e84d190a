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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/livekit/protocol/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/voicedesk/softphone/pkg/config"
	"github.com/voicedesk/softphone/pkg/errors"
	"github.com/voicedesk/softphone/pkg/phone"
	"github.com/voicedesk/softphone/pkg/sipclient"
	"github.com/voicedesk/softphone/pkg/stats"
	"github.com/voicedesk/softphone/version"
)

func main() {
	cmd := &cli.Command{
		Name:        "softphone",
		Usage:       "VoiceDesk softphone client core",
		Version:     version.Version,
		Description: "SIP call control for VoiceDesk desktop clients",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "VoiceDesk yaml config file",
				Sources: cli.EnvVars("SOFTPHONE_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "config-body",
				Usage:   "VoiceDesk yaml config body",
				Sources: cli.EnvVars("SOFTPHONE_CONFIG_BODY"),
			},
			&cli.StringFlag{
				Name:  "dial",
				Usage: "destination to call once registered",
			},
		},
		Action: runClient,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Println(err)
	}
}

func runClient(ctx context.Context, c *cli.Command) error {
	conf, err := getConfig(c, true)
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	mon := stats.NewMonitor()
	if err := mon.Start(); err != nil {
		return err
	}
	defer mon.Stop()
	if conf.PrometheusPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", conf.PrometheusPort)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Warnw("metrics listener stopped", err)
			}
		}()
	}

	eng := sipclient.NewClient(conf, log)
	p := phone.New(conf, log, mon, eng)

	p.OnStatusChange(func(st phone.RegistrationState) {
		log.Infow("registration status", "phase", st.Phase, "attempts", st.AttemptCount)
	})
	p.OnIncomingCall(func(s phone.CallSession) {
		log.Infow("ringing", "sessionID", s.ID, "remote", s.RemoteIdentity)
	})
	p.OnCallEnded(func(info phone.CallEndInfo) {
		log.Infow("call finished",
			"code", info.Code, "reason", info.Reason, "successful", info.Successful)
	})

	if err := p.Start(); err != nil {
		return err
	}
	defer p.Close()

	if err := p.Connect(); err != nil {
		return err
	}
	if dest := c.String("dial"); dest != "" {
		if err := p.Dial(dest); err != nil {
			return err
		}
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)
	sig := <-stopChan
	log.Infow("exit requested, hanging up and shutting down", "signal", sig)
	_ = p.Hangup()
	return nil
}

func getConfig(c *cli.Command, initialize bool) (*config.Config, error) {
	configFile := c.String("config")
	configBody := c.String("config-body")
	if configBody == "" {
		if configFile == "" {
			return nil, errors.ErrNoConfig
		}
		content, err := os.ReadFile(configFile)
		if err != nil {
			return nil, err
		}
		configBody = string(content)
	}

	conf, err := config.NewConfig(configBody)
	if err != nil {
		return nil, err
	}

	if initialize {
		if err = conf.Init(); err != nil {
			return nil, err
		}
	}

	return conf, nil
}

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

package sipclient

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/emiago/sipgo"
	"github.com/frostbyte73/core"
	"github.com/livekit/protocol/logger"
	"golang.org/x/exp/maps"

	"github.com/voicedesk/softphone/pkg/config"
	"github.com/voicedesk/softphone/pkg/engine"
)

const UserAgent = "VoiceDesk"

// Client is the SIP implementation of engine.Engine. All operations are
// non-blocking: transactions run on their own goroutines and report back
// through the event handler.
type Client struct {
	conf *config.Config
	log  logger.Logger

	closing core.Fuse
	nextSID atomic.Uint64

	mu       sync.Mutex
	ua       *sipgo.UserAgent
	sipCli   *sipgo.Client
	sipSrv   *sipgo.Server
	handler  func(engine.Event)
	identity engine.Identity
	target   string
	localIP  netip.Addr
	regStop  chan struct{}
	sessions map[engine.SessionID]*session
}

func NewClient(conf *config.Config, log logger.Logger) *Client {
	return &Client{
		conf:     conf,
		log:      log.WithValues("component", "sip"),
		sessions: make(map[engine.SessionID]*session),
	}
}

var _ engine.Engine = (*Client)(nil)

func (c *Client) OnEvent(fn func(engine.Event)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

func (c *Client) emit(ev engine.Event) {
	c.mu.Lock()
	fn := c.handler
	c.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Connect brings the SIP transport up against the given server address.
// A previous transport, if any, is torn down first.
func (c *Client) Connect(ctx context.Context, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()

	ip, err := localAddrFor(target)
	if err != nil {
		return fmt.Errorf("cannot resolve local address: %w", err)
	}

	ua, err := sipgo.NewUA(sipgo.WithUserAgent(UserAgent))
	if err != nil {
		return err
	}
	cli, err := sipgo.NewClient(ua, sipgo.WithClientHostname(ip.String()))
	if err != nil {
		ua.Close()
		return err
	}
	srv, err := sipgo.NewServer(ua)
	if err != nil {
		cli.Close()
		ua.Close()
		return err
	}
	srv.OnInvite(c.onInvite)
	srv.OnBye(c.onBye)
	srv.OnCancel(c.onCancel)
	srv.OnAck(c.onAck)
	srv.OnNotify(c.onKeepalive)
	srv.OnOptions(c.onKeepalive)

	c.ua, c.sipCli, c.sipSrv = ua, cli, srv
	c.target = target
	c.localIP = ip

	go func() {
		err := srv.ListenAndServe(context.Background(), "udp", "0.0.0.0:0")
		if err != nil && !c.closing.IsBroken() {
			c.log.Warnw("transport stopped", err)
			c.emit(engine.Disconnected{Reason: err.Error()})
		}
	}()
	c.log.Infow("transport up", "target", target, "localIP", ip)
	go c.emit(engine.Connected{})
	return nil
}

func (c *Client) teardownLocked() {
	if c.regStop != nil {
		close(c.regStop)
		c.regStop = nil
	}
	if c.sipSrv != nil {
		_ = c.sipSrv.Close()
		c.sipSrv = nil
	}
	if c.sipCli != nil {
		_ = c.sipCli.Close()
		c.sipCli = nil
	}
	if c.ua != nil {
		_ = c.ua.Close()
		c.ua = nil
	}
}

func (c *Client) newSessionID() engine.SessionID {
	return engine.SessionID(fmt.Sprintf("sip-%d", c.nextSID.Add(1)))
}

func (c *Client) addSession(s *session) {
	c.mu.Lock()
	c.sessions[s.id] = s
	c.mu.Unlock()
}

func (c *Client) getSession(id engine.SessionID) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[id]
}

func (c *Client) dropSession(id engine.SessionID) {
	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()
}

// sessionByCallID matches an in-dialog request to a live session.
func (c *Client) sessionByCallID(callID string) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sessions {
		if s.callID() == callID {
			return s
		}
	}
	return nil
}

// SetMicEnabled is a device concern for this engine, capture muting
// happens at the audio layer. Only the intent is recorded here.
func (c *Client) SetMicEnabled(ctx context.Context, id engine.SessionID, enabled bool) error {
	c.log.Debugw("microphone toggled", "sessionID", id, "enabled", enabled)
	return nil
}

func (c *Client) Close() error {
	c.closing.Once(func() {
		c.mu.Lock()
		sessions := maps.Values(c.sessions)
		c.sessions = make(map[engine.SessionID]*session)
		c.mu.Unlock()
		for _, s := range sessions {
			s.hangup(c, "shutdown")
		}
		c.mu.Lock()
		c.teardownLocked()
		c.mu.Unlock()
	})
	return nil
}

// localAddrFor finds the local interface address that routes to target.
func localAddrFor(target string) (netip.Addr, error) {
	conn, err := net.Dial("udp", target)
	if err != nil {
		return netip.Addr{}, err
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	ip, ok := netip.AddrFromSlice(addr.IP)
	if !ok {
		return netip.Addr{}, fmt.Errorf("invalid local address %q", addr.IP)
	}
	return ip.Unmap(), nil
}

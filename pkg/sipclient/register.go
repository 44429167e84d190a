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
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
	"github.com/icholy/digest"

	"github.com/voicedesk/softphone/pkg/engine"
)

const registerTimeout = 10 * time.Second

// Register starts the registration loop for the given identity. The loop
// refreshes the binding at half the configured expiry until the transport
// is torn down. Outcomes are reported through events.
func (c *Client) Register(ctx context.Context, id engine.Identity) error {
	c.mu.Lock()
	if c.sipCli == nil {
		c.mu.Unlock()
		return errors.New("transport is not connected")
	}
	c.identity = id
	if c.regStop != nil {
		close(c.regStop)
	}
	stop := make(chan struct{})
	c.regStop = stop
	c.mu.Unlock()

	go c.registerLoop(id, stop)
	return nil
}

func (c *Client) registerLoop(id engine.Identity, stop chan struct{}) {
	expiry := uint32(c.conf.RegisterExpiry.Std() / time.Second)
	refresh := c.conf.RegisterExpiry.Std() / 2
	for {
		if !c.register(id, expiry) {
			return
		}
		select {
		case <-time.After(refresh):
		case <-stop:
			c.unregister(id)
			return
		}
	}
}

func (c *Client) register(id engine.Identity, expiry uint32) bool {
	ctx, cancel := context.WithTimeout(context.Background(), registerTimeout)
	defer cancel()

	resp, err := c.authTransaction(ctx, c.registerRequest(id, expiry), id.Extension, id.Password)
	if err != nil {
		c.log.Warnw("register transaction failed", err, "extension", id.Extension)
		c.emit(engine.RegistrationFailed{Code: 503, Reason: err.Error()})
		return false
	}
	if resp.StatusCode != sip.StatusOK {
		c.log.Warnw("register rejected", nil,
			"code", resp.StatusCode, "reason", resp.Reason)
		c.emit(engine.RegistrationFailed{Code: int(resp.StatusCode), Reason: resp.Reason})
		return false
	}
	c.emit(engine.Registered{})
	return true
}

// unregister removes the binding, best effort.
func (c *Client) unregister(id engine.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), registerTimeout)
	defer cancel()
	if _, err := c.authTransaction(ctx, c.registerRequest(id, 0), id.Extension, id.Password); err != nil {
		c.log.Debugw("unregister failed", "error", err)
	}
}

func (c *Client) registerRequest(id engine.Identity, expiry uint32) *sip.Request {
	req := sip.NewRequest(sip.REGISTER, sip.Uri{Scheme: "sip", Host: id.ServerHost})
	req.SetDestination(c.target)

	aor := sip.Uri{Scheme: "sip", User: id.Extension, Host: id.ServerHost}
	fromParams := sip.NewParams()
	fromParams.Add("tag", newTag())
	req.AppendHeader(&sip.FromHeader{
		DisplayName: id.DisplayName,
		Address:     aor,
		Params:      fromParams,
	})
	req.AppendHeader(&sip.ToHeader{Address: aor, Params: sip.NewParams()})
	req.AppendHeader(&sip.ContactHeader{
		Address: sip.Uri{Scheme: "sip", User: id.Extension, Host: c.localIP.String()},
	})
	req.AppendHeader(sip.NewHeader("Expires", strconv.FormatUint(uint64(expiry), 10)))
	req.AppendHeader(sip.NewHeader("Allow", "INVITE, ACK, CANCEL, BYE, NOTIFY, REFER, MESSAGE, OPTIONS, INFO, SUBSCRIBE"))
	return req
}

// authTransaction runs a client transaction and handles one digest
// challenge round, either 401 or 407.
func (c *Client) authTransaction(ctx context.Context, req *sip.Request, user, pass string) (*sip.Response, error) {
	c.mu.Lock()
	cli := c.sipCli
	c.mu.Unlock()
	if cli == nil {
		return nil, errors.New("transport is not connected")
	}

	resp, err := c.transaction(ctx, cli, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != sip.StatusUnauthorized && resp.StatusCode != sip.StatusProxyAuthRequired {
		return resp, nil
	}
	authReq, err := buildAuthRequest(req, resp, user, pass)
	if err != nil {
		return nil, err
	}
	return c.transaction(ctx, cli, authReq)
}

// buildAuthRequest answers a 401 or 407 challenge with a copy of req
// carrying the computed digest credentials.
func buildAuthRequest(req *sip.Request, resp *sip.Response, user, pass string) (*sip.Request, error) {
	if user == "" || pass == "" {
		return nil, errors.New("server requires auth, but no credentials were provided")
	}
	challengeHeader, authzHeader := "WWW-Authenticate", "Authorization"
	if resp.StatusCode == sip.StatusProxyAuthRequired {
		challengeHeader, authzHeader = "Proxy-Authenticate", "Proxy-Authorization"
	}
	hdr := resp.GetHeader(challengeHeader)
	if hdr == nil {
		return nil, fmt.Errorf("got %d but no %s header", resp.StatusCode, challengeHeader)
	}
	challenge, err := digest.ParseChallenge(hdr.Value())
	if err != nil {
		return nil, fmt.Errorf("parsing auth challenge: %w", err)
	}
	cred, err := digest.Digest(challenge, digest.Options{
		Method:   req.Method.String(),
		URI:      req.Recipient.String(),
		Username: user,
		Password: pass,
	})
	if err != nil {
		return nil, fmt.Errorf("computing digest: %w", err)
	}
	authReq := req.Clone()
	authReq.RemoveHeader("Via")
	authReq.AppendHeader(sip.NewHeader(authzHeader, cred.String()))
	return authReq, nil
}

// transaction sends req and waits for the final response, skipping
// provisionals.
func (c *Client) transaction(ctx context.Context, cli *sipgo.Client, req *sip.Request) (*sip.Response, error) {
	tx, err := cli.TransactionRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	defer tx.Terminate()
	return finalResponse(ctx, tx)
}

func newTag() string {
	return uuid.New().String()[:8]
}

func finalResponse(ctx context.Context, tx sip.ClientTransaction) (*sip.Response, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tx.Done():
			return nil, errors.New("transaction terminated without a final response")
		case resp := <-tx.Responses():
			if resp == nil {
				return nil, errors.New("transaction closed")
			}
			if resp.StatusCode >= 200 {
				return resp, nil
			}
		}
	}
}

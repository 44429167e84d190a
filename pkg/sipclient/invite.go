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
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/voicedesk/softphone/pkg/engine"
	serrors "github.com/voicedesk/softphone/pkg/errors"
	"github.com/voicedesk/softphone/pkg/outcome"
)

const (
	// rtpAdvertisePort is what the SDP advertises; actual packet flow is
	// owned by the audio layer.
	rtpAdvertisePort = 4000

	byeTimeout = 5 * time.Second
)

// Dial places an outbound call. The session ID is returned immediately,
// signaling progress arrives through events.
func (c *Client) Dial(ctx context.Context, dest string) (engine.SessionID, error) {
	c.mu.Lock()
	cli := c.sipCli
	id := c.identity
	c.mu.Unlock()
	if cli == nil {
		return "", errors.New("transport is not connected")
	}

	s := &session{id: c.newSessionID(), dir: engine.Outgoing}
	sctx, cancel := context.WithCancel(context.Background())
	s.cancelSetup = cancel
	c.addSession(s)
	c.log.Infow("placing call", "sessionID", s.id, "destination", dest)
	go c.runInvite(sctx, s, id, dest)
	return s.id, nil
}

func (c *Client) runInvite(sctx context.Context, s *session, id engine.Identity, dest string) {
	offer, err := newSessionDescription(c.localIP, rtpAdvertisePort, "sendrecv")
	if err != nil {
		c.failSession(s, outcome.CauseTransportError, 0, err.Error())
		return
	}
	req := c.inviteRequest(id, dest, offer)

	ringCtx, cancel := context.WithTimeout(sctx, c.conf.RingingTimeout.Std())
	defer cancel()

	c.mu.Lock()
	cli := c.sipCli
	c.mu.Unlock()
	if cli == nil {
		c.failSession(s, outcome.CauseTransportError, 0, "")
		return
	}
	tx, err := cli.TransactionRequest(ringCtx, req)
	if err != nil {
		c.log.Warnw("invite transaction failed", err, "sessionID", s.id)
		c.failSession(s, outcome.CauseTransportError, 0, "")
		return
	}
	defer func() { tx.Terminate() }()
	if h := req.CallID(); h != nil {
		s.mu.Lock()
		s.cid = h.Value()
		s.mu.Unlock()
	}

	authRetried := false
	for {
		select {
		case <-ringCtx.Done():
			c.sendCancel(req)
			if sctx.Err() != nil {
				// local hangup while ringing
				c.endSession(s, outcome.CauseCanceled, 487, true, "")
			} else {
				c.log.Infow("call setup timed out", "sessionID", s.id)
				c.endSession(s, outcome.CauseNoAnswer, 408, true, "")
			}
			return
		case <-tx.Done():
			c.failSession(s, outcome.CauseTransportError, 0, "")
			return
		case resp := <-tx.Responses():
			if resp == nil {
				c.failSession(s, outcome.CauseTransportError, 0, "")
				return
			}
			switch {
			case resp.StatusCode < 200:
				if resp.StatusCode == sip.StatusTrying {
					continue
				}
				c.emit(engine.Progress{
					ID:       s.id,
					HasMedia: hasMediaBody(resp.Body()),
					Raw:      resp.String(),
				})
			case resp.StatusCode == sip.StatusOK:
				c.establishOutbound(s, req, resp, cli)
				return
			case (resp.StatusCode == sip.StatusUnauthorized ||
				resp.StatusCode == sip.StatusProxyAuthRequired) && !authRetried:
				authRetried = true
				authReq, err := buildAuthRequest(req, resp, id.Extension, id.Password)
				if err != nil {
					c.log.Warnw("invite auth failed", err, "sessionID", s.id)
					c.failSession(s, outcome.CauseRejected, int(resp.StatusCode), resp.String())
					return
				}
				tx.Terminate()
				tx, err = cli.TransactionRequest(ringCtx, authReq)
				if err != nil {
					c.failSession(s, outcome.CauseTransportError, 0, "")
					return
				}
				req = authReq
			default:
				c.log.Infow("call rejected",
					"sessionID", s.id, "code", resp.StatusCode, "reason", resp.Reason)
				c.failSession(s, causeForStatus(int(resp.StatusCode)), int(resp.StatusCode), resp.String())
				return
			}
		}
	}
}

func (c *Client) establishOutbound(s *session, req *sip.Request, resp *sip.Response, cli *sipgo.Client) {
	s.mu.Lock()
	s.invite, s.inviteOK = req, resp
	if from := req.From(); from != nil {
		s.localURI = from.Address
		s.localTag, _ = from.Params.Get("tag")
	}
	if to := resp.To(); to != nil {
		s.remoteURI = to.Address
		s.remoteTarget = to.Address
		s.remoteTag, _ = to.Params.Get("tag")
	}
	if cont := resp.Contact(); cont != nil {
		s.remoteTarget = cont.Address
		if s.remoteTarget.Port == 0 {
			s.remoteTarget.Port = 5060
		}
	}
	if cseq := req.CSeq(); cseq != nil {
		s.cseq = cseq.SeqNo
	}
	s.answered = true
	ack := s.newInDialogRequestLocked(sip.ACK, nil, c.target)
	s.mu.Unlock()

	if err := cli.WriteRequest(ack); err != nil {
		c.log.Warnw("could not ack invite", err, "sessionID", s.id)
	}
	c.emit(engine.Accepted{ID: s.id, Raw: resp.String()})
	c.emit(engine.Confirmed{ID: s.id})
}

func (c *Client) inviteRequest(id engine.Identity, dest string, offer []byte) *sip.Request {
	to := sip.Uri{Scheme: "sip", User: dest, Host: id.ServerHost}
	req := sip.NewRequest(sip.INVITE, to)
	req.SetDestination(c.target)

	from := sip.Uri{Scheme: "sip", User: id.Extension, Host: id.ServerHost}
	fromParams := sip.NewParams()
	fromParams.Add("tag", newTag())
	req.AppendHeader(&sip.FromHeader{
		DisplayName: id.DisplayName,
		Address:     from,
		Params:      fromParams,
	})
	req.AppendHeader(&sip.ToHeader{Address: to, Params: sip.NewParams()})
	req.AppendHeader(&sip.ContactHeader{
		Address: sip.Uri{Scheme: "sip", User: id.Extension, Host: c.localIP.String()},
	})
	req.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	req.AppendHeader(sip.NewHeader("Allow", "INVITE, ACK, CANCEL, BYE, NOTIFY, REFER, MESSAGE, OPTIONS, INFO, SUBSCRIBE"))
	req.SetBody(offer)
	return req
}

// sendCancel cancels an in-progress INVITE, RFC 3261 section 9.1.
func (c *Client) sendCancel(invite *sip.Request) {
	cancelReq := sip.NewRequest(sip.CANCEL, invite.Recipient)
	cancelReq.SetDestination(c.target)
	sip.CopyHeaders("Via", invite, cancelReq)
	sip.CopyHeaders("From", invite, cancelReq)
	sip.CopyHeaders("To", invite, cancelReq)
	sip.CopyHeaders("Call-ID", invite, cancelReq)
	if cseq := invite.CSeq(); cseq != nil {
		cancelReq.AppendHeader(&sip.CSeqHeader{SeqNo: cseq.SeqNo, MethodName: sip.CANCEL})
	}
	maxFwd := sip.MaxForwardsHeader(70)
	cancelReq.AppendHeader(&maxFwd)

	c.mu.Lock()
	cli := c.sipCli
	c.mu.Unlock()
	if cli == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), byeTimeout)
	defer cancel()
	tx, err := cli.TransactionRequest(ctx, cancelReq)
	if err != nil {
		c.log.Debugw("cancel failed", "error", err)
		return
	}
	defer tx.Terminate()
	select {
	case <-tx.Responses():
	case <-tx.Done():
	case <-ctx.Done():
	}
}

// Terminate tears down the session. It returns immediately, the teardown
// runs in the background.
func (c *Client) Terminate(ctx context.Context, id engine.SessionID) error {
	s := c.getSession(id)
	if s == nil {
		return serrors.ErrNoActiveCall
	}
	go s.hangup(c, "user")
	return nil
}

// Answer accepts a ringing inbound session.
func (c *Client) Answer(ctx context.Context, id engine.SessionID) error {
	s := c.getSession(id)
	if s == nil || s.dir != engine.Incoming {
		return serrors.ErrNoActiveCall
	}
	go c.accept(s)
	return nil
}

func (c *Client) accept(s *session) {
	body, err := newSessionDescription(c.localIP, rtpAdvertisePort, "sendrecv")
	if err != nil {
		c.failSession(s, outcome.CauseTransportError, 0, "")
		return
	}

	s.mu.Lock()
	inv, tx := s.invite, s.inTx
	if inv == nil || tx == nil {
		s.mu.Unlock()
		return
	}
	tag := newTag()
	resp := sip.NewResponseFromRequest(inv, sip.StatusOK, "OK", body)
	if to := resp.To(); to != nil {
		if to.Params == nil {
			to.Params = sip.NewParams()
		}
		to.Params.Add("tag", tag)
	}
	resp.AppendHeader(&sip.ContactHeader{
		Address: sip.Uri{Scheme: "sip", User: c.identity.Extension, Host: c.localIP.String()},
	})
	resp.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))

	if to := inv.To(); to != nil {
		s.localURI = to.Address
	}
	s.localTag = tag
	if from := inv.From(); from != nil {
		s.remoteURI = from.Address
		s.remoteTarget = from.Address
		s.remoteTag, _ = from.Params.Get("tag")
	}
	if cont := inv.Contact(); cont != nil {
		s.remoteTarget = cont.Address
		if s.remoteTarget.Port == 0 {
			s.remoteTarget.Port = 5060
		}
	}
	if cseq := inv.CSeq(); cseq != nil {
		s.cseq = cseq.SeqNo
	}
	s.answered = true
	s.mu.Unlock()

	if err := tx.Respond(resp); err != nil {
		c.log.Warnw("could not answer call", err, "sessionID", s.id)
		c.failSession(s, outcome.CauseTransportError, 0, "")
		return
	}
	c.emit(engine.Accepted{ID: s.id, Raw: resp.String()})
}

// SetHold renegotiates the media direction with a re-INVITE.
func (c *Client) SetHold(ctx context.Context, id engine.SessionID, hold bool) error {
	s := c.getSession(id)
	if s == nil || !s.isAnswered() {
		return serrors.ErrNoActiveCall
	}
	go c.reinvite(s, hold)
	return nil
}

func (c *Client) reinvite(s *session, hold bool) {
	direction := "sendrecv"
	if hold {
		direction = "sendonly"
	}
	body, err := newSessionDescription(c.localIP, rtpAdvertisePort, direction)
	if err != nil {
		c.log.Warnw("could not build hold offer", err, "sessionID", s.id)
		return
	}
	s.mu.Lock()
	req := s.newInDialogRequestLocked(sip.INVITE, body, c.target)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), byeTimeout)
	defer cancel()
	resp, err := c.authTransaction(ctx, req, c.identity.Extension, c.identity.Password)
	if err != nil {
		c.log.Warnw("hold renegotiation failed", err, "sessionID", s.id, "hold", hold)
		return
	}
	if resp.StatusCode != sip.StatusOK {
		c.log.Warnw("hold renegotiation rejected", nil,
			"sessionID", s.id, "code", resp.StatusCode)
		return
	}
	c.mu.Lock()
	cli := c.sipCli
	c.mu.Unlock()
	if cli != nil {
		s.mu.Lock()
		ack := s.newInDialogRequestLocked(sip.ACK, nil, c.target)
		s.mu.Unlock()
		_ = cli.WriteRequest(ack)
	}
	c.log.Infow("hold state updated", "sessionID", s.id, "hold", hold)
}

// sendBye ends an established dialog.
func (c *Client) sendBye(s *session) {
	s.mu.Lock()
	req := s.newInDialogRequestLocked(sip.BYE, nil, c.target)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), byeTimeout)
	defer cancel()
	resp, err := c.authTransaction(ctx, req, c.identity.Extension, c.identity.Password)
	if err != nil {
		c.log.Debugw("bye failed", "sessionID", s.id, "error", err)
		return
	}
	c.log.Debugw("bye completed", "sessionID", s.id, "code", resp.StatusCode)
}

func (c *Client) failSession(s *session, cause string, code int, raw string) {
	c.emit(engine.Failed{ID: s.id, Cause: cause, Code: code, Raw: raw})
	c.dropSession(s.id)
}

func (c *Client) endSession(s *session, cause string, code int, localOrigin bool, raw string) {
	c.emit(engine.Ended{ID: s.id, Cause: cause, Code: code, LocalOrigin: localOrigin, Raw: raw})
	c.dropSession(s.id)
}

func causeForStatus(code int) string {
	switch code {
	case 486, 600:
		return outcome.CauseBusy
	case 408:
		return outcome.CauseNoAnswer
	case 403, 603:
		return outcome.CauseRejected
	case 503:
		return outcome.CauseTransportError
	}
	return ""
}

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
	"github.com/emiago/sipgo/sip"

	"github.com/voicedesk/softphone/pkg/engine"
	"github.com/voicedesk/softphone/pkg/outcome"
)

func (c *Client) onInvite(req *sip.Request, tx sip.ServerTransaction) {
	if c.closing.IsBroken() {
		_ = tx.Respond(sip.NewResponseFromRequest(req, sip.StatusTemporarilyUnavailable, "Unavailable", nil))
		return
	}
	cidHdr := req.CallID()
	if cidHdr == nil {
		_ = tx.Respond(sip.NewResponseFromRequest(req, sip.StatusBadRequest, "Missing Call-ID", nil))
		return
	}
	if existing := c.sessionByCallID(cidHdr.Value()); existing != nil {
		// retransmission of an INVITE we are already ringing for
		_ = tx.Respond(sip.NewResponseFromRequest(req, sip.StatusRinging, "Ringing", nil))
		return
	}

	s := &session{id: c.newSessionID(), dir: engine.Incoming}
	s.cid = cidHdr.Value()
	s.invite = req
	s.inTx = tx
	c.addSession(s)

	_ = tx.Respond(sip.NewResponseFromRequest(req, sip.StatusRinging, "Ringing", nil))

	remote := ""
	if from := req.From(); from != nil {
		remote = from.DisplayName
		if remote == "" {
			remote = from.Address.User
		}
	}
	c.log.Infow("incoming invite", "sessionID", s.id, "remote", remote)
	c.emit(engine.NewSession{ID: s.id, Dir: engine.Incoming, Remote: remote})
}

func (c *Client) onBye(req *sip.Request, tx sip.ServerTransaction) {
	_ = tx.Respond(sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil))
	cidHdr := req.CallID()
	if cidHdr == nil {
		return
	}
	s := c.sessionByCallID(cidHdr.Value())
	if s == nil {
		return
	}
	c.log.Infow("remote hangup", "sessionID", s.id)
	c.endSession(s, outcome.CauseBye, 200, false, req.String())
}

func (c *Client) onCancel(req *sip.Request, tx sip.ServerTransaction) {
	_ = tx.Respond(sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil))
	cidHdr := req.CallID()
	if cidHdr == nil {
		return
	}
	s := c.sessionByCallID(cidHdr.Value())
	if s == nil || s.isAnswered() {
		return
	}
	s.mu.Lock()
	inv, inTx := s.invite, s.inTx
	s.mu.Unlock()
	if inv != nil && inTx != nil {
		_ = inTx.Respond(sip.NewResponseFromRequest(inv, 487, "Request Terminated", nil))
	}
	c.log.Infow("remote canceled", "sessionID", s.id)
	c.endSession(s, outcome.CauseCanceled, 487, false, req.String())
}

// onKeepalive answers server liveness probes, NOTIFY and OPTIONS.
func (c *Client) onKeepalive(req *sip.Request, tx sip.ServerTransaction) {
	_ = tx.Respond(sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil))
}

func (c *Client) onAck(req *sip.Request, tx sip.ServerTransaction) {
	cidHdr := req.CallID()
	if cidHdr == nil {
		return
	}
	s := c.sessionByCallID(cidHdr.Value())
	if s == nil || !s.isAnswered() {
		return
	}
	c.emit(engine.Confirmed{ID: s.id})
}

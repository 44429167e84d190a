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
	"sync"

	"github.com/emiago/sipgo/sip"

	"github.com/voicedesk/softphone/pkg/engine"
	"github.com/voicedesk/softphone/pkg/outcome"
)

// session tracks one SIP dialog, inbound or outbound.
type session struct {
	id  engine.SessionID
	dir engine.Direction

	cancelSetup context.CancelFunc // interrupts an outbound INVITE still ringing

	mu       sync.Mutex
	cid      string
	invite   *sip.Request
	inviteOK *sip.Response
	inTx     sip.ServerTransaction
	answered bool
	done     bool

	// dialog state, valid once answered
	localURI     sip.Uri
	remoteURI    sip.Uri
	remoteTarget sip.Uri
	localTag     string
	remoteTag    string
	cseq         uint32
}

func (s *session) callID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cid
}

func (s *session) isAnswered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answered
}

// newInDialogRequest builds an in-dialog request (BYE, re-INVITE, ACK)
// from the stored dialog state. An ACK reuses the INVITE's sequence number,
// RFC 3261 section 13.2.2.4. Caller holds s.mu.
func (s *session) newInDialogRequestLocked(method sip.RequestMethod, body []byte, dest string) *sip.Request {
	if method != sip.ACK {
		s.cseq++
	}
	req := sip.NewRequest(method, s.remoteTarget)
	req.SetDestination(dest)

	fromParams := sip.NewParams()
	fromParams.Add("tag", s.localTag)
	req.AppendHeader(&sip.FromHeader{Address: s.localURI, Params: fromParams})

	toParams := sip.NewParams()
	if s.remoteTag != "" {
		toParams.Add("tag", s.remoteTag)
	}
	req.AppendHeader(&sip.ToHeader{Address: s.remoteURI, Params: toParams})

	cid := sip.CallIDHeader(s.cid)
	req.AppendHeader(&cid)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: s.cseq, MethodName: method})
	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)

	if body != nil {
		req.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
		req.SetBody(body)
	}
	return req
}

// hangup tears the session down from the local side. The terminal event for
// a ringing outbound session is emitted by its INVITE goroutine.
func (s *session) hangup(c *Client, reason string) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	answered := s.answered
	cancel := s.cancelSetup
	inv, tx := s.invite, s.inTx
	s.mu.Unlock()

	switch {
	case answered:
		c.sendBye(s)
		c.emit(engine.Ended{
			ID: s.id, Cause: outcome.CauseTerminated, LocalOrigin: true,
		})
	case s.dir == engine.Outgoing:
		if cancel != nil {
			cancel()
		}
		return
	default:
		if tx != nil && inv != nil {
			_ = tx.Respond(sip.NewResponseFromRequest(inv, 603, "Decline", nil))
		}
		c.emit(engine.Ended{
			ID: s.id, Cause: outcome.CauseTerminated, LocalOrigin: true,
		})
	}
	c.dropSession(s.id)
	c.log.Infow("session closed", "sessionID", s.id, "reason", reason)
}

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
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/require"

	"github.com/voicedesk/softphone/pkg/engine"
)

func newTestDialog() *session {
	return &session{
		id:           engine.SessionID("sip-1"),
		dir:          engine.Outgoing,
		cid:          "f81d4fae@10.0.0.2",
		localURI:     sip.Uri{Scheme: "sip", User: "2001", Host: "pbx.example.com"},
		remoteURI:    sip.Uri{Scheme: "sip", User: "100", Host: "pbx.example.com"},
		remoteTarget: sip.Uri{Scheme: "sip", User: "100", Host: "10.0.0.9", Port: 5060},
		localTag:     "local1",
		remoteTag:    "remote2",
		cseq:         7,
	}
}

func TestInDialogRequest(t *testing.T) {
	s := newTestDialog()

	bye := s.newInDialogRequestLocked(sip.BYE, nil, "pbx.example.com:5060")
	require.Equal(t, sip.BYE, bye.Method)
	require.Equal(t, uint32(8), bye.CSeq().SeqNo)
	require.Equal(t, sip.BYE, bye.CSeq().MethodName)
	require.Equal(t, "f81d4fae@10.0.0.2", bye.CallID().Value())

	tag, ok := bye.From().Params.Get("tag")
	require.True(t, ok)
	require.Equal(t, "local1", tag)
	tag, ok = bye.To().Params.Get("tag")
	require.True(t, ok)
	require.Equal(t, "remote2", tag)
}

func TestInDialogAckKeepsSequence(t *testing.T) {
	s := newTestDialog()

	ack := s.newInDialogRequestLocked(sip.ACK, nil, "pbx.example.com:5060")
	require.Equal(t, uint32(7), ack.CSeq().SeqNo, "ACK reuses the INVITE sequence number")
	require.Equal(t, sip.ACK, ack.CSeq().MethodName)
	require.Equal(t, uint32(7), s.cseq)

	// a re-INVITE advances the sequence and its ACK follows it
	inv := s.newInDialogRequestLocked(sip.INVITE, []byte("v=0"), "pbx.example.com:5060")
	require.Equal(t, uint32(8), inv.CSeq().SeqNo)
	ack = s.newInDialogRequestLocked(sip.ACK, nil, "pbx.example.com:5060")
	require.Equal(t, uint32(8), ack.CSeq().SeqNo)
}

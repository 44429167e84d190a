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
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionDescription(t *testing.T) {
	body, err := newSessionDescription(netip.MustParseAddr("192.168.1.10"), 4000, "sendrecv")
	require.NoError(t, err)
	s := string(body)

	require.Contains(t, s, "o=voicedesk ")
	require.Contains(t, s, "c=IN IP4 192.168.1.10")
	require.Contains(t, s, "m=audio 4000 RTP/AVP 0 8 101")
	require.Contains(t, s, "a=rtpmap:0 PCMU/8000")
	require.Contains(t, s, "a=rtpmap:101 telephone-event/8000")
	require.Contains(t, s, "a=fmtp:101 0-16")
	require.Contains(t, s, "a=sendrecv")
	require.True(t, hasMediaBody(body))
}

func TestSessionDescriptionHold(t *testing.T) {
	body, err := newSessionDescription(netip.MustParseAddr("10.0.0.5"), 4000, "sendonly")
	require.NoError(t, err)
	require.Contains(t, string(body), "a=sendonly")
	require.NotContains(t, string(body), "a=sendrecv")
}

func TestHasMediaBody(t *testing.T) {
	require.False(t, hasMediaBody(nil))
	require.False(t, hasMediaBody([]byte("not sdp")))

	// a zero media port means audio was declined
	declined := strings.Join([]string{
		"v=0",
		"o=- 1 1 IN IP4 10.0.0.1",
		"s=-",
		"c=IN IP4 10.0.0.1",
		"t=0 0",
		"m=audio 0 RTP/AVP 0",
		"",
	}, "\r\n")
	require.False(t, hasMediaBody([]byte(declined)))
}

func TestCauseForStatus(t *testing.T) {
	for _, tc := range []struct {
		code  int
		cause string
	}{
		{486, "BUSY"},
		{600, "BUSY"},
		{408, "NO_ANSWER"},
		{403, "REJECTED"},
		{603, "REJECTED"},
		{503, "TRANSPORT_ERROR"},
		{404, ""},
	} {
		require.Equal(t, tc.cause, causeForStatus(tc.code), "code %d", tc.code)
	}
}

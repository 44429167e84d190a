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
	"fmt"
	"math/rand/v2"
	"net/netip"
	"strconv"

	"github.com/pion/sdp/v3"
)

const (
	sdpUserName  = "voicedesk"
	dtmfEvtType  = 101
	defaultPtime = "20"
)

var offerCodecs = []struct {
	typ  byte
	name string
}{
	{0, "PCMU/8000"},
	{8, "PCMA/8000"},
	{dtmfEvtType, "telephone-event/8000"},
}

// newMediaDescription builds the audio media section. direction is
// "sendrecv" for a regular call or "sendonly" while holding the peer.
func newMediaDescription(rtpPort int, direction string) *sdp.MediaDescription {
	attrs := make([]sdp.Attribute, 0, len(offerCodecs)+3)
	formats := make([]string, 0, len(offerCodecs))
	for _, c := range offerCodecs {
		styp := strconv.Itoa(int(c.typ))
		formats = append(formats, styp)
		attrs = append(attrs, sdp.Attribute{Key: "rtpmap", Value: styp + " " + c.name})
	}
	attrs = append(attrs,
		sdp.Attribute{Key: "fmtp", Value: fmt.Sprintf("%d 0-16", dtmfEvtType)},
		sdp.Attribute{Key: "ptime", Value: defaultPtime},
		sdp.Attribute{Key: direction},
	)
	return &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   "audio",
			Port:    sdp.RangedPort{Value: rtpPort},
			Protos:  []string{"RTP", "AVP"},
			Formats: formats,
		},
		Attributes: attrs,
	}
}

// newSessionDescription builds an SDP offer or answer for the given
// local address.
func newSessionDescription(localIP netip.Addr, rtpPort int, direction string) ([]byte, error) {
	sessID := rand.Uint64()
	desc := sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       sdpUserName,
			SessionID:      sessID,
			SessionVersion: sessID,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: localIP.String(),
		},
		SessionName: "VoiceDesk",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: localIP.String()},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			newMediaDescription(rtpPort, direction),
		},
	}
	return desc.Marshal()
}

// hasMediaBody reports whether a message body carries a usable audio
// description, which is what makes early media playable.
func hasMediaBody(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(body); err != nil {
		return false
	}
	for _, m := range desc.MediaDescriptions {
		if m.MediaName.Media == "audio" && m.MediaName.Port.Value > 0 {
			return true
		}
	}
	return false
}

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

package outcome

import (
	"regexp"
	"strconv"
)

// Textual termination causes emitted by signaling engines.
const (
	CauseBye            = "BYE"
	CauseCanceled       = "CANCELED"
	CauseTerminated     = "Terminated"
	CauseNoAnswer       = "NO_ANSWER"
	CauseRejected       = "REJECTED"
	CauseBusy           = "BUSY"
	CauseTransportError = "TRANSPORT_ERROR"
)

var causeCodes = map[string]int{
	CauseBye:            200,
	CauseCanceled:       487,
	"Canceled":          487,
	CauseNoAnswer:       408,
	CauseRejected:       603,
	CauseBusy:           486,
	CauseTransportError: 503,
	"Connection Error":  503,
	"Dialog/Transaction does not exist": 481,
	"User Denied Media Access":          403,
	"WebRTC not supported":              488,
	"Not Found":                         404,
	"Timer J expired":                   408,
	"Request Timeout":                   408,
}

// CodeFromCause maps a textual termination cause to a SIP code. A locally
// terminated call maps to 200 so the user sees a normal ending instead of an
// error; causes with no mapping fall back to a generic server error.
func CodeFromCause(cause string, localOrigin bool) int {
	if cause == CauseTerminated && localOrigin {
		return 200
	}
	if code, ok := causeCodes[cause]; ok {
		return code
	}
	return 500
}

var statusLineRe = regexp.MustCompile(`SIP/2\.0 (\d{3})\b`)

// ExtractCode pulls the status code out of a raw SIP message, e.g.
// "SIP/2.0 487 Request Terminated". Returns false if the text carries no
// status line.
func ExtractCode(raw string) (int, bool) {
	m := statusLineRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return code, true
}

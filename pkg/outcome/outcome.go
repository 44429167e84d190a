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

// Package outcome maps SIP result codes to user-facing termination reasons.
package outcome

import "fmt"

type Category string

const (
	Provisional = Category("provisional")
	Success     = Category("success")
	Redirect    = Category("redirect")
	ClientError = Category("client-error")
	ServerError = Category("server-error")
	GlobalError = Category("global-error")
	// Internal marks codes outside the 100-699 protocol range. These are
	// client-side anomalies, never real protocol outcomes.
	Internal = Category("internal")
)

// Outcome is the classification of a single SIP result code.
type Outcome struct {
	Code     int
	Category Category
	Title    string
	Reason   string
}

func (o Outcome) Successful() bool {
	return o.Category == Success
}

type entry struct {
	title  string
	reason string // short user-facing text; empty means derive from title
}

// Codes per RFC 3261. The reason column is the short text shown to the user
// when a call ends with that code.
var codes = map[int]entry{
	100: {"Trying", "trying"},
	180: {"Ringing", "ringing"},
	181: {"Call is Being Forwarded", "forwarding"},
	182: {"Queued", "queued"},
	183: {"Session Progress", "in progress"},

	200: {"OK", "completed"},
	202: {"Accepted", "accepted"},

	300: {"Multiple Choices", ""},
	301: {"Moved Permanently", ""},
	302: {"Moved Temporarily", ""},
	305: {"Use Proxy", ""},
	380: {"Alternative Service", ""},

	400: {"Bad Request", "bad request"},
	401: {"Unauthorized", "authentication required"},
	402: {"Payment Required", ""},
	403: {"Forbidden", "rejected"},
	404: {"Not Found", "number not found"},
	405: {"Method Not Allowed", ""},
	406: {"Not Acceptable", ""},
	407: {"Proxy Authentication Required", "proxy authentication required"},
	408: {"Request Timeout", "no answer"},
	409: {"Conflict", ""},
	410: {"Gone", ""},
	411: {"Length Required", ""},
	413: {"Request Entity Too Large", ""},
	414: {"Request-URI Too Long", ""},
	415: {"Unsupported Media Type", ""},
	416: {"Unsupported URI Scheme", ""},
	420: {"Bad Extension", ""},
	421: {"Extension Required", ""},
	422: {"Session Interval Too Small", ""},
	423: {"Interval Too Brief", ""},
	428: {"Use Identity Header", ""},
	429: {"Provide Referrer Identity", ""},
	433: {"Anonymity Disallowed", ""},
	436: {"Bad Identity-Info", ""},
	437: {"Unsupported Certificate", ""},
	438: {"Invalid Identity Header", ""},
	480: {"Temporarily Unavailable", "temporarily unavailable"},
	481: {"Call/Transaction Does Not Exist", "call does not exist"},
	482: {"Loop Detected", "loop detected"},
	483: {"Too Many Hops", ""},
	484: {"Address Incomplete", "address incomplete"},
	485: {"Ambiguous", ""},
	486: {"Busy Here", "busy"},
	487: {"Request Terminated", "call canceled"},
	488: {"Not Acceptable Here", "media not acceptable"},
	489: {"Bad Event", ""},
	491: {"Request Pending", ""},
	493: {"Undecipherable", ""},
	494: {"Security Agreement Required", ""},

	500: {"Server Internal Error", "server error"},
	501: {"Not Implemented", ""},
	502: {"Bad Gateway", "gateway error"},
	503: {"Service Unavailable", "service unavailable"},
	504: {"Server Time-out", "server timeout"},
	505: {"Version Not Supported", ""},
	513: {"Message Too Large", ""},
	580: {"Precondition Failure", ""},

	600: {"Busy Everywhere", "busy everywhere"},
	603: {"Decline", "call declined"},
	604: {"Does Not Exist Anywhere", "number does not exist"},
	606: {"Not Acceptable", "not acceptable"},
}

// CategoryOf classifies a code by its numeric range.
func CategoryOf(code int) Category {
	switch {
	case code >= 100 && code < 200:
		return Provisional
	case code >= 200 && code < 300:
		return Success
	case code >= 300 && code < 400:
		return Redirect
	case code >= 400 && code < 500:
		return ClientError
	case code >= 500 && code < 600:
		return ServerError
	case code >= 600 && code < 700:
		return GlobalError
	}
	return Internal
}

// Classify resolves a code to its category and a user-facing reason.
// Unknown codes are never an error: they degrade to a generic reason that
// carries the raw code for diagnostics.
func Classify(code int) Outcome {
	o := Outcome{Code: code, Category: CategoryOf(code)}
	if e, ok := codes[code]; ok {
		o.Title = e.title
		o.Reason = e.reason
		if o.Reason == "" {
			o.Reason = fmt.Sprintf("%s (code %d)", e.title, code)
		}
		return o
	}
	switch o.Category {
	case Success, Provisional:
		o.Reason = "completed"
	case Internal:
		o.Reason = fmt.Sprintf("internal error (code %d)", code)
	default:
		o.Reason = fmt.Sprintf("unclassified error (code %d)", code)
	}
	return o
}

func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}

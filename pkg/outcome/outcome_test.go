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
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		code       int
		category   Category
		reason     string
		successful bool
	}{
		{200, Success, "completed", true},
		{408, ClientError, "no answer", false},
		{486, ClientError, "busy", false},
		{487, ClientError, "call canceled", false},
		{503, ServerError, "service unavailable", false},
		{603, GlobalError, "call declined", false},
		{404, ClientError, "number not found", false},
		{481, ClientError, "call does not exist", false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d", tc.code), func(t *testing.T) {
			o := Classify(tc.code)
			require.Equal(t, tc.code, o.Code)
			require.Equal(t, tc.category, o.Category)
			require.Equal(t, tc.reason, o.Reason)
			require.Equal(t, tc.successful, o.Successful())
		})
	}
}

func TestClassifyUnknownInRange(t *testing.T) {
	o := Classify(499)
	require.Equal(t, ClientError, o.Category)
	require.Equal(t, "unclassified error (code 499)", o.Reason)
	require.False(t, o.Successful())
}

func TestClassifyOutOfRange(t *testing.T) {
	for _, code := range []int{0, 42, 700, -1} {
		o := Classify(code)
		require.Equal(t, Internal, o.Category, "code %d", code)
		require.Equal(t, fmt.Sprintf("internal error (code %d)", code), o.Reason)
		require.False(t, o.Successful())
	}
}

func TestClassifyNoEmptyReasons(t *testing.T) {
	for code := range codes {
		require.NotEmpty(t, Classify(code).Reason, "code %d", code)
	}
}

func TestCodeFromCause(t *testing.T) {
	cases := []struct {
		cause       string
		localOrigin bool
		code        int
	}{
		{CauseBye, false, 200},
		{CauseCanceled, false, 487},
		{CauseNoAnswer, false, 408},
		{CauseRejected, false, 603},
		{CauseBusy, false, 486},
		{CauseTransportError, false, 503},
		// a locally terminated call is a completed call
		{CauseTerminated, true, 200},
		{"SOMETHING_ELSE", false, 500},
		{"", false, 500},
	}
	for _, tc := range cases {
		t.Run(tc.cause, func(t *testing.T) {
			require.Equal(t, tc.code, CodeFromCause(tc.cause, tc.localOrigin))
		})
	}
}

func TestExtractCode(t *testing.T) {
	raw := "SIP/2.0 486 Busy Here\r\nVia: SIP/2.0/UDP host\r\n\r\n"
	code, ok := ExtractCode(raw)
	require.True(t, ok)
	require.Equal(t, 486, code)

	_, ok = ExtractCode("INVITE sip:100@pbx SIP/2.0\r\n")
	require.False(t, ok)

	_, ok = ExtractCode("")
	require.False(t, ok)
}

func TestIsSuccess(t *testing.T) {
	require.True(t, IsSuccess(200))
	require.True(t, IsSuccess(202))
	require.False(t, IsSuccess(199))
	require.False(t, IsSuccess(300))
}

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import (
	"errors"
	"testing"
)

func TestErrorIsMatchesSentinelThroughCause(t *testing.T) {
	wrapped := withCause(ErrShmSizeMismatch, errors.New("chunk_size: 64 != 128"))
	if !errors.Is(wrapped, ErrShmSizeMismatch) {
		t.Fatalf("expected wrapped error to satisfy errors.Is against its sentinel")
	}
	if errors.Is(wrapped, ErrQueueFull) {
		t.Fatalf("wrapped ErrShmSizeMismatch should not match an unrelated sentinel")
	}
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("EEXIST")
	wrapped := osError("shm_open create", cause)
	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected errors.Is to reach the wrapped OS cause")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindCapacity: "capacity",
		KindState:    "state",
		KindSegment:  "segment",
		KindTimeout:  "timeout",
		KindArgument: "argument",
		KindOS:       "os",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

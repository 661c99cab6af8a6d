// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import (
	"testing"
	"time"
)

func TestWaitSetSetClearPeek(t *testing.T) {
	var w WaitSet
	if w.Peek(flagMessageSent) {
		t.Fatalf("flag should start clear")
	}
	w.Set(flagMessageSent)
	if !w.Peek(flagMessageSent) {
		t.Fatalf("flag should be set")
	}
	w.Clear(flagMessageSent)
	if w.Peek(flagMessageSent) {
		t.Fatalf("flag should be clear after Clear")
	}
}

func TestWaitSetWaitAnyTimeout(t *testing.T) {
	var w WaitSet
	start := time.Now()
	if w.WaitAny(flagRoomAvailable, 20*time.Millisecond) {
		t.Fatalf("expected WaitAny to time out on an unset flag")
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatalf("WaitAny returned suspiciously early")
	}
}

func TestWaitSetWaitAnyObservesConcurrentSet(t *testing.T) {
	var w WaitSet
	done := make(chan bool, 1)
	go func() {
		done <- w.WaitAny(flagFreeChunkAvailable, time.Second)
	}()
	time.Sleep(5 * time.Millisecond)
	w.Set(flagFreeChunkAvailable)
	if !<-done {
		t.Fatalf("expected WaitAny to observe the flag before its timeout")
	}
}

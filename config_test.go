// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import "testing"

func TestConfigValidate(t *testing.T) {
	valid := Config{ChunkSize: 64, MaxChunks: 8, MaxSubscribers: 4, QueueCapacity: 16}
	if err := valid.validate(); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}

	cases := []Config{
		{ChunkSize: 0, MaxChunks: 8, MaxSubscribers: 4, QueueCapacity: 16},
		{ChunkSize: 64, MaxChunks: 0, MaxSubscribers: 4, QueueCapacity: 16},
		{ChunkSize: 64, MaxChunks: 8, MaxSubscribers: 0, QueueCapacity: 16},
		{ChunkSize: 64, MaxChunks: 8, MaxSubscribers: 4, QueueCapacity: 0},
		{ChunkSize: 64, MaxChunks: 8, MaxSubscribers: 4, QueueCapacity: 15}, // not a power of two
	}
	for i, c := range cases {
		if err := c.validate(); err == nil {
			t.Fatalf("case %d: expected validation error for %+v", i, c)
		}
	}
}

func TestConfigNormalizedDefaults(t *testing.T) {
	cfg := Config{ChunkSize: 64, MaxChunks: 8, MaxSubscribers: 4, QueueCapacity: 16}
	norm := cfg.normalized()
	if norm.WaitTimeout != defaultWaitTimeout {
		t.Fatalf("WaitTimeout default: got %v, want %v", norm.WaitTimeout, defaultWaitTimeout)
	}
	if norm.BlockTimeout != defaultBlockTimeout {
		t.Fatalf("BlockTimeout default: got %v, want %v", norm.BlockTimeout, defaultBlockTimeout)
	}
	if norm.SubscriberQueueCapacity != norm.QueueCapacity {
		t.Fatalf("SubscriberQueueCapacity should default to QueueCapacity")
	}
}

func TestGeometryEqualIgnoresPolicyFields(t *testing.T) {
	a := Config{ChunkSize: 64, MaxChunks: 8, MaxSubscribers: 4, QueueCapacity: 16, LoanPolicy: LoanPolicyWait}
	b := Config{ChunkSize: 64, MaxChunks: 8, MaxSubscribers: 4, QueueCapacity: 16, LoanPolicy: LoanPolicyBlock, STmin: 5}
	if !geometryEqual(a, b) {
		t.Fatalf("expected geometryEqual to ignore per-endpoint policy fields")
	}
	c := b
	c.ChunkSize *= 2
	if geometryEqual(a, c) {
		t.Fatalf("expected geometryEqual to catch a ChunkSize mismatch")
	}
}

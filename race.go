// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package shmipc

// RaceEnabled is true when the race detector is active.
// Used by tests to skip multi-process-style concurrent tests that
// trigger false positives from the race detector's inability to see
// cross-process (here: cross-goroutine, standing in for cross-process)
// memory ordering enforced purely through shared-memory atomics.
const RaceEnabled = true

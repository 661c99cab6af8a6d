// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package shmipc implements a zero-copy, shared-memory publish/subscribe
// transport for multi-process real-time systems.
//
// Independent processes exchange fixed-size payloads through a single
// POSIX-named shared-memory segment per topic. Ownership of a payload
// buffer (a chunk) is transferred between one publisher and its
// subscribers without kernel-mediated copies: a producer loans a chunk
// from a lock-free pool, writes into it, and multicasts the chunk's
// index to the subscriber set; each subscriber reads the chunk directly
// out of the shared segment and drops its Sample when done.
//
// # Quick Start
//
//	pub, err := shmipc.NewPublisher("/robot.telemetry", shmipc.Config{
//	    ChunkSize:      64,
//	    MaxChunks:      16,
//	    MaxSubscribers: 8,
//	    QueueCapacity:  64,
//	    IPCType:        shmipc.SPMC,
//	})
//	if err != nil {
//	    // handle err
//	}
//	defer pub.Close()
//
//	err = pub.Send(func(b []byte) (int, error) {
//	    binary.LittleEndian.PutUint32(b, 42)
//	    return 4, nil
//	})
//
// On the consumer side:
//
//	sub, err := shmipc.NewSubscriber("/robot.telemetry", shmipc.Config{
//	    ChunkSize:      64,
//	    MaxChunks:      16,
//	    MaxSubscribers: 8,
//	    QueueCapacity:  64,
//	    IPCType:        shmipc.SPMC,
//	})
//	defer sub.Close()
//
//	sample, err := sub.Receive(shmipc.EmptyPolicySkip)
//	if err == nil {
//	    defer sample.Release()
//	    v := binary.LittleEndian.Uint32(sample.Bytes())
//	}
//
// # Lock-free core
//
// The chunk-pool allocator, the per-subscriber channel queues, and the
// subscriber registry are lock-free: all coordination between producer
// and consumer threads/processes is done with atomics placed directly in
// the mapped segment (code.hybscloud.com/atomix), bounded spin-wait
// retries on CAS contention (code.hybscloud.com/spin), and adaptive
// backoff for the Wait/Block policies (code.hybscloud.com/iox). See
// DESIGN.md for the correspondence between each component here and the
// lock-free queue algorithms it is grounded on.
//
// # Non-goals
//
// shmipc is single-host only: no network transport, no discovery beyond
// a shared filesystem-scoped name, no persistence of messages across
// process restarts, no schema negotiation (payload layout is agreed
// out-of-band), and no fair scheduling between channels beyond the
// configured queue-full/empty policies.
package shmipc

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import (
	"fmt"
	"sync"
)

// IPCFactory is the process-wide entry point for opening publishers and
// subscribers against a fixed set of named topics, each with its own
// geometry. It exists so a process with several topics doesn't have to
// thread Config values through its call sites by hand; it does not
// itself hold any shared-memory state beyond the handles it hands out.
type IPCFactory struct {
	mu     sync.Mutex
	topics map[string]Config
	hook   EventHook

	publishers  map[string]*Publisher
	subscribers map[string][]*Subscriber
}

// NewIPCFactory returns a factory with no registered topics.
func NewIPCFactory(opts ...Option) *IPCFactory {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &IPCFactory{
		topics:      make(map[string]Config),
		hook:        o.hook,
		publishers:  make(map[string]*Publisher),
		subscribers: make(map[string][]*Subscriber),
	}
}

// RegisterTopic associates name with cfg. A later Publisher/Subscriber
// call for name uses this Config; calling RegisterTopic twice for the
// same name with a different geometry returns ErrShmSizeMismatch
// without touching any already-open handle.
func (f *IPCFactory) RegisterTopic(name string, cfg Config) error {
	cfg = cfg.normalized()
	if err := cfg.validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.topics[name]; ok && !geometryEqual(existing, cfg) {
		return ErrShmSizeMismatch
	}
	f.topics[name] = cfg
	return nil
}

// Publisher returns the singleton Publisher for a registered topic,
// creating it on first call.
func (f *IPCFactory) Publisher(name string) (*Publisher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.publishers[name]; ok {
		return p, nil
	}
	cfg, ok := f.topics[name]
	if !ok {
		return nil, fmt.Errorf("shmipc: topic %q not registered", name)
	}
	p, err := NewPublisher(name, cfg, WithEventHook(f.hook))
	if err != nil {
		return nil, err
	}
	f.publishers[name] = p
	return p, nil
}

// Subscriber opens a new Subscriber handle for a registered topic. Each
// call returns a distinct handle (a distinct registry slot); the
// factory tracks all of them so Close can tear every one down.
func (f *IPCFactory) Subscriber(name string) (*Subscriber, error) {
	f.mu.Lock()
	cfg, ok := f.topics[name]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("shmipc: topic %q not registered", name)
	}
	sub, err := NewSubscriber(name, cfg, WithEventHook(f.hook))
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.subscribers[name] = append(f.subscribers[name], sub)
	f.mu.Unlock()
	return sub, nil
}

// Close closes every Publisher/Subscriber handle this factory has
// opened. It is safe to call once, at process shutdown.
func (f *IPCFactory) Close() error {
	f.mu.Lock()
	pubs := f.publishers
	subs := f.subscribers
	f.publishers = make(map[string]*Publisher)
	f.subscribers = make(map[string][]*Subscriber)
	f.mu.Unlock()

	var firstErr error
	for _, p := range pubs {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, list := range subs {
		for _, s := range list {
			if err := s.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

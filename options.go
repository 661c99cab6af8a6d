// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

// Option configures a Publisher or Subscriber at construction time.
// Geometry and per-message policy live in Config; Option carries the
// handle-local collaborators that have no place in a value shared
// byte-for-byte across processes, such as an EventHook.
type Option func(*options)

type options struct {
	hook EventHook
}

func defaultOptions() options {
	return options{hook: noopHook{}}
}

// WithEventHook attaches hook to observe this handle's lifecycle events.
// The default is a no-op hook.
func WithEventHook(hook EventHook) Option {
	return func(o *options) {
		if hook != nil {
			o.hook = hook
		}
	}
}

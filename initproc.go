// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import (
	_ "go.uber.org/automaxprocs"
)

// automaxprocs's init sets GOMAXPROCS from the container CPU quota
// before any spin-wait loop in this package runs: a process throttled to
// a fraction of a core that still believes it owns every core on the
// host will spin far longer per retry than the bounded-spin design
// assumes. Imported for its side effect only, same as the ws_poc worker
// pool's entrypoint.

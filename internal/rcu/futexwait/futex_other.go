//go:build !linux

package futexwait

import (
	"sync/atomic"

	"github.com/kolkov/rcuhpref/internal/rcu/rfence"
)

// Non-Linux targets have no futex(2). Wait degrades to a bounded spin
// with scheduler yields; Wake's Store alone is sufficient to unblock it
// since Wait re-checks the value every iteration. This only changes
// throughput (more CPU burned while waiting), never correctness — the
// caller-side retry loop is unconditionally safe either way.
func futexWait(v *atomic.Int32, expect int32) {
	for atomic.LoadInt32(v) == expect {
		rfence.Pause()
	}
}

func futexWake(v *atomic.Int32, n int) {
	// Store in Word.Wake already published the new value; nothing
	// further to do without a real futex to poke.
	_ = v
	_ = n
}

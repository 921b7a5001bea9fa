// Package gpcounter implements the one-bit grace-period phase shared by
// spec §3's "grace-period counter holding a phase bit" and used by the
// per-CPU flavor's two-phase synchronize() (§4.5). Encoding a phase as a
// dedicated small type, rather than a bare bool, gives every flavor that
// needs one (today: rcu/percpugp, and hpref's period bit) the same
// Flip-returns-old-value contract the drain loop depends on.
//
// Grounded on the teacher's epoch.Epoch: a tiny, atomically-manipulated
// value type with a single clear invariant, documented at the type
// rather than scattered across call sites.
package gpcounter

import "sync/atomic"

// Phase holds a single bit, 0 or 1, flipped under the domain's
// grace-period mutex by Flip and read lock-free by readers via Load.
type Phase struct {
	v atomic.Uint32
}

// Load returns the current phase (0 or 1).
func (p *Phase) Load() uint32 { return p.v.Load() }

// Flip stores the opposite of the current phase and returns the value
// that was in effect before the flip (i.e. the phase readers observed up
// to this point, which is the one the writer must now drain).
func (p *Phase) Flip() (old uint32) {
	old = p.v.Load()
	p.v.Store(old ^ 1)
	return old
}

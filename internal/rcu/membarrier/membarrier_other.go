//go:build !linux

package membarrier

// membarrier(2) only exists on Linux. Every other target reports the
// capability as absent and Bridge.Fence falls back to a local full fence,
// per spec §7's "capability absent: silently fall back" policy.

func registerMembarrier() bool { return false }

func fenceMembarrier() bool { return false }

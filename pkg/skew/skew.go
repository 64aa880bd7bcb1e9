// Package skew applies configurable clock-skew tolerance windows to the
// temporal checks performed by the validation engine.
package skew

import "time"

const (
	DefaultResponseTolerance       = 60 * time.Second
	DefaultAssertionTolerance      = 3000 * time.Second
	DefaultAuthenticationTolerance = 7200 * time.Second
)

// Window is a symmetric tolerance applied around a reference instant.
type Window struct {
	Tolerance time.Duration
}

// Contains reports whether instant falls within [now-tolerance, now+tolerance].
// Both bounds are inclusive, so a zero tolerance only admits instant == now.
func (w Window) Contains(now, instant time.Time) bool {
	if instant.Before(now.Add(-w.Tolerance)) {
		return false
	}
	return !instant.After(now.Add(w.Tolerance))
}

// Windows carries the three independent tolerances the engine enforces:
// response issuance, assertion issuance, and authentication instant.
type Windows struct {
	Response       Window
	Assertion      Window
	Authentication Window
}

func DefaultWindows() Windows {
	return Windows{
		Response:       Window{Tolerance: DefaultResponseTolerance},
		Assertion:      Window{Tolerance: DefaultAssertionTolerance},
		Authentication: Window{Tolerance: DefaultAuthenticationTolerance},
	}
}

// Elapsed reports whether a NotOnOrAfter boundary has passed. The boundary is
// exclusive: the instant itself already counts as elapsed.
func Elapsed(now, boundary time.Time) bool {
	return !now.Before(boundary)
}

// InFuture reports whether a NotBefore boundary has not been reached yet.
func InFuture(now, boundary time.Time) bool {
	return boundary.After(now)
}

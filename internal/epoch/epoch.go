// Package epoch maps wall-clock time onto the coarse accounting windows used
// for rolling spend limits. The original ledger advanced epochs roughly once
// a day; here the window length is configurable and the epoch number is
// derived directly from Unix time, so two processes with the same length
// always agree on the current epoch.
package epoch

import "time"

// DefaultLength matches the ledger's roughly daily epoch cadence.
const DefaultLength = 24 * time.Hour

// Clock converts instants to epoch numbers.
type Clock struct {
	length time.Duration
}

// NewClock returns a clock with the given window length. Non-positive
// lengths fall back to DefaultLength.
func NewClock(length time.Duration) Clock {
	if length <= 0 {
		length = DefaultLength
	}
	return Clock{length: length}
}

// At returns the epoch number containing t.
func (c Clock) At(t time.Time) uint64 {
	return uint64(t.Unix()) / uint64(c.length/time.Second)
}

// Length returns the window length.
func (c Clock) Length() time.Duration { return c.length }

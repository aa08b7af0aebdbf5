package render

import "github.com/jonboulle/clockwork"

// clock stamps rendered documents. Tests freeze it via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source for the "generated at" stamp. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

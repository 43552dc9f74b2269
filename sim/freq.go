package sim

import (
	"log"
	"math"
)

// Freq is a clock rate in Hz, typically the SCL rate of a bus.
type Freq float64

// Common clock units.
const (
	Hz  Freq = 1
	KHz Freq = 1e3
	MHz Freq = 1e6
)

// Period is the length of one clock.
func (f Freq) Period() VTimeInSec {
	f.mustBeValid()

	return VTimeInSec(1.0 / f)
}

// Clocks returns how long n clocks take.
func (f Freq) Clocks(n int) VTimeInSec {
	f.mustBeValid()

	if n < 0 {
		log.Panicf("negative clock count %d", n)
	}

	return VTimeInSec(float64(n) / float64(f))
}

// Cycle counts the whole clocks elapsed between time 0 and t.
func (f Freq) Cycle(t VTimeInSec) uint64 {
	return uint64(math.Round(float64(t) * float64(f)))
}

func (f Freq) mustBeValid() {
	if f <= 0 || math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		log.Panicf("invalid frequency %v", float64(f))
	}
}

package analysis

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/i2cmux/ringbuf"
	"github.com/sarchlab/i2cmux/sim"
	"github.com/sarchlab/i2cmux/transport"
)

type ringLevel struct {
	ring *ringbuf.Ring

	start     sim.VTimeInSec
	lastTime  sim.VTimeInSec
	lastLevel int
	durations map[int]sim.VTimeInSec
}

// RingAnalyzer records the time-weighted average occupancy of transport
// rings.
type RingAnalyzer struct {
	PerfLogger
	sim.TimeTeller

	usePeriod bool
	period    sim.VTimeInSec

	rings map[*ringbuf.Ring]*ringLevel
	order []*ringLevel
}

// Watch starts tracking the rings of a transport. All the given contexts
// must be ends of the same transport. Each ring is reported under its name
// in the first context.
func (a *RingAnalyzer) Watch(ends ...*transport.Context) {
	if len(ends) == 0 {
		return
	}

	now := a.CurrentTime()
	levels := make([]*ringLevel, 0, 4)

	for _, r := range ends[0].Rings() {
		l := &ringLevel{
			ring:      r,
			start:     periodStartTime(now, a.period),
			lastTime:  now,
			lastLevel: r.Len(),
			durations: make(map[int]sim.VTimeInSec),
		}
		levels = append(levels, l)
		a.order = append(a.order, l)
	}

	for _, t := range ends {
		for i, r := range t.Rings() {
			a.rings[r] = levels[i]
		}

		t.AcceptHook(a)
	}
}

// Func records a ring level change.
func (a *RingAnalyzer) Func(ctx sim.HookCtx) {
	if ctx.Pos != transport.HookPosRingUpdate {
		return
	}

	r, ok := ctx.Item.(*ringbuf.Ring)
	if !ok {
		return
	}

	l, ok := a.rings[r]
	if !ok {
		return
	}

	a.advance(l, a.CurrentTime())
	l.lastLevel = l.ring.Len()
}

// advance accounts the time since the last change to the current level,
// reporting every period that ended on the way.
func (a *RingAnalyzer) advance(l *ringLevel, now sim.VTimeInSec) {
	if a.usePeriod {
		for end := l.start + a.period; end <= now; end = l.start + a.period {
			l.durations[l.lastLevel] += end - l.lastTime
			a.report(l, end)

			l.start = end
			l.lastTime = end
			l.durations = make(map[int]sim.VTimeInSec)
		}
	}

	l.durations[l.lastLevel] += now - l.lastTime
	l.lastTime = now
}

func (a *RingAnalyzer) report(l *ringLevel, end sim.VTimeInSec) {
	sumLevel := 0.0
	sumDuration := 0.0
	for level, duration := range l.durations {
		sumLevel += float64(level) * float64(duration)
		sumDuration += float64(duration)
	}

	if sumDuration == 0 {
		return
	}

	avgLevel := sumLevel / sumDuration
	if avgLevel == 0 {
		return
	}

	a.AddDataEntry(Entry{
		Start:     l.start,
		End:       end,
		Where:     l.ring.Name(),
		What:      "Occupancy",
		EntryType: "Ring",
		Value:     avgLevel,
		Unit:      "Buffer",
	})
}

// Summarize reports the time since the last report.
func (a *RingAnalyzer) Summarize() {
	now := a.CurrentTime()

	for _, l := range a.order {
		a.advance(l, now)
		a.report(l, now)

		l.start = now
		l.durations = make(map[int]sim.VTimeInSec)
	}
}

// RingAnalyzerBuilder can build a RingAnalyzer.
type RingAnalyzerBuilder struct {
	perfLogger PerfLogger
	timeTeller sim.TimeTeller
	usePeriod  bool
	period     sim.VTimeInSec
}

// MakeRingAnalyzerBuilder creates a RingAnalyzerBuilder.
func MakeRingAnalyzerBuilder() RingAnalyzerBuilder {
	return RingAnalyzerBuilder{}
}

// WithPerfLogger sets the PerfLogger to use.
func (b RingAnalyzerBuilder) WithPerfLogger(l PerfLogger) RingAnalyzerBuilder {
	b.perfLogger = l
	return b
}

// WithTimeTeller sets the TimeTeller to use.
func (b RingAnalyzerBuilder) WithTimeTeller(t sim.TimeTeller) RingAnalyzerBuilder {
	b.timeTeller = t
	return b
}

// WithPeriod reports one entry per ring for every period.
func (b RingAnalyzerBuilder) WithPeriod(p sim.VTimeInSec) RingAnalyzerBuilder {
	b.usePeriod = true
	b.period = p

	return b
}

// Build creates a RingAnalyzer. The remaining time is summarized at exit.
func (b RingAnalyzerBuilder) Build() *RingAnalyzer {
	if b.perfLogger == nil {
		panic("perfLogger is not set")
	}

	if b.timeTeller == nil {
		panic("timeTeller is not set")
	}

	if b.usePeriod && b.period <= 0 {
		panic("period must be positive")
	}

	a := &RingAnalyzer{
		PerfLogger: b.perfLogger,
		TimeTeller: b.timeTeller,
		usePeriod:  b.usePeriod,
		period:     b.period,
		rings:      make(map[*ringbuf.Ring]*ringLevel),
	}

	atexit.Register(a.Summarize)

	return a
}

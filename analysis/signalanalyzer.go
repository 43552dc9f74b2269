package analysis

import (
	"sort"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/i2cmux/microkit"
	"github.com/sarchlab/i2cmux/sim"
)

type signalKey struct {
	to   string
	from string
	what string
}

// SignalAnalyzer counts the notifications, interrupts and protected calls
// that each protection domain receives.
type SignalAnalyzer struct {
	PerfLogger
	sim.TimeTeller

	usePeriod bool
	period    sim.VTimeInSec

	lastTime sim.VTimeInSec
	counts   map[signalKey]uint64
}

// Func counts a signal.
func (h *SignalAnalyzer) Func(ctx sim.HookCtx) {
	s, ok := ctx.Item.(microkit.Signal)
	if !ok {
		return
	}

	what := signalKind(ctx.Pos)
	if what == "" {
		return
	}

	now := h.CurrentTime()

	if h.usePeriod && now >= periodStartTime(h.lastTime, h.period)+h.period {
		h.summarize(now)
	}

	h.counts[signalKey{to: s.To, from: s.From, what: what}]++
	h.lastTime = now
}

func signalKind(pos *sim.HookPos) string {
	switch pos {
	case microkit.HookPosNotify:
		return "Notify"
	case microkit.HookPosIRQ:
		return "IRQ"
	case microkit.HookPosPPCall:
		return "PPCall"
	default:
		return ""
	}
}

func (h *SignalAnalyzer) summarize(now sim.VTimeInSec) {
	startTime := sim.VTimeInSec(0)
	endTime := now

	if h.usePeriod {
		startTime = periodStartTime(h.lastTime, h.period)
		endTime = startTime + h.period

		if endTime > now {
			endTime = now
		}
	}

	keys := make([]signalKey, 0, len(h.counts))
	for k := range h.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].to != keys[j].to {
			return keys[i].to < keys[j].to
		}
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].what < keys[j].what
	})

	for _, k := range keys {
		h.AddDataEntry(Entry{
			Start:       startTime,
			End:         endTime,
			Where:       k.to,
			WhereRemote: k.from,
			What:        k.what,
			EntryType:   "Signal",
			Value:       float64(h.counts[k]),
			Unit:        "Signal",
		})
	}

	h.counts = make(map[signalKey]uint64)
}

// Summarize reports the signals counted since the last report.
func (h *SignalAnalyzer) Summarize() {
	h.summarize(h.CurrentTime())
}

// SignalAnalyzerBuilder can build a SignalAnalyzer.
type SignalAnalyzerBuilder struct {
	perfLogger PerfLogger
	timeTeller sim.TimeTeller
	usePeriod  bool
	period     sim.VTimeInSec
}

// MakeSignalAnalyzerBuilder creates a SignalAnalyzerBuilder.
func MakeSignalAnalyzerBuilder() SignalAnalyzerBuilder {
	return SignalAnalyzerBuilder{}
}

// WithPerfLogger sets the logger to be used by the SignalAnalyzer.
func (b SignalAnalyzerBuilder) WithPerfLogger(l PerfLogger) SignalAnalyzerBuilder {
	b.perfLogger = l
	return b
}

// WithTimeTeller sets the TimeTeller to be used by the SignalAnalyzer.
func (b SignalAnalyzerBuilder) WithTimeTeller(
	t sim.TimeTeller,
) SignalAnalyzerBuilder {
	b.timeTeller = t
	return b
}

// WithPeriod sets the period to be used by the SignalAnalyzer.
func (b SignalAnalyzerBuilder) WithPeriod(p sim.VTimeInSec) SignalAnalyzerBuilder {
	b.usePeriod = true
	b.period = p

	return b
}

// Build creates a SignalAnalyzer.
func (b SignalAnalyzerBuilder) Build() *SignalAnalyzer {
	if b.perfLogger == nil {
		panic("SignalAnalyzer requires a PerfLogger")
	}

	if b.timeTeller == nil {
		panic("SignalAnalyzer requires a TimeTeller")
	}

	if b.usePeriod && b.period <= 0 {
		panic("period must be positive")
	}

	h := &SignalAnalyzer{
		PerfLogger: b.perfLogger,
		TimeTeller: b.timeTeller,
		usePeriod:  b.usePeriod,
		period:     b.period,
		counts:     make(map[signalKey]uint64),
	}

	atexit.Register(h.Summarize)

	return h
}

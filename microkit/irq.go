package microkit

// IRQLine is an interrupt line routed to one channel of a PD. A delivered
// interrupt stays masked until the PD acknowledges it; a raise while masked
// is latched and delivered after the acknowledgement.
type IRQLine struct {
	name   string
	domain *domain
	ch     Channel

	masked    bool
	latched   bool
	delivered uint64
}

// Name returns the name of the line.
func (l *IRQLine) Name() string {
	return l.name
}

// Channel returns the channel the line is routed to.
func (l *IRQLine) Channel() Channel {
	return l.ch
}

// Delivered returns the number of interrupts forwarded to the PD.
func (l *IRQLine) Delivered() uint64 {
	return l.delivered
}

// Masked returns true if an interrupt waits for acknowledgement.
func (l *IRQLine) Masked() bool {
	return l.masked
}

// Raise asserts the interrupt.
func (l *IRQLine) Raise() {
	if l.masked {
		l.latched = true
		return
	}

	l.masked = true
	l.delivered++
	l.domain.sys.signal(HookPosIRQ, l.name, l.domain.name, l.ch)
	l.domain.raise(l.ch)
}

func (l *IRQLine) ack() {
	l.masked = false

	if l.latched {
		l.latched = false
		l.Raise()
	}
}

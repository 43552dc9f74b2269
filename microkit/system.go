package microkit

import (
	"fmt"
	"log"
	"reflect"
	"sort"

	"github.com/sarchlab/i2cmux/sim"
)

// Hook positions triggered by a System. The item is a Signal.
var (
	HookPosNotify  = &sim.HookPos{Name: "Notify"}
	HookPosDeliver = &sim.HookPos{Name: "Deliver"}
	HookPosIRQ     = &sim.HookPos{Name: "IRQ"}
	HookPosPPCall  = &sim.HookPos{Name: "PPCall"}
)

// Signal describes one kernel operation for hooks.
type Signal struct {
	From    string
	To      string
	Channel Channel
}

// deliverEvent runs the notified entry point of a PD for every pending
// channel.
type deliverEvent struct {
	*sim.EventBase
}

type initEvent struct {
	*sim.EventBase
}

type endpoint struct {
	peer   *domain
	peerCh Channel
}

type domain struct {
	sys  *System
	name string
	pd   PD

	channels  map[Channel]endpoint
	irqs      map[Channel]*IRQLine
	pending   map[Channel]bool
	scheduled bool
	running   bool
}

// System is a Kernel implementation that runs PDs on a sim.Engine.
type System struct {
	sim.HookableBase

	name    string
	engine  sim.Engine
	latency sim.VTimeInSec

	domains []*domain
	byPD    map[PD]*domain
}

// Builder builds Systems.
type Builder struct {
	engine  sim.Engine
	latency sim.VTimeInSec
}

// MakeBuilder returns a Builder with a notification latency of 1us.
func MakeBuilder() Builder {
	return Builder{
		latency: 1e-6,
	}
}

// WithEngine sets the engine that runs the PDs.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithLatency sets the time between a notification and its delivery.
func (b Builder) WithLatency(latency sim.VTimeInSec) Builder {
	b.latency = latency
	return b
}

// Build creates a System.
func (b Builder) Build(name string) *System {
	if b.engine == nil {
		panic("engine is not set")
	}

	sim.NameMustBeValid(name)

	return &System{
		name:    name,
		engine:  b.engine,
		latency: b.latency,
		byPD:    make(map[PD]*domain),
	}
}

// Name returns the name of the system.
func (s *System) Name() string {
	return s.name
}

// Engine returns the engine the system runs on.
func (s *System) Engine() sim.Engine {
	return s.engine
}

// AddPD registers a PD and returns its view of the kernel.
func (s *System) AddPD(pd PD) Kernel {
	if _, found := s.byPD[pd]; found {
		panic(fmt.Sprintf("pd %s already added", pd.Name()))
	}

	d := &domain{
		sys:      s,
		name:     pd.Name(),
		pd:       pd,
		channels: make(map[Channel]endpoint),
		irqs:     make(map[Channel]*IRQLine),
		pending:  make(map[Channel]bool),
	}

	s.domains = append(s.domains, d)
	s.byPD[pd] = d

	return d
}

// PDs returns the registered PDs in registration order.
func (s *System) PDs() []PD {
	pds := make([]PD, 0, len(s.domains))
	for _, d := range s.domains {
		pds = append(pds, d.pd)
	}

	return pds
}

func (s *System) mustFind(pd PD) *domain {
	d, found := s.byPD[pd]
	if !found {
		panic(fmt.Sprintf("pd %s is not part of system %s", pd.Name(), s.name))
	}

	return d
}

func (d *domain) channelMustBeFree(ch Channel) {
	if ch >= MaxChannels {
		panic(fmt.Sprintf("pd %s: channel %d out of range", d.name, ch))
	}

	_, isChannel := d.channels[ch]
	_, isIRQ := d.irqs[ch]

	if isChannel || isIRQ {
		panic(fmt.Sprintf("pd %s: channel %d already in use", d.name, ch))
	}
}

// Connect creates a channel between two PDs. Notifying aCh in a signals bCh
// in b and the other way around.
func (s *System) Connect(a PD, aCh Channel, b PD, bCh Channel) {
	da := s.mustFind(a)
	db := s.mustFind(b)

	da.channelMustBeFree(aCh)
	db.channelMustBeFree(bCh)

	da.channels[aCh] = endpoint{peer: db, peerCh: bCh}
	db.channels[bCh] = endpoint{peer: da, peerCh: aCh}
}

// AddIRQ routes an interrupt line to channel ch of pd.
func (s *System) AddIRQ(pd PD, ch Channel, name string) *IRQLine {
	d := s.mustFind(pd)
	d.channelMustBeFree(ch)

	line := &IRQLine{name: name, domain: d, ch: ch}
	d.irqs[ch] = line

	return line
}

// Start schedules the Init entry point of every PD that has one, in
// registration order.
func (s *System) Start() {
	now := s.engine.CurrentTime()

	for _, d := range s.domains {
		if _, ok := d.pd.(Initializer); ok {
			s.engine.Schedule(initEvent{sim.NewEventBase(now, d)})
		}
	}
}

// Running returns true if pd is executing an entry point.
func (s *System) Running(pd PD) bool {
	return s.mustFind(pd).running
}

func (s *System) signal(pos *sim.HookPos, from, to string, ch Channel) {
	if s.NumHooks() == 0 {
		return
	}

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    pos,
		Item:   Signal{From: from, To: to, Channel: ch},
	})
}

// Name returns the name of the PD.
func (d *domain) Name() string {
	return d.name
}

// Notify implements Kernel.
func (d *domain) Notify(ch Channel) {
	ep, found := d.channels[ch]
	if !found {
		log.Printf("%s: notify on unconnected channel %d", d.name, ch)
		return
	}

	d.sys.signal(HookPosNotify, d.name, ep.peer.name, ep.peerCh)
	ep.peer.raise(ep.peerCh)
}

// PPCall implements Kernel.
func (d *domain) PPCall(ch Channel, msg Message) (Message, error) {
	ep, found := d.channels[ch]
	if !found {
		return Message{}, &CallError{Caller: d.name, Channel: ch, Err: ErrNoChannel}
	}

	callee, ok := ep.peer.pd.(ProtectedPD)
	if !ok {
		return Message{}, &CallError{Caller: d.name, Channel: ch, Err: ErrNotProtected}
	}

	if ep.peer.running {
		return Message{}, &CallError{Caller: d.name, Channel: ch, Err: ErrPDBusy}
	}

	d.sys.signal(HookPosPPCall, d.name, ep.peer.name, ep.peerCh)

	ep.peer.running = true
	rsp := callee.Protected(ep.peerCh, msg)
	ep.peer.running = false

	return rsp, nil
}

// IRQAck implements Kernel.
func (d *domain) IRQAck(ch Channel) {
	line, found := d.irqs[ch]
	if !found {
		log.Printf("%s: ack on channel %d, which is not an irq", d.name, ch)
		return
	}

	line.ack()
}

func (d *domain) raise(ch Channel) {
	d.pending[ch] = true

	if d.scheduled {
		return
	}

	d.scheduled = true
	now := d.sys.engine.CurrentTime()
	d.sys.engine.Schedule(deliverEvent{sim.NewEventBase(now+d.sys.latency, d)})
}

// Handle runs the PD entry points.
func (d *domain) Handle(e sim.Event) error {
	switch e := e.(type) {
	case deliverEvent:
		d.deliver()
	case initEvent:
		d.run(func() { d.pd.(Initializer).Init() })
	default:
		log.Panicf("cannot handle event of %s", reflect.TypeOf(e))
	}

	return nil
}

func (d *domain) deliver() {
	d.scheduled = false

	channels := make([]Channel, 0, len(d.pending))
	for ch := range d.pending {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

	for _, ch := range channels {
		delete(d.pending, ch)

		d.sys.signal(HookPosDeliver, "", d.name, ch)
		d.run(func() { d.pd.Notified(ch) })
	}
}

func (d *domain) run(f func()) {
	if d.running {
		log.Panicf("pd %s re-entered", d.name)
	}

	d.running = true
	defer func() { d.running = false }()

	f()
}

package microkit

import (
	"bytes"
	"errors"
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/i2cmux/sim"
)

type testPD struct {
	name   string
	engine sim.Engine

	notified []Channel
	times    []sim.VTimeInSec
	inits    int

	onNotified  func(ch Channel)
	onProtected func(ch Channel, msg Message) Message
}

func (p *testPD) Name() string {
	return p.name
}

func (p *testPD) Notified(ch Channel) {
	p.notified = append(p.notified, ch)
	p.times = append(p.times, p.engine.CurrentTime())

	if p.onNotified != nil {
		p.onNotified(ch)
	}
}

func (p *testPD) Init() {
	p.inits++
}

type protectedPD struct {
	testPD
}

func (p *protectedPD) Protected(ch Channel, msg Message) Message {
	return p.onProtected(ch, msg)
}

var _ = Describe("System", func() {
	var (
		engine *sim.SerialEngine
		sys    *System
		a      *testPD
		b      *protectedPD
		ka, kb Kernel
	)

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		sys = MakeBuilder().
			WithEngine(engine).
			WithLatency(1e-6).
			Build("Kernel")

		a = &testPD{name: "A", engine: engine}
		b = &protectedPD{testPD{name: "B", engine: engine}}

		ka = sys.AddPD(a)
		kb = sys.AddPD(b)
		sys.Connect(a, 1, b, 5)
	})

	It("should deliver notifications after the latency", func() {
		ka.Notify(1)

		Expect(engine.Run()).To(Succeed())
		Expect(b.notified).To(Equal([]Channel{5}))
		Expect(b.times[0]).To(BeNumerically("~", 1e-6, 1e-12))
	})

	It("should coalesce notifications until delivery", func() {
		ka.Notify(1)
		ka.Notify(1)
		ka.Notify(1)

		Expect(engine.Run()).To(Succeed())
		Expect(b.notified).To(Equal([]Channel{5}))
	})

	It("should deliver in both directions", func() {
		b.onNotified = func(ch Channel) {
			kb.Notify(ch)
		}

		ka.Notify(1)

		Expect(engine.Run()).To(Succeed())
		Expect(a.notified).To(Equal([]Channel{1}))
		Expect(a.times[0]).To(BeNumerically("~", 2e-6, 1e-12))
	})

	It("should deliver pending channels in ascending order", func() {
		c := &testPD{name: "C", engine: engine}
		kc := sys.AddPD(c)
		sys.Connect(c, 0, b, 2)

		ka.Notify(1)
		kc.Notify(0)

		Expect(engine.Run()).To(Succeed())
		Expect(b.notified).To(Equal([]Channel{2, 5}))
	})

	It("should ignore notifications on unconnected channels", func() {
		ka.Notify(9)

		Expect(engine.Run()).To(Succeed())
		Expect(b.notified).To(BeEmpty())
	})

	It("should make protected calls", func() {
		b.onProtected = func(ch Channel, msg Message) Message {
			Expect(ch).To(Equal(Channel(5)))
			Expect(sys.Running(b)).To(BeTrue())
			return NewMessage(0, msg.Get(0)+msg.Get(1))
		}

		rsp, err := ka.PPCall(1, NewMessage(0, 2, 3))

		Expect(err).NotTo(HaveOccurred())
		Expect(rsp.Get(0)).To(Equal(uint64(5)))
		Expect(rsp.Get(7)).To(Equal(uint64(0)))
		Expect(sys.Running(b)).To(BeFalse())
	})

	It("should reject a protected call into a running PD", func() {
		c := &protectedPD{testPD{name: "C", engine: engine}}
		kc := sys.AddPD(c)
		sys.Connect(c, 0, b, 6)

		var inner error
		c.onProtected = func(ch Channel, msg Message) Message {
			_, inner = kc.PPCall(0, NewMessage(0))
			return NewMessage(0)
		}
		b.onProtected = func(ch Channel, msg Message) Message {
			_, err := kb.PPCall(6, NewMessage(0))
			Expect(err).NotTo(HaveOccurred())
			return NewMessage(0)
		}

		_, err := kc.PPCall(0, NewMessage(0))

		Expect(err).NotTo(HaveOccurred())
		Expect(inner).To(MatchError(ErrPDBusy))

		var callErr *CallError
		Expect(errors.As(inner, &callErr)).To(BeTrue())
		Expect(callErr.Caller).To(Equal("C"))
	})

	It("should reject a protected call into a PD without a handler", func() {
		_, err := kb.PPCall(5, NewMessage(0))

		Expect(err).To(MatchError(ErrNotProtected))
	})

	It("should report calls on unknown channels", func() {
		_, err := ka.PPCall(3, NewMessage(0))

		Expect(err).To(MatchError(ErrNoChannel))
	})

	It("should run Init on start", func() {
		sys.Start()

		Expect(engine.Run()).To(Succeed())
		Expect(a.inits).To(Equal(1))
		Expect(b.inits).To(Equal(1))
	})

	It("should panic on channel reuse", func() {
		Expect(func() { sys.Connect(a, 1, b, 7) }).To(Panic())
		Expect(func() { sys.AddIRQ(b, 5, "irq") }).To(Panic())
		Expect(func() { sys.AddPD(a) }).To(Panic())
	})

	Context("interrupts", func() {
		var line *IRQLine

		BeforeEach(func() {
			line = sys.AddIRQ(a, 10, "i2c")
		})

		It("should deliver an interrupt and mask it until acked", func() {
			line.Raise()
			Expect(engine.Run()).To(Succeed())
			Expect(a.notified).To(Equal([]Channel{10}))
			Expect(line.Masked()).To(BeTrue())

			line.Raise()
			Expect(engine.Run()).To(Succeed())
			Expect(a.notified).To(HaveLen(1))

			ka.IRQAck(10)
			Expect(engine.Run()).To(Succeed())
			Expect(a.notified).To(Equal([]Channel{10, 10}))
			Expect(line.Delivered()).To(Equal(uint64(2)))
		})

		It("should not redeliver without a new raise", func() {
			a.onNotified = func(ch Channel) {
				ka.IRQAck(ch)
			}

			line.Raise()
			Expect(engine.Run()).To(Succeed())

			Expect(a.notified).To(HaveLen(1))
			Expect(line.Masked()).To(BeFalse())
		})
	})

	It("should log signals", func() {
		buf := new(bytes.Buffer)
		sys.AcceptHook(NewSignalLogger(log.New(buf, "", 0), engine))

		ka.Notify(1)
		Expect(engine.Run()).To(Succeed())

		Expect(buf.String()).To(ContainSubstring("notify A -> B ch 5"))
		Expect(buf.String()).To(ContainSubstring("deliver B ch 5"))
	})
})

package sim

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("EventQueueImpl", func() {
	var (
		mockCtrl *gomock.Controller
		queue    *EventQueueImpl
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		queue = NewEventQueue()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should pop in order", func() {
		numEvents := 100
		for i := 0; i < numEvents; i++ {
			event := NewMockEvent(mockCtrl)
			event.EXPECT().
				Time().
				Return(VTimeInSec(rand.Float64() / 1e8)).
				AnyTimes()
			queue.Push(event)
		}

		now := VTimeInSec(-1)
		for i := 0; i < numEvents; i++ {
			event := queue.Pop()
			Expect(event.Time() >= now).To(BeTrue())
			now = event.Time()
		}

		Expect(queue.Len()).To(Equal(0))
	})

	It("should pop same-time events first in first out", func() {
		events := make([]Event, 10)
		for i := range events {
			event := NewMockEvent(mockCtrl)
			event.EXPECT().Time().Return(VTimeInSec(1)).AnyTimes()
			events[i] = event
			queue.Push(event)
		}

		Expect(queue.Peek()).To(BeIdenticalTo(events[0]))
		for i := range events {
			Expect(queue.Pop()).To(BeIdenticalTo(events[i]))
		}
	})
})

var _ = Describe("Freq", func() {
	It("should get period", func() {
		f := 400 * KHz
		Expect(f.Period()).To(BeNumerically("~", 2.5e-6, 1e-15))
	})

	It("should panic on zero frequency", func() {
		Expect(func() { Freq(0).Period() }).To(Panic())
	})

	It("should count cycles", func() {
		f := 1 * MHz
		Expect(f.Cycle(0.000010)).To(Equal(uint64(10)))
	})

	It("should time a run of clocks", func() {
		f := 100 * KHz
		Expect(f.Clocks(10)).To(BeNumerically("~", 100e-6, 1e-15))
		Expect(f.Clocks(0)).To(BeZero())
	})

	It("should panic on a negative clock count", func() {
		Expect(func() { (400 * KHz).Clocks(-1) }).To(Panic())
	})

	It("should panic on a negative frequency", func() {
		Expect(func() { Freq(-1).Clocks(1) }).To(Panic())
	})
})

var _ = Describe("IDGenerator", func() {
	It("should hand out increasing sequential ids", func() {
		g := &sequentialIDs{}
		Expect(g.Generate()).To(Equal("1"))
		Expect(g.Generate()).To(Equal("2"))
	})

	It("should refuse to switch once ids are in use", func() {
		GetIDGenerator().Generate()
		Expect(UseParallelIDGenerator).To(Panic())
	})

	It("should generate distinct unique ids", func() {
		g := uniqueIDs{}
		Expect(g.Generate()).NotTo(Equal(g.Generate()))
	})
})

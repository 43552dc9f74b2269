package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	gomega "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/i2cmux/sim"
)

var _ = Describe("BusyTimeTracer", func() {
	var (
		mockCtrl   *gomock.Controller
		timeTeller *MockTimeTeller
		t          *BusyTimeTracer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		timeTeller = NewMockTimeTeller(mockCtrl)

		t = NewBusyTimeTracer(timeTeller, nil)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	at := func(now sim.VTimeInSec) {
		timeTeller.EXPECT().CurrentTime().Return(now)
	}

	It("should track busy time, one task", func() {
		at(1)
		t.StartTask(Task{ID: "1"})
		at(2)
		t.EndTask(Task{ID: "1"})

		gomega.Expect(t.BusyTime()).To(gomega.Equal(sim.VTimeInSec(1.0)))
	})

	It("should track busy time, two tasks apart", func() {
		at(1)
		t.StartTask(Task{ID: "1"})
		at(2)
		t.EndTask(Task{ID: "1"})
		at(3)
		t.StartTask(Task{ID: "2"})
		at(4)
		t.EndTask(Task{ID: "2"})

		gomega.Expect(t.BusyTime()).To(gomega.Equal(sim.VTimeInSec(2.0)))
	})

	It("should count overlapping time once", func() {
		at(1)
		t.StartTask(Task{ID: "1"})
		at(1.5)
		t.StartTask(Task{ID: "2"})
		at(2)
		t.EndTask(Task{ID: "1"})
		at(2.5)
		t.EndTask(Task{ID: "2"})

		gomega.Expect(t.BusyTime()).To(gomega.Equal(sim.VTimeInSec(1.5)))
	})

	It("should count a nested task once", func() {
		at(1)
		t.StartTask(Task{ID: "1"})
		at(1.5)
		t.StartTask(Task{ID: "2"})
		at(2)
		t.EndTask(Task{ID: "2"})
		at(3)
		t.EndTask(Task{ID: "1"})

		gomega.Expect(t.BusyTime()).To(gomega.Equal(sim.VTimeInSec(2.0)))
	})

	It("should ignore filtered tasks", func() {
		t = NewBusyTimeTracer(timeTeller, KindIs("xfer"))

		at(1)
		t.StartTask(Task{ID: "1", Kind: "req"})
		at(2)
		t.EndTask(Task{ID: "1"})

		gomega.Expect(t.BusyTime()).To(gomega.Equal(sim.VTimeInSec(0)))
	})

	It("should terminate unfinished tasks", func() {
		at(1)
		t.StartTask(Task{ID: "1"})

		t.TerminateAllTasks(4)

		gomega.Expect(t.BusyTime()).To(gomega.Equal(sim.VTimeInSec(3.0)))
	})
})

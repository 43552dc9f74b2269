package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	gomega "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/i2cmux/sim"
)

var _ = Describe("AverageTimeTracer", func() {
	var (
		mockCtrl   *gomock.Controller
		timeTeller *MockTimeTeller
		t          *AverageTimeTracer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		timeTeller = NewMockTimeTeller(mockCtrl)

		t = NewAverageTimeTracer(timeTeller, KindIs(KindRequest))
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should average task durations", func() {
		timeTeller.EXPECT().CurrentTime().Return(sim.VTimeInSec(1))
		t.StartTask(Task{ID: "1", Kind: KindRequest})
		timeTeller.EXPECT().CurrentTime().Return(sim.VTimeInSec(1))
		t.StartTask(Task{ID: "2", Kind: KindRequest})
		timeTeller.EXPECT().CurrentTime().Return(sim.VTimeInSec(2))
		t.EndTask(Task{ID: "1"})
		timeTeller.EXPECT().CurrentTime().Return(sim.VTimeInSec(4))
		t.EndTask(Task{ID: "2"})

		gomega.Expect(t.TotalCount()).To(gomega.Equal(uint64(2)))
		gomega.Expect(t.AverageTime()).To(gomega.BeNumerically("~", 2.0, 1e-9))
		gomega.Expect(t.MaxTime()).To(gomega.Equal(sim.VTimeInSec(3)))
	})

	It("should ignore other kinds without reading the clock", func() {
		t.StartTask(Task{ID: "1", Kind: KindTransfer})
		t.EndTask(Task{ID: "1"})

		gomega.Expect(t.TotalCount()).To(gomega.BeZero())
		gomega.Expect(t.AverageTime()).To(gomega.BeZero())
	})
})

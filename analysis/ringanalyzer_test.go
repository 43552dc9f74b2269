package analysis

import (
	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/i2cmux/shm"
	"github.com/sarchlab/i2cmux/sim"
	"github.com/sarchlab/i2cmux/transport"
)

type manualTime struct {
	now sim.VTimeInSec
}

func (t *manualTime) CurrentTime() sim.VTimeInSec {
	return t.now
}

type whereMatcher string

func byRing(name string) gomock.Matcher {
	return whereMatcher(name)
}

func (m whereMatcher) Matches(x any) bool {
	e, ok := x.(Entry)
	return ok && e.Where == string(m)
}

func (m whereMatcher) String() string {
	return "is an entry of " + string(m)
}

var _ = ginkgo.Describe("RingAnalyzer", func() {
	var (
		mockCtrl  *gomock.Controller
		logger    *MockPerfLogger
		clock     *manualTime
		server    *transport.Context
		peer      *transport.Context
		analyzer  *RingAnalyzer
		reqUsedID string
	)

	ginkgo.BeforeEach(func() {
		mockCtrl = gomock.NewController(ginkgo.GinkgoT())
		logger = NewMockPerfLogger(mockCtrl)
		clock = &manualTime{}

		config := transport.Config{BufSize: 16, BufCount: 4}
		region := shm.New("T", transport.RegionSize(config))

		var err error
		server, err = transport.New("Server", region, config)
		Expect(err).NotTo(HaveOccurred())
		peer, err = transport.Attach("Peer", region, config)
		Expect(err).NotTo(HaveOccurred())

		reqUsedID = "Server.ReqUsed"
	})

	ginkgo.AfterEach(func() {
		mockCtrl.Finish()
	})

	ginkgo.It("should average the level of a ring over a period", func() {
		analyzer = MakeRingAnalyzerBuilder().
			WithPerfLogger(logger).
			WithTimeTeller(clock).
			WithPeriod(1).
			Build()
		analyzer.Watch(server, peer)

		clock.now = 0.5
		_, err := peer.Allocate(1, 0x10, []byte{1})
		Expect(err).NotTo(HaveOccurred())

		logger.EXPECT().AddDataEntry(byRing(reqUsedID)).Do(func(e Entry) {
			Expect(e.Start).To(Equal(sim.VTimeInSec(0)))
			Expect(e.End).To(Equal(sim.VTimeInSec(1)))
			Expect(e.Value).To(BeNumerically("~", 0.5, 1e-9))
			Expect(e.EntryType).To(Equal("Ring"))
		})
		logger.EXPECT().AddDataEntry(byRing("Server.ReqFree")).AnyTimes()
		logger.EXPECT().AddDataEntry(byRing("Server.RetFree")).AnyTimes()

		clock.now = 1.5
		_, _, err = server.PopRequest()
		Expect(err).NotTo(HaveOccurred())
	})

	ginkgo.It("should summarize the time since the last report", func() {
		analyzer = MakeRingAnalyzerBuilder().
			WithPerfLogger(logger).
			WithTimeTeller(clock).
			Build()
		analyzer.Watch(server)

		clock.now = 1
		_, _, err := server.TakeReturn()
		Expect(err).NotTo(HaveOccurred())

		var retFree Entry
		logger.EXPECT().AddDataEntry(byRing("Server.RetFree")).
			Do(func(e Entry) { retFree = e })
		logger.EXPECT().AddDataEntry(byRing("Server.ReqFree"))

		clock.now = 4
		analyzer.Summarize()

		Expect(retFree.Value).To(BeNumerically("~", (4*1+3*3)/4.0, 1e-9))
		Expect(retFree.End).To(Equal(sim.VTimeInSec(4)))
	})

	ginkgo.It("should require a logger and a time teller", func() {
		Expect(func() { MakeRingAnalyzerBuilder().Build() }).To(Panic())
		Expect(func() {
			MakeRingAnalyzerBuilder().WithPerfLogger(logger).Build()
		}).To(Panic())
	})
})

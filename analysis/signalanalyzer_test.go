package analysis

import (
	ginkgo "github.com/onsi/ginkgo/v2"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/i2cmux/microkit"
	"github.com/sarchlab/i2cmux/sim"
)

var _ = ginkgo.Describe("SignalAnalyzer", func() {
	var (
		mockCtrl *gomock.Controller
		logger   *MockPerfLogger
		clock    *manualTime
		analyzer *SignalAnalyzer
	)

	ginkgo.BeforeEach(func() {
		mockCtrl = gomock.NewController(ginkgo.GinkgoT())
		logger = NewMockPerfLogger(mockCtrl)
		clock = &manualTime{}

		analyzer = MakeSignalAnalyzerBuilder().
			WithPerfLogger(logger).
			WithTimeTeller(clock).
			WithPeriod(1).
			Build()
	})

	ginkgo.AfterEach(func() {
		mockCtrl.Finish()
	})

	signal := func(pos *sim.HookPos, from, to string) {
		analyzer.Func(sim.HookCtx{
			Pos:  pos,
			Item: microkit.Signal{From: from, To: to},
		})
	}

	ginkgo.It("should count signals per period", func() {
		clock.now = 0.1
		signal(microkit.HookPosNotify, "Client", "Broker")
		clock.now = 0.2
		signal(microkit.HookPosNotify, "Client", "Broker")
		signal(microkit.HookPosDeliver, "", "Broker")
		signal(microkit.HookPosIRQ, "I2C", "Driver")

		gomock.InOrder(
			logger.EXPECT().AddDataEntry(Entry{
				Start: 0, End: 1,
				Where: "Broker", WhereRemote: "Client",
				What: "Notify", EntryType: "Signal",
				Value: 2, Unit: "Signal",
			}),
			logger.EXPECT().AddDataEntry(Entry{
				Start: 0, End: 1,
				Where: "Driver", WhereRemote: "I2C",
				What: "IRQ", EntryType: "Signal",
				Value: 1, Unit: "Signal",
			}),
		)

		clock.now = 1.2
		signal(microkit.HookPosPPCall, "Client", "Broker")

		logger.EXPECT().AddDataEntry(Entry{
			Start: 1, End: 1.5,
			Where: "Broker", WhereRemote: "Client",
			What: "PPCall", EntryType: "Signal",
			Value: 1, Unit: "Signal",
		})

		clock.now = 1.5
		analyzer.Summarize()
	})

	ginkgo.It("should ignore other hook items", func() {
		analyzer.Func(sim.HookCtx{Pos: microkit.HookPosNotify, Item: 3})
		analyzer.Summarize()
	})
})

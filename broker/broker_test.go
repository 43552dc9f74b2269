package broker

import (
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/i2cmux/i2c"
	"github.com/sarchlab/i2cmux/microkit"
	"github.com/sarchlab/i2cmux/shm"
	"github.com/sarchlab/i2cmux/token"
	"github.com/sarchlab/i2cmux/tracing"
	"github.com/sarchlab/i2cmux/transport"
)

const (
	driverCh  microkit.Channel = 0
	clientACh microkit.Channel = 1
	clientBCh microkit.Channel = 2
)

func connect(name string, c transport.Config) (server, peer *transport.Context) {
	region := shm.New(name, transport.RegionSize(c))

	server, err := transport.New(name+".Server", region, c)
	Expect(err).NotTo(HaveOccurred())

	peer, err = transport.Attach(name+".Peer", region, c)
	Expect(err).NotTo(HaveOccurred())

	return server, peer
}

var _ = Describe("Broker", func() {
	var (
		mockCtrl *gomock.Controller
		kernel   *MockKernel
		config   transport.Config
		driver   *transport.Context
		clientA  *transport.Context
		clientB  *transport.Context
		broker   *Comp
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		kernel = NewMockKernel(mockCtrl)
		config = transport.Config{BufSize: 64, BufCount: 4}

		var toDriver, toA, toB *transport.Context
		toDriver, driver = connect("Driver", transport.Config{BufSize: 64, BufCount: 2})
		toA, clientA = connect("ClientA", config)
		toB, clientB = connect("ClientB", config)

		broker = MakeBuilder().
			WithDriver(driverCh, toDriver).
			WithClient(ClientConfig{ID: 1, Channel: clientACh, Transport: toA}).
			WithClient(ClientConfig{ID: 2, Channel: clientBCh, Transport: toB}).
			WithLogger(log.New(GinkgoWriter, "", 0)).
			Build("Broker")
		broker.Bind(kernel)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	call := func(ch microkit.Channel, msg microkit.Message) Status {
		return ParseStatus(broker.Protected(ch, msg))
	}

	write := func(t *transport.Context, addr i2c.Addr, data ...byte) {
		_, err := t.AllocateTransaction(addr, token.Write, data)
		Expect(err).NotTo(HaveOccurred())
	}

	respond := func(client i2c.ClientID, addr i2c.Addr, code i2c.ErrorCode, data ...byte) {
		h, buf, err := driver.TakeReturn()
		Expect(err).NotTo(HaveOccurred())

		n := copy(buf, []byte{byte(client), byte(addr), byte(code), 0})
		n += copy(buf[n:], data)
		Expect(driver.PushReturn(h, n)).To(Succeed())
	}

	Context("protected calls", func() {
		It("should claim and release addresses", func() {
			Expect(call(clientACh, ClaimMessage(0x50, 1))).To(Equal(StatusOK))
			Expect(call(clientACh, ClaimMessage(0x50, 1))).To(Equal(StatusOK))
			Expect(call(clientBCh, ClaimMessage(0x50, 2))).
				To(Equal(StatusAlreadyClaimed))
			Expect(call(clientBCh, ReleaseMessage(0x50, 2))).
				To(Equal(StatusNotOwner))

			owner, ok := broker.Owner(0x50)
			Expect(ok).To(BeTrue())
			Expect(owner).To(Equal(i2c.ClientID(1)))

			Expect(call(clientACh, ReleaseMessage(0x50, 1))).To(Equal(StatusOK))
			_, ok = broker.Owner(0x50)
			Expect(ok).To(BeFalse())

			Expect(broker.Stats().Claims).To(Equal(uint64(2)))
			Expect(broker.Stats().Releases).To(Equal(uint64(1)))
			Expect(broker.Stats().Rejected).To(Equal(uint64(2)))
		})

		It("should reject addresses outside 7 bits", func() {
			msg := microkit.NewMessage(0, ReqClaim, 0x80, 1)
			Expect(call(clientACh, msg)).To(Equal(StatusInvalidAddress))

			msg = microkit.NewMessage(0, ReqClaim, 0x150, 1)
			Expect(call(clientACh, msg)).To(Equal(StatusInvalidAddress))
			Expect(broker.Security().Claims()).To(BeEmpty())
		})

		It("should reject unknown request types", func() {
			Expect(call(clientACh, microkit.NewMessage(0, 0, 0x50, 1))).
				To(Equal(StatusInvalidRequest))
			Expect(call(clientACh, microkit.NewMessage(0, 3, 0x50, 1))).
				To(Equal(StatusInvalidRequest))
		})

		It("should reject callers claiming another identity", func() {
			Expect(call(clientACh, ClaimMessage(0x50, 2))).
				To(Equal(StatusInvalidClient))
			Expect(call(7, ClaimMessage(0x50, 1))).
				To(Equal(StatusInvalidClient))
			Expect(broker.Security().Claims()).To(BeEmpty())
		})
	})

	Context("client doorbell", func() {
		BeforeEach(func() {
			Expect(broker.Security().Claim(0x50, 1)).To(Succeed())
		})

		It("should forward an owned request with the client id", func() {
			_, err := clientA.Allocate(9, 0x50, []byte{0x02, 0x05, 0xAA})
			Expect(err).NotTo(HaveOccurred())

			kernel.EXPECT().Notify(driverCh)

			broker.Notified(clientACh)

			h, req, err := driver.PopRequest()
			Expect(err).NotTo(HaveOccurred())
			Expect(req).To(Equal([]byte{1, 0x50, 0x02, 0x05, 0xAA}))
			Expect(driver.ReleaseRequest(h)).To(Succeed())

			Expect(clientA.Stats().ReqFree).To(Equal(config.BufCount))
			Expect(broker.Stats().Forwarded).To(Equal(uint64(1)))
			Expect(broker.Clients()[0]).To(Equal(ClientInfo{
				ID:          1,
				Channel:     clientACh,
				State:       Forwarded,
				Outstanding: 1,
			}))
		})

		It("should drop requests to addresses the client does not own", func() {
			write(clientB, 0x50, 0x01)

			broker.Notified(clientBCh)

			Expect(driver.RequestEmpty()).To(BeTrue())
			Expect(clientB.Stats().ReqFree).To(Equal(config.BufCount))
			Expect(broker.Stats().NotOwned).To(Equal(uint64(1)))
			Expect(broker.Clients()[1].State).To(Equal(ClientIdle))
		})

		It("should drain every queued request on one doorbell", func() {
			write(clientA, 0x50, 0x01)
			write(clientA, 0x50, 0x02)

			kernel.EXPECT().Notify(driverCh).Times(1)

			broker.Notified(clientACh)

			Expect(driver.Stats().ReqUsed).To(Equal(2))
			Expect(clientA.RequestEmpty()).To(BeTrue())
		})

		It("should count requests the driver cannot take", func() {
			write(clientA, 0x50, 0x01)
			write(clientA, 0x50, 0x02)
			write(clientA, 0x50, 0x03)

			kernel.EXPECT().Notify(driverCh)

			broker.Notified(clientACh)

			Expect(broker.Stats().Forwarded).To(Equal(uint64(2)))
			Expect(broker.Stats().DriverBusy).To(Equal(uint64(1)))
			Expect(clientA.Stats().ReqFree).To(Equal(config.BufCount))
		})

		It("should count requests too long for the driver as malformed", func() {
			toDriver, small := connect("SmallDriver", transport.Config{BufSize: 8, BufCount: 2})
			toA, peer := connect("Oversized", config)
			b := MakeBuilder().
				WithDriver(driverCh, toDriver).
				WithClient(ClientConfig{ID: 1, Channel: clientACh, Transport: toA}).
				WithLogger(log.New(GinkgoWriter, "", 0)).
				Build("Broker")
			b.Bind(kernel)
			Expect(b.Security().Claim(0x50, 1)).To(Succeed())

			tracer := tracing.NewStepCountTracer(tracing.KindIs(tracing.KindForward))
			tracing.CollectTrace(b, tracer)

			write(peer, 0x50, make([]byte, 10)...)

			b.Notified(clientACh)

			Expect(small.RequestEmpty()).To(BeTrue())
			Expect(b.Stats().Malformed).To(Equal(uint64(1)))
			Expect(b.Stats().DriverBusy).To(BeZero())
			Expect(tracer.GetStepCount("malformed")).To(Equal(uint64(1)))
			Expect(peer.Stats().ReqFree).To(Equal(config.BufCount))
		})

		It("should ignore unknown channels", func() {
			broker.Notified(9)
		})

		It("should trace forwarded requests", func() {
			tracer := tracing.NewStepCountTracer(tracing.KindIs(tracing.KindForward))
			tracing.CollectTrace(broker, tracer)

			write(clientA, 0x50, 0x01)
			write(clientB, 0x50, 0x01)
			kernel.EXPECT().Notify(driverCh)

			broker.Notified(clientACh)
			broker.Notified(clientBCh)

			Expect(tracer.GetStepCount("forwarded")).To(Equal(uint64(1)))
			Expect(tracer.GetStepCount("not-owned")).To(Equal(uint64(1)))
		})
	})

	Context("driver doorbell", func() {
		It("should deliver responses to their client", func() {
			respond(1, 0x50, i2c.OK, 0xAA, 0xBB)

			kernel.EXPECT().Notify(clientACh)

			broker.Notified(driverCh)

			h, ret, err := clientA.PopReturn()
			Expect(err).NotTo(HaveOccurred())
			Expect(ret).To(Equal([]byte{1, 0x50, 0, 0, 0xAA, 0xBB}))
			Expect(clientA.ReleaseReturn(h)).To(Succeed())

			Expect(driver.Stats().RetFree).To(Equal(2))
			Expect(broker.Stats().Completed).To(Equal(uint64(1)))
		})

		It("should notify each client once, in channel order", func() {
			respond(2, 0x20, i2c.Nack)
			respond(1, 0x50, i2c.OK)

			gomock.InOrder(
				kernel.EXPECT().Notify(clientACh),
				kernel.EXPECT().Notify(clientBCh),
			)

			broker.Notified(driverCh)

			Expect(broker.Clients()[1].State).To(Equal(ClientIdle))
		})

		It("should drop responses for unknown clients", func() {
			respond(7, 0x50, i2c.OK)

			broker.Notified(driverCh)

			Expect(broker.Stats().InvalidClient).To(Equal(uint64(1)))
			Expect(driver.Stats().RetFree).To(Equal(2))
		})

		It("should count responses a client has no room for", func() {
			for i := 0; i < config.BufCount; i++ {
				_, _, err := clientA.TakeReturn()
				Expect(err).NotTo(HaveOccurred())
			}

			respond(1, 0x50, i2c.OK)

			broker.Notified(driverCh)

			Expect(broker.Stats().DeliveryFailures).To(Equal(uint64(1)))
			Expect(driver.Stats().RetFree).To(Equal(2))
		})

		It("should track the outcome of forwarded requests", func() {
			Expect(broker.Security().Claim(0x50, 1)).To(Succeed())
			write(clientA, 0x50, 0x01)
			write(clientA, 0x50, 0x02)
			kernel.EXPECT().Notify(driverCh)
			broker.Notified(clientACh)

			respond(1, 0x50, i2c.Nack)
			kernel.EXPECT().Notify(driverCh)
			kernel.EXPECT().Notify(clientACh)
			broker.Notified(driverCh)

			info := broker.Clients()[0]
			Expect(info.State).To(Equal(Faulted))
			Expect(info.Outstanding).To(Equal(1))
		})
	})

	It("should revoke the addresses of a client", func() {
		Expect(call(clientACh, ClaimMessage(0x50, 1))).To(Equal(StatusOK))
		Expect(call(clientACh, ClaimMessage(0x51, 1))).To(Equal(StatusOK))

		Expect(broker.RevokeClient(1)).To(Equal(2))
		Expect(call(clientBCh, ClaimMessage(0x50, 2))).To(Equal(StatusOK))
	})

	It("should refuse inconsistent client sets", func() {
		t, _ := connect("Extra", config)

		b := MakeBuilder().WithDriver(driverCh, driver)
		Expect(func() {
			b.WithClient(ClientConfig{ID: 1, Channel: driverCh, Transport: t}).
				Build("Broker")
		}).To(Panic())
		Expect(func() {
			b.WithClient(ClientConfig{ID: 1, Channel: 1, Transport: t}).
				WithClient(ClientConfig{ID: 2, Channel: 1, Transport: t}).
				Build("Broker")
		}).To(Panic())
		Expect(func() {
			b.WithClient(ClientConfig{ID: 1, Channel: 1, Transport: t}).
				WithClient(ClientConfig{ID: 1, Channel: 2, Transport: t}).
				Build("Broker")
		}).To(Panic())
	})
})

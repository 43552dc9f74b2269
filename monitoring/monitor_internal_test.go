package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/i2cmux/broker"
	"github.com/sarchlab/i2cmux/driver/meson"
	"github.com/sarchlab/i2cmux/mmio"
	"github.com/sarchlab/i2cmux/shm"
	"github.com/sarchlab/i2cmux/sim"
	"github.com/sarchlab/i2cmux/token"
	"github.com/sarchlab/i2cmux/transport"
)

func connect(name string, c transport.Config) (server, peer *transport.Context) {
	region := shm.New(name, transport.RegionSize(c))

	server, err := transport.New(name+".Server", region, c)
	Expect(err).NotTo(HaveOccurred())

	peer, err = transport.Attach(name+".Peer", region, c)
	Expect(err).NotTo(HaveOccurred())

	return server, peer
}

type sampleComponent struct {
	name  string
	Count int
}

func (c *sampleComponent) Name() string {
	return c.name
}

var _ = Describe("Monitor", func() {
	var (
		m      *Monitor
		engine *sim.SerialEngine
		b      *broker.Comp
		peer   *transport.Context
		regs   *mmio.Memory
		router http.Handler
	)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	getJSON := func(path string, v any) {
		rec := get(path)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Unmarshal(rec.Body.Bytes(), v)).To(Succeed())
	}

	BeforeEach(func() {
		config := transport.Config{BufSize: 64, BufCount: 4}
		toDriver, _ := connect("Driver", config)

		var toClient *transport.Context
		toClient, peer = connect("Client", config)

		b = broker.MakeBuilder().
			WithDriver(0, toDriver).
			WithClient(broker.ClientConfig{ID: 1, Channel: 1, Transport: toClient}).
			Build("Broker")

		regs = mmio.NewMemory("I2C", meson.RegisterMap)
		engine = sim.NewSerialEngine()

		m = NewMonitor()
		m.RegisterEngine(engine)
		m.RegisterBroker(b)
		m.RegisterTransport(toClient)
		m.RegisterRegisters("I2C", regs)
		m.RegisterComponent(&sampleComponent{name: "Sample", Count: 7})

		router = m.Router()
	})

	It("should report the current time", func() {
		Expect(get("/api/now").Body.String()).To(Equal(`{"now":0.0000000000}`))
	})

	It("should list components", func() {
		var names []string
		getJSON("/api/list_components", &names)

		Expect(names).To(Equal([]string{"Broker", "Sample"}))
	})

	It("should serialize a component", func() {
		rec := get("/api/component/Sample")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("Count"))
	})

	It("should return 404 for unknown components", func() {
		Expect(get("/api/component/Nobody").Code).To(Equal(http.StatusNotFound))
	})

	It("should reject malformed field queries", func() {
		field := func(q string) int {
			return get("/api/field/" + url.PathEscape(q)).Code
		}

		Expect(field("{")).To(Equal(http.StatusBadRequest))
		Expect(field(`{"comp_name":"Nobody","field_name":"Count"}`)).
			To(Equal(http.StatusNotFound))
	})

	It("should pause and continue the engine", func() {
		Expect(get("/api/pause").Code).To(Equal(http.StatusNoContent))
		Expect(get("/api/continue").Code).To(Equal(http.StatusNoContent))
		Expect(engine.Run()).To(Succeed())
	})

	It("should list the security table", func() {
		Expect(b.Security().Claim(0x50, 1)).To(Succeed())

		var claims []claimRsp
		getJSON("/api/security", &claims)

		Expect(claims).To(Equal([]claimRsp{{Addr: "0x50", Client: 1}}))
	})

	It("should list clients", func() {
		var clients []clientRsp
		getJSON("/api/clients", &clients)

		Expect(clients).To(HaveLen(1))
		Expect(clients[0].ID).To(Equal(uint8(1)))
		Expect(clients[0].Channel).To(Equal(1))
		Expect(clients[0].State).To(Equal(broker.ClientIdle.String()))
	})

	It("should list rings by fill", func() {
		_, err := peer.AllocateTransaction(0x50, token.Write, []byte{0xAA})
		Expect(err).NotTo(HaveOccurred())

		var rings []ringRsp
		getJSON("/api/rings", &rings)

		Expect(rings).To(Equal([]ringRsp{
			{Ring: "Client.Server.RetFree", Level: 4, Cap: 4},
			{Ring: "Client.Server.ReqFree", Level: 3, Cap: 4},
			{Ring: "Client.Server.ReqUsed", Level: 1, Cap: 4},
			{Ring: "Client.Server.RetUsed", Level: 0, Cap: 4},
		}))

		getJSON("/api/rings?sort=level&limit=2&offset=1", &rings)
		Expect(rings).To(Equal([]ringRsp{
			{Ring: "Client.Server.ReqFree", Level: 3, Cap: 4},
			{Ring: "Client.Server.ReqUsed", Level: 1, Cap: 4},
		}))
	})

	It("should reject bad ring queries", func() {
		Expect(get("/api/rings?sort=size").Code).To(Equal(http.StatusBadRequest))
		Expect(get("/api/rings?limit=x").Code).To(Equal(http.StatusBadRequest))
		Expect(get("/api/rings?offset=-1").Code).To(Equal(http.StatusBadRequest))
	})

	It("should dump registers", func() {
		regs.Store(meson.RegAddr, 0x50<<meson.AddrTargetShift)

		body := get("/api/registers").Body.String()
		Expect(body).To(HavePrefix("I2C\n"))
		Expect(body).To(ContainSubstring("target 0x50"))

		Expect(get("/api/registers/I2C").Code).To(Equal(http.StatusOK))
		Expect(get("/api/registers/GPIO").Code).To(Equal(http.StatusNotFound))
	})

	It("should track progress bars", func() {
		bar := m.CreateProgressBar("Scenario", 3)
		bar.IncrementInProgress(2)
		bar.MoveInProgressToFinished(1)

		var bars []map[string]any
		getJSON("/api/progress", &bars)
		Expect(bars).To(HaveLen(1))
		Expect(bars[0]["name"]).To(Equal("Scenario"))
		Expect(bars[0]["finished"]).To(BeNumerically("==", 1))
		Expect(bars[0]["in_progress"]).To(BeNumerically("==", 1))

		m.CompleteProgressBar(bar)
		getJSON("/api/progress", &bars)
		Expect(bars).To(BeEmpty())
	})

	It("should serve the dashboard", func() {
		rec := get("/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(HavePrefix("<!DOCTYPE html>"))
	})
})

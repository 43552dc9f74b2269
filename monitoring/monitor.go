// Package monitoring serves the state of a running system over HTTP.
package monitoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	// Registers the /debug/pprof handlers on http.DefaultServeMux.
	_ "net/http/pprof"

	"github.com/gorilla/mux"

	"github.com/sarchlab/i2cmux/broker"
	"github.com/sarchlab/i2cmux/mmio"
	"github.com/sarchlab/i2cmux/monitoring/web"
	"github.com/sarchlab/i2cmux/ringbuf"
	"github.com/sarchlab/i2cmux/sim"
	"github.com/sarchlab/i2cmux/transport"
)

type registerBank struct {
	name string
	bank mmio.Bank
}

// Monitor publishes the engine, the components and the I2C state of a
// platform, and lets a browser pause and resume the engine.
type Monitor struct {
	engine     sim.Engine
	components []sim.Named
	rings      []*ringbuf.Ring
	banks      []registerBank
	broker     *broker.Comp
	port       int

	barsLock sync.Mutex
	bars     []*ProgressBar
}

// NewMonitor returns a monitor with nothing registered.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber fixes the listening port. Zero picks a free port, and so
// does any privileged port below 1000, with a warning.
func (m *Monitor) WithPortNumber(port int) *Monitor {
	if port != 0 && port < 1000 {
		log.Printf("monitor: port %d is not allowed, using a free port", port)
		port = 0
	}

	m.port = port

	return m
}

// RegisterEngine sets the engine controlled through the API.
func (m *Monitor) RegisterEngine(e sim.Engine) {
	m.engine = e
}

// RegisterComponent lists c under /api/list_components.
func (m *Monitor) RegisterComponent(c sim.Named) {
	m.components = append(m.components, c)
}

// RegisterTransport makes the rings of a transport visible. Only one end of
// each shared region needs to be registered.
func (m *Monitor) RegisterTransport(t *transport.Context) {
	m.rings = append(m.rings, t.Rings()...)
}

// RegisterBroker publishes the broker's security table and client states.
func (m *Monitor) RegisterBroker(b *broker.Comp) {
	m.broker = b
	m.RegisterComponent(b)
}

// RegisterRegisters publishes a controller register bank.
func (m *Monitor) RegisterRegisters(name string, bank mmio.Bank) {
	m.banks = append(m.banks, registerBank{name: name, bank: bank})
}

// CreateProgressBar adds a bar to the dashboard.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		id:    sim.GetIDGenerator().Generate(),
		name:  name,
		start: time.Now(),
		total: total,
	}

	m.barsLock.Lock()
	m.bars = append(m.bars, bar)
	m.barsLock.Unlock()

	return bar
}

// CompleteProgressBar takes a bar off the dashboard.
func (m *Monitor) CompleteProgressBar(bar *ProgressBar) {
	m.barsLock.Lock()
	defer m.barsLock.Unlock()

	kept := m.bars[:0]
	for _, b := range m.bars {
		if b != bar {
			kept = append(kept, b)
		}
	}
	clear(m.bars[len(kept):])
	m.bars = kept
}

// Router returns the handler that serves the monitoring API and the
// dashboard.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/pause", m.pauseEngine)
	api.HandleFunc("/continue", m.continueEngine)
	api.HandleFunc("/now", m.now)
	api.HandleFunc("/run", m.run)
	api.HandleFunc("/list_components", m.listComponents)
	api.HandleFunc("/component/{name}", m.componentDetails)
	api.HandleFunc("/field/{json}", m.fieldValue)

	api.HandleFunc("/security", m.listSecurity)
	api.HandleFunc("/clients", m.listClients)
	api.HandleFunc("/rings", m.listRings)
	api.HandleFunc("/registers", m.listRegisters)
	api.HandleFunc("/registers/{name}", m.listRegisters)

	api.HandleFunc("/progress", m.listProgressBars)
	api.HandleFunc("/resource", m.resources)
	api.HandleFunc("/profile", m.profile)

	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer serves the router in the background and returns its URL.
func (m *Monitor) StartServer() string {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", m.port))
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring I2C system at %s\n", url)

	srv := &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			dieOnErr(err)
		}
	}()

	return url
}

func writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(body)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}

// Package platform assembles a complete I2C subsystem from a description:
// the broker, the driver and the clients as protection domains, the shared
// transports between them, and a simulated controller with its targets.
package platform

import (
	"errors"

	"github.com/sarchlab/i2cmux/analysis"
	"github.com/sarchlab/i2cmux/broker"
	"github.com/sarchlab/i2cmux/client"
	"github.com/sarchlab/i2cmux/config"
	"github.com/sarchlab/i2cmux/datarecording"
	"github.com/sarchlab/i2cmux/device"
	"github.com/sarchlab/i2cmux/driver/meson"
	"github.com/sarchlab/i2cmux/driver/meson/mesonsim"
	"github.com/sarchlab/i2cmux/microkit"
	"github.com/sarchlab/i2cmux/mmio"
	"github.com/sarchlab/i2cmux/monitoring"
	"github.com/sarchlab/i2cmux/shm"
	"github.com/sarchlab/i2cmux/sim"
	"github.com/sarchlab/i2cmux/tracing"
	"github.com/sarchlab/i2cmux/transport"
)

// Channels of the broker. Client i is reached on ClientChannel(i).
const (
	BrokerDriverCh microkit.Channel = 0
	ClientBrokerCh microkit.Channel = 0
)

// DriverChannels is the channel assignment of the driver PD.
var DriverChannels = meson.Channels{Broker: 0, IRQ: 1, Timeout: 2}

// ClientChannel returns the broker channel of the i-th client.
func ClientChannel(i int) microkit.Channel {
	return BrokerDriverCh + 1 + microkit.Channel(i)
}

// A Platform is a built system.
type Platform struct {
	name   string
	config config.System

	engine     *sim.SerialEngine
	system     *microkit.System
	broker     *broker.Comp
	driver     *meson.Comp
	controller *mesonsim.Controller
	gpio       *mmio.Memory
	clock      *mmio.Memory
	devices    []device.Target

	clients      []*client.Comp
	clientByName map[string]*client.Comp

	regions []*shm.Region
	pairs   [][2]*transport.Context

	latency    *tracing.AverageTimeTracer
	busy       *tracing.BusyTimeTracer
	steps      *tracing.StepCountTracer
	recorder   datarecording.DataRecorder
	dbTracer   *tracing.DBTracer
	perfCSV    *analysis.CSVLogger
	rings      *analysis.RingAnalyzer
	signals    *analysis.SignalAnalyzer
	monitor    *monitoring.Monitor
	monitorURL string
}

// Name returns the name of the platform.
func (p *Platform) Name() string {
	return p.name
}

// Config returns the description the platform was built from.
func (p *Platform) Config() config.System {
	return p.config
}

// Engine returns the engine that runs the system.
func (p *Platform) Engine() *sim.SerialEngine {
	return p.engine
}

// System returns the kernel the PDs run on.
func (p *Platform) System() *microkit.System {
	return p.system
}

// Broker returns the broker PD.
func (p *Platform) Broker() *broker.Comp {
	return p.broker
}

// Driver returns the driver PD.
func (p *Platform) Driver() *meson.Comp {
	return p.driver
}

// Controller returns the simulated controller.
func (p *Platform) Controller() *mesonsim.Controller {
	return p.controller
}

// Device returns the target with the given name.
func (p *Platform) Device(name string) (device.Target, bool) {
	for _, d := range p.devices {
		if d.Name() == name {
			return d, true
		}
	}

	return nil, false
}

// Clients returns the client PDs in configuration order.
func (p *Platform) Clients() []*client.Comp {
	return append([]*client.Comp(nil), p.clients...)
}

// Client returns the client with the given name.
func (p *Platform) Client(name string) (*client.Comp, bool) {
	c, ok := p.clientByName[name]
	return c, ok
}

// Monitor returns the monitor, or nil if monitoring is off.
func (p *Platform) Monitor() *monitoring.Monitor {
	return p.monitor
}

// MonitorURL returns the address of the monitor, or "" if it is not
// serving.
func (p *Platform) MonitorURL() string {
	return p.monitorURL
}

// Run processes events until the system is idle.
func (p *Platform) Run() error {
	return p.engine.Run()
}

// Report summarizes the tracers.
type Report struct {
	Now            sim.VTimeInSec
	Requests       uint64
	AverageLatency sim.VTimeInSec
	MaxLatency     sim.VTimeInSec
	BusBusy        sim.VTimeInSec
	BrokerSteps    map[string]uint64
	Broker         broker.Stats
	Driver         meson.Stats
	Controller     mesonsim.Stats
}

// Report returns what the tracers have measured so far.
func (p *Platform) Report() Report {
	return Report{
		Now:            p.engine.CurrentTime(),
		Requests:       p.latency.TotalCount(),
		AverageLatency: p.latency.AverageTime(),
		MaxLatency:     p.latency.MaxTime(),
		BusBusy:        p.busy.BusyTime(),
		BrokerSteps:    p.steps.Counts(),
		Broker:         p.broker.Stats(),
		Driver:         p.driver.Stats(),
		Controller:     p.controller.Stats(),
	}
}

// Close ends the run, writes the pending traces and releases the shared
// regions.
func (p *Platform) Close() error {
	var errs []error

	p.engine.Finished()

	if p.recorder != nil {
		errs = append(errs, p.recorder.Close())
	}

	for _, r := range p.regions {
		errs = append(errs, r.Close())
	}

	return errors.Join(errs...)
}

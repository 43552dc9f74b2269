package platform

import (
	"fmt"
	"io"
	"log"
	"path/filepath"

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

// Builder can be used to build a platform.
type Builder struct {
	config    config.System
	logger    *log.Logger
	monitorOn bool
	verbose   bool
	perfCSV   io.Writer
}

// MakeBuilder creates a new builder with the default description.
func MakeBuilder() Builder {
	return Builder{
		config: config.Default(),
		logger: log.Default(),
	}
}

// WithConfig sets the system description.
func (b Builder) WithConfig(c config.System) Builder {
	b.config = c
	return b
}

// WithLogger sets the logger shared by all the PDs.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// WithMonitor serves the monitor on the configured port once the platform is
// built.
func (b Builder) WithMonitor() Builder {
	b.monitorOn = true
	return b
}

// WithVerbose logs every dispatched event and every kernel signal.
func (b Builder) WithVerbose() Builder {
	b.verbose = true
	return b
}

// WithPerfCSV writes the ring and signal measurements to w as CSV rows. The
// rows are flushed when the platform is closed.
func (b Builder) WithPerfCSV(w io.Writer) Builder {
	b.perfCSV = w
	return b
}

// Build builds the platform.
func (b Builder) Build(name string) (*Platform, error) {
	sim.NameMustBeValid(name)

	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	p := &Platform{
		name:         name,
		config:       b.config,
		clientByName: make(map[string]*client.Comp),
	}

	p.engine = sim.NewSerialEngine()
	p.system = microkit.MakeBuilder().
		WithEngine(p.engine).
		WithLatency(sim.VTimeInSec(b.config.Latency)).
		Build(name)

	if err := b.buildHardware(p); err != nil {
		return nil, err
	}

	if err := b.buildDomains(p); err != nil {
		p.Close()
		return nil, err
	}

	b.connect(p)

	if err := b.trace(p); err != nil {
		p.Close()
		return nil, err
	}

	if b.verbose {
		p.engine.AcceptHook(sim.NewEventLogger(b.logger))
		p.system.AcceptHook(microkit.NewSignalLogger(b.logger, p.engine))
	}

	if b.monitorOn {
		b.startMonitor(p)
	}

	return p, nil
}

func (b Builder) buildHardware(p *Platform) error {
	bus := device.NewBus()

	for _, d := range b.config.Devices {
		t := buildDevice(d)
		bus.Attach(t)
		p.devices = append(p.devices, t)
	}

	p.controller = mesonsim.MakeBuilder().
		WithEngine(p.engine).
		WithBus(bus).
		WithFreq(sim.Freq(b.config.Controller.Freq)).
		WithTimeout(sim.VTimeInSec(b.config.Controller.Timeout)).
		Build("I2C")

	p.gpio = mmio.NewMemory("GPIO", meson.GPIORegisterMap)
	p.clock = mmio.NewMemory("Clock", meson.ClockRegisterMap)

	return meson.Setup(b.config.Bus, p.controller,
		meson.Pads{GPIO: p.gpio, Clock: p.clock}, b.logger)
}

func buildDevice(d config.Device) device.Target {
	switch d.Kind {
	case config.DeviceEEPROM:
		page := d.Page
		if page <= 0 {
			page = d.Size
		}

		e := device.NewEEPROM(d.Name, d.Addr, d.Size, page)
		copy(e.Mem, d.Init)

		return e
	case config.DeviceRegisters:
		r := device.NewRegisters(d.Name, d.Addr, d.Size)
		copy(r.Regs, d.Init)

		return r
	case config.DeviceHung:
		return device.NewHung(d.Name, d.Addr)
	default:
		panic(fmt.Sprintf("unknown device kind %q", d.Kind))
	}
}

// connectTransport formats a region for the broker's end and attaches the
// peer.
func (b Builder) connectTransport(
	p *Platform,
	name, serverName, peerName string,
) (server, peer *transport.Context, err error) {
	c := b.config.TransportConfig()

	region, err := b.region(name, transport.RegionSize(c))
	if err != nil {
		return nil, nil, err
	}
	p.regions = append(p.regions, region)

	if server, err = transport.New(serverName, region, c); err != nil {
		return nil, nil, err
	}

	if peer, err = transport.Attach(peerName, region, c); err != nil {
		return nil, nil, err
	}

	p.pairs = append(p.pairs, [2]*transport.Context{server, peer})

	return server, peer, nil
}

func (b Builder) region(name string, size int) (*shm.Region, error) {
	if b.config.Transport.ShmDir == "" {
		return shm.New(name, size), nil
	}

	return shm.Open(filepath.Join(b.config.Transport.ShmDir, name), size)
}

func (b Builder) buildDomains(p *Platform) error {
	toDriver, fromBroker, err := b.connectTransport(p,
		p.name+"_driver", "Broker.Driver", "Driver.Broker")
	if err != nil {
		return err
	}

	p.driver = meson.MakeBuilder().
		WithRegisters(p.controller).
		WithTransport(fromBroker).
		WithChannels(DriverChannels).
		WithLogger(b.logger).
		Build("Driver")

	bb := broker.MakeBuilder().
		WithDriver(BrokerDriverCh, toDriver).
		WithLogger(b.logger)

	for i, cc := range b.config.Clients {
		toClient, fromBroker, err := b.connectTransport(p,
			p.name+"_"+cc.Name, "Broker."+cc.Name, cc.Name+".Broker")
		if err != nil {
			return err
		}

		bb = bb.WithClient(broker.ClientConfig{
			ID:        cc.ID,
			Channel:   ClientChannel(i),
			Transport: toClient,
		})

		c := client.MakeBuilder().
			WithID(cc.ID).
			WithBroker(ClientBrokerCh, fromBroker).
			WithLogger(b.logger).
			Build(cc.Name)

		p.clients = append(p.clients, c)
		p.clientByName[cc.Name] = c
	}

	p.broker = bb.Build("Broker")

	return nil
}

func (b Builder) connect(p *Platform) {
	p.broker.Bind(p.system.AddPD(p.broker))
	p.driver.Bind(p.system.AddPD(p.driver))

	for _, c := range p.clients {
		c.Bind(p.system.AddPD(c))
	}

	p.system.Connect(p.broker, BrokerDriverCh, p.driver, DriverChannels.Broker)

	for i, c := range p.clients {
		p.system.Connect(p.broker, ClientChannel(i), c, ClientBrokerCh)
	}

	done := p.system.AddIRQ(p.driver, DriverChannels.IRQ, "I2C.Done")
	hung := p.system.AddIRQ(p.driver, DriverChannels.Timeout, "I2C.Timeout")
	p.controller.ConnectIRQs(done, hung)
}

func (b Builder) trace(p *Platform) error {
	p.latency = tracing.NewAverageTimeTracer(
		p.engine, tracing.KindIs(tracing.KindRequest))
	p.busy = tracing.NewBusyTimeTracer(
		p.engine, tracing.KindIs(tracing.KindTransfer))
	p.steps = tracing.NewStepCountTracer(tracing.And(
		tracing.KindIs(tracing.KindForward, tracing.KindDeliver),
		tracing.WhereIs(p.broker.Name()),
	))

	for _, c := range p.clients {
		tracing.CollectTrace(c, p.latency)
	}
	tracing.CollectTrace(p.driver, p.busy)
	tracing.CollectTrace(p.broker, p.steps)
	p.engine.RegisterSimulationEndHandler(sim.SimulationEndFunc(
		p.busy.TerminateAllTasks))

	var perf analysis.MultiLogger

	if b.config.TraceDB != "" {
		p.recorder = datarecording.New(b.config.TraceDB)
		p.dbTracer = tracing.NewDBTracer(p.engine, p.recorder)

		tracing.CollectTrace(p.broker, p.dbTracer)
		tracing.CollectTrace(p.driver, p.dbTracer)
		for _, c := range p.clients {
			tracing.CollectTrace(c, p.dbTracer)
		}

		perf = append(perf, analysis.NewRecorderLogger(p.recorder))
	}

	if b.perfCSV != nil {
		csvLogger, err := analysis.NewCSVLogger(b.perfCSV)
		if err != nil {
			return fmt.Errorf("perf csv: %w", err)
		}

		p.perfCSV = csvLogger
		perf = append(perf, csvLogger)
	}

	if len(perf) == 0 {
		return nil
	}

	p.rings = analysis.MakeRingAnalyzerBuilder().
		WithPerfLogger(perf).
		WithTimeTeller(p.engine).
		Build()
	for _, pair := range p.pairs {
		p.rings.Watch(pair[0], pair[1])
	}

	p.signals = analysis.MakeSignalAnalyzerBuilder().
		WithPerfLogger(perf).
		WithTimeTeller(p.engine).
		Build()
	p.system.AcceptHook(p.signals)

	p.engine.RegisterSimulationEndHandler(sim.SimulationEndFunc(
		func(sim.VTimeInSec) {
			p.rings.Summarize()
			p.signals.Summarize()

			if p.dbTracer != nil {
				p.dbTracer.Terminate()
			}

			if p.perfCSV != nil {
				if err := p.perfCSV.Flush(); err != nil {
					b.logger.Printf("perf csv: %v", err)
				}
			}
		}))

	return nil
}

func (b Builder) startMonitor(p *Platform) {
	m := monitoring.NewMonitor().WithPortNumber(b.config.MonitorPort)

	m.RegisterEngine(p.engine)
	m.RegisterBroker(p.broker)
	m.RegisterComponent(p.driver)
	m.RegisterComponent(p.controller)
	for _, c := range p.clients {
		m.RegisterComponent(c)
	}

	for _, pair := range p.pairs {
		m.RegisterTransport(pair[0])
	}

	m.RegisterRegisters(p.controller.Name(), p.controller)

	p.monitor = m
	p.monitorURL = m.StartServer()
}

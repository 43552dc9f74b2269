// Package config describes a complete system: the transports, the controller,
// the targets on the bus and the clients with the operations they run.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/i2cmux/i2c"
	"github.com/sarchlab/i2cmux/transport"
)

// Environment variables that override the file.
const (
	EnvBus         = "I2C_BUS"
	EnvBufCount    = "I2C_BUF_COUNT"
	EnvTraceDB     = "I2C_TRACE_DB"
	EnvMonitorPort = "I2C_MONITOR_PORT"
)

// Device kinds.
const (
	DeviceEEPROM    = "eeprom"
	DeviceRegisters = "registers"
	DeviceHung      = "hung"
)

// Operation kinds.
const (
	OpClaim     = "claim"
	OpRelease   = "release"
	OpWrite     = "write"
	OpRead      = "read"
	OpWriteRead = "write_read"
)

// Transport sizes every transport in the system.
type Transport struct {
	BufSize  int    `yaml:"buf_size"`
	BufCount int    `yaml:"buf_count"`
	ShmDir   string `yaml:"shm_dir"`
}

// Controller configures the simulated I2C controller.
type Controller struct {
	// Freq is the SCL frequency in Hz.
	Freq float64 `yaml:"freq"`

	// Timeout is the bus timeout in seconds.
	Timeout float64 `yaml:"timeout"`
}

// Device is one target on the bus.
type Device struct {
	Kind string   `yaml:"kind"`
	Name string   `yaml:"name"`
	Addr i2c.Addr `yaml:"addr"`
	Size int      `yaml:"size"`
	Page int      `yaml:"page"`
	Init []byte   `yaml:"init"`
}

// Op is a step in a client scenario.
type Op struct {
	Op   string   `yaml:"op"`
	Addr i2c.Addr `yaml:"addr"`
	Data []byte   `yaml:"data"`
	Len  int      `yaml:"len"`
}

// Client is a client PD and the scenario it runs.
type Client struct {
	Name string       `yaml:"name"`
	ID   i2c.ClientID `yaml:"id"`
	Ops  []Op         `yaml:"ops"`
}

// System is the top-level description.
type System struct {
	Bus         int        `yaml:"bus"`
	Latency     float64    `yaml:"latency"`
	Transport   Transport  `yaml:"transport"`
	Controller  Controller `yaml:"controller"`
	Devices     []Device   `yaml:"devices"`
	Clients     []Client   `yaml:"clients"`
	TraceDB     string     `yaml:"trace_db"`
	MonitorPort int        `yaml:"monitor_port"`
}

// Default returns a system with one EEPROM and no clients.
func Default() System {
	c := transport.DefaultConfig()

	return System{
		Bus:     2,
		Latency: 1e-6,
		Transport: Transport{
			BufSize:  c.BufSize,
			BufCount: c.BufCount,
		},
		Controller: Controller{
			Freq:    400e3,
			Timeout: 10e-3,
		},
		Devices: []Device{
			{Kind: DeviceEEPROM, Name: "EEPROM", Addr: 0x50, Size: 256, Page: 8},
		},
	}
}

// TransportConfig returns the transport sizing.
func (s System) TransportConfig() transport.Config {
	return transport.Config{
		BufSize:  s.Transport.BufSize,
		BufCount: s.Transport.BufCount,
	}
}

// Parse decodes a YAML document over the defaults.
func Parse(data []byte) (System, error) {
	s := Default()

	if err := yaml.Unmarshal(data, &s); err != nil {
		return System{}, fmt.Errorf("config: %w", err)
	}

	return s, nil
}

// Load reads a YAML file, applies the environment overrides and validates
// the result. An empty path loads the defaults.
func Load(path string) (System, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return System{}, fmt.Errorf("config: %w", err)
		}

		if s, err = Parse(data); err != nil {
			return System{}, err
		}
	}

	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return System{}, err
	}

	if err := s.Validate(); err != nil {
		return System{}, err
	}

	return s, nil
}

// LoadDotEnv exports the variables of the given .env files, or of ./.env
// when none is given. A missing default file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}

	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from the environment.
func (s *System) ApplyEnv(lookup func(string) (string, bool)) error {
	ints := []struct {
		name string
		dst  *int
	}{
		{EnvBus, &s.Bus},
		{EnvBufCount, &s.Transport.BufCount},
		{EnvMonitorPort, &s.MonitorPort},
	}

	for _, v := range ints {
		str, ok := lookup(v.name)
		if !ok {
			continue
		}

		n, err := strconv.Atoi(str)
		if err != nil {
			return fmt.Errorf("config: %s: %w", v.name, err)
		}

		*v.dst = n
	}

	if str, ok := lookup(EnvTraceDB); ok {
		s.TraceDB = str
	}

	return nil
}

// Validate checks the description for inconsistencies.
func (s System) Validate() error {
	if err := s.TransportConfig().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if s.Controller.Freq <= 0 || s.Controller.Timeout <= 0 {
		return errors.New("config: controller freq and timeout must be positive")
	}

	if s.Latency < 0 {
		return errors.New("config: latency must not be negative")
	}

	if err := s.validateDevices(); err != nil {
		return err
	}

	return s.validateClients()
}

func (s System) validateDevices() error {
	names := make(map[string]bool)
	addrs := make(map[i2c.Addr]bool)

	for _, d := range s.Devices {
		if !d.Addr.Valid() {
			return fmt.Errorf("config: device %s: %w", d.Name, i2c.ErrInvalidAddress)
		}

		if names[d.Name] || addrs[d.Addr] {
			return fmt.Errorf("config: device %s at %s is not unique", d.Name, d.Addr)
		}

		names[d.Name] = true
		addrs[d.Addr] = true

		switch d.Kind {
		case DeviceEEPROM, DeviceRegisters:
			if d.Size <= 0 || len(d.Init) > d.Size {
				return fmt.Errorf("config: device %s: bad size %d", d.Name, d.Size)
			}
		case DeviceHung:
		default:
			return fmt.Errorf("config: device %s: unknown kind %q", d.Name, d.Kind)
		}
	}

	return nil
}

func (s System) validateClients() error {
	names := make(map[string]bool)
	ids := make(map[i2c.ClientID]bool)

	for _, c := range s.Clients {
		if c.Name == "" || names[c.Name] || ids[c.ID] {
			return fmt.Errorf("config: client %q (id %d) is not unique", c.Name, c.ID)
		}

		names[c.Name] = true
		ids[c.ID] = true

		for i, op := range c.Ops {
			if err := op.validate(); err != nil {
				return fmt.Errorf("config: client %s op %d: %w", c.Name, i, err)
			}
		}
	}

	return nil
}

func (op Op) validate() error {
	if !op.Addr.Valid() {
		return i2c.ErrInvalidAddress
	}

	switch op.Op {
	case OpClaim, OpRelease:
	case OpWrite:
		if len(op.Data) == 0 {
			return i2c.ErrEmptyPayload
		}
	case OpRead:
		if op.Len <= 0 {
			return i2c.ErrEmptyPayload
		}
	case OpWriteRead:
		if len(op.Data) == 0 || op.Len <= 0 {
			return i2c.ErrEmptyPayload
		}
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}

	return nil
}

package meson

import (
	"fmt"
	"log"

	"github.com/sarchlab/i2cmux/mmio"
)

// NumBuses is the number of EE-domain I2C masters.
const NumBuses = 4

// Pin functions and pad fields of the buses with an external header.
const (
	pinFuncM2 = 1
	pinFuncM3 = 2

	driveStrength = 3 // 3 mA

	ds2bX17Shift = 2
	ds2bX18Shift = 4
	ds5aA14Shift = 28
	ds5aA15Shift = 30

	bias2X17 = 1 << 17
	bias2X18 = 1 << 18
	bias5A14 = 1 << 14
	bias5A15 = 1 << 15
)

// Pads groups the register banks touched by Setup.
type Pads struct {
	GPIO  mmio.Bank
	Clock mmio.Bank
}

// Setup routes the pins of bus, ungates its clock, and programs the
// controller for fixed 400 kHz operation. Every write is read back. A
// mismatch is logged but does not stop the setup.
func Setup(bus int, regs mmio.Bank, pads Pads, logger *log.Logger) error {
	if bus < 0 || bus >= NumBuses {
		return fmt.Errorf("meson: bus %d out of range", bus)
	}

	if logger == nil {
		logger = log.Default()
	}

	s := setup{logger: logger}

	switch bus {
	case 2:
		s.pinMux(pads.GPIO, RegPinMux5, pinFuncM2<<4|pinFuncM2<<8, 0xFF<<4)
		s.drive(pads.GPIO, RegDS2B, ds2bX17Shift, ds2bX18Shift)
		s.noBias(pads.GPIO, RegBias2, bias2X17|bias2X18)
	case 3:
		s.pinMux(pads.GPIO, RegPinMuxE, pinFuncM3<<24|pinFuncM3<<28, 0xFF<<24)
		s.drive(pads.GPIO, RegDS5A, ds5aA14Shift, ds5aA15Shift)
		s.noBias(pads.GPIO, RegBias5, bias5A14|bias5A15)
	default:
		logger.Printf("meson: bus %d has no pin-mux setting, skipping pads", bus)
	}

	mmio.Set(pads.Clock, RegClk81Gate, Clk81I2CBit)
	s.check(pads.Clock, RegClk81Gate, Clk81I2CBit, Clk81I2CBit, "clk81 gate")

	mmio.Clear(regs, RegCtl, CtlManual|CtlAckIgnore)
	mmio.Set(regs, RegCtl, CtlCntlJIC)
	mmio.StoreBits(regs, RegCtl, CtlClkDivMask, ClkDivHigh<<CtlClkDivShift)
	s.check(regs, RegCtl,
		CtlManual|CtlAckIgnore|CtlCntlJIC|CtlClkDivMask,
		CtlCntlJIC|ClkDivHigh<<CtlClkDivShift,
		"control register")

	mmio.Clear(regs, RegAddr, AddrSCLFilterMask|AddrSDAFilterMask)
	mmio.StoreBits(regs, RegAddr, AddrSCLDelayMask, ClkDivLow<<AddrSCLDelayShift)
	mmio.Set(regs, RegAddr, AddrSCLDelayEnable)
	s.check(regs, RegAddr,
		AddrSCLFilterMask|AddrSDAFilterMask|AddrSCLDelayMask|AddrSCLDelayEnable,
		ClkDivLow<<AddrSCLDelayShift|AddrSCLDelayEnable,
		"address register")

	return nil
}

type setup struct {
	logger *log.Logger
}

func (s setup) check(b mmio.Bank, r mmio.Reg, mask, want uint32, what string) {
	if got := b.Load(r) & mask; got != want {
		s.logger.Printf("meson: failed to set %s: got 0x%08x, want 0x%08x",
			what, got, want)
	}
}

func (s setup) pinMux(gpio mmio.Bank, r mmio.Reg, funcs, mask uint32) {
	mmio.StoreBits(gpio, r, mask, funcs)
	s.check(gpio, r, mask, funcs, "pin-mux")
}

func (s setup) drive(gpio mmio.Bank, r mmio.Reg, sdaShift, sclShift uint) {
	mask := uint32(0x3)<<sdaShift | uint32(0x3)<<sclShift
	ds := uint32(driveStrength)<<sdaShift | uint32(driveStrength)<<sclShift

	mmio.StoreBits(gpio, r, mask, ds)
	s.check(gpio, r, mask, ds, "drive strength")
}

func (s setup) noBias(gpio mmio.Bank, r mmio.Reg, pins uint32) {
	mmio.Clear(gpio, r, pins)
	s.check(gpio, r, pins, 0, "pad bias")
}

// Package meson implements the driver for the I2C master controllers of the
// Amlogic Meson SoC found on the ODROID-C4.
//
// The controller executes a list of up to 16 four-bit tokens. The driver
// translates the logical token stream of a request into batches that fit the
// token list and the eight-byte write and read data registers, starts the
// list processor, and collects the result when the completion interrupt
// arrives.
package meson

import (
	"github.com/sarchlab/i2cmux/mmio"
	"github.com/sarchlab/i2cmux/token"
)

// Controller registers.
const (
	RegCtl        mmio.Reg = 0x00
	RegAddr       mmio.Reg = 0x04
	RegTokenList0 mmio.Reg = 0x08
	RegTokenList1 mmio.Reg = 0x0C
	RegWData0     mmio.Reg = 0x10
	RegWData1     mmio.Reg = 0x14
	RegRData0     mmio.Reg = 0x18
	RegRData1     mmio.Reg = 0x1C
)

// RegisterMap names the controller registers.
var RegisterMap = mmio.Map{
	RegCtl:        "ctl",
	RegAddr:       "addr",
	RegTokenList0: "tk_list0",
	RegTokenList1: "tk_list1",
	RegWData0:     "wdata0",
	RegWData1:     "wdata1",
	RegRData0:     "rdata0",
	RegRData1:     "rdata1",
}

// Control register fields.
const (
	CtlStart     uint32 = 1 << 0
	CtlAckIgnore uint32 = 1 << 1
	CtlStatus    uint32 = 1 << 2
	CtlError     uint32 = 1 << 3
	CtlManual    uint32 = 1 << 22
	CtlCntlJIC   uint32 = 1 << 31

	CtlCurrTokenShift = 4
	CtlCurrTokenMask  = 0xF << CtlCurrTokenShift
	CtlRdCountShift   = 8
	CtlRdCountMask    = 0xF << CtlRdCountShift
	CtlClkDivShift    = 12
	CtlClkDivMask     = 0x3FF << CtlClkDivShift
)

// Address register fields.
const (
	AddrTargetShift    = 1
	AddrTargetMask     = 0x7F << AddrTargetShift
	AddrSDAFilterShift = 8
	AddrSDAFilterMask  = 0x7 << AddrSDAFilterShift
	AddrSCLFilterShift = 11
	AddrSCLFilterMask  = 0x7 << AddrSCLFilterShift
	AddrSCLDelayShift  = 16
	AddrSCLDelayMask   = 0xFFF << AddrSCLDelayShift

	AddrSCLDelayEnable uint32 = 1 << 28
)

// Fixed 400 kHz clock setting for clk81 at 166.67 MHz.
const (
	ClkDivHigh = 154
	ClkDivLow  = 116
)

// Hardware token opcodes.
const (
	OpEnd      uint8 = 0x0
	OpStart    uint8 = 0x1
	OpAddrW    uint8 = 0x2
	OpAddrR    uint8 = 0x3
	OpData     uint8 = 0x4
	OpDataLast uint8 = 0x5
	OpStop     uint8 = 0x6
)

// Geometry is the size of the token list engine.
var Geometry = token.Geometry{
	TokenSlots: 16,
	WriteSlots: 8,
	ReadSlots:  8,
}

// OpTable translates logical tokens to controller opcodes.
var OpTable = token.Table{
	token.End:     OpEnd,
	token.Start:   OpStart,
	token.AddrW:   OpAddrW,
	token.AddrR:   OpAddrR,
	token.Data:    OpData,
	token.DataEnd: OpDataLast,
	token.Stop:    OpStop,
}

// GPIO registers used for pin-mux, relative to the periphs GPIO frame.
const (
	RegPinMux5 mmio.Reg = 0xB5 << 2
	RegPinMuxE mmio.Reg = 0xBE << 2
	RegDS2B    mmio.Reg = 0xD3 << 2
	RegDS5A    mmio.Reg = 0xD6 << 2
	RegBias2   mmio.Reg = 0x4A << 2
	RegBias5   mmio.Reg = 0x4D << 2
)

// GPIORegisterMap names the GPIO registers the driver may touch.
var GPIORegisterMap = mmio.Map{
	RegPinMux5: "periphs_pin_mux_5",
	RegPinMuxE: "periphs_pin_mux_e",
	RegDS2B:    "pad_ds_reg2b",
	RegDS5A:    "pad_ds_reg5a",
	RegBias2:   "pad_pull_up_en_reg2",
	RegBias5:   "pad_pull_up_en_reg5",
}

// Clock registers, relative to the HHI frame.
const (
	RegClk81Gate mmio.Reg = 0x50 << 2

	Clk81I2CBit uint32 = 1 << 9
)

// ClockRegisterMap names the clock registers the driver may touch.
var ClockRegisterMap = mmio.Map{
	RegClk81Gate: "hhi_gclk_mpeg0",
}

package meson

import (
	"fmt"
	"strings"

	"github.com/sarchlab/i2cmux/mmio"
)

// Dump renders the decoded state of the controller registers.
func Dump(regs mmio.Bank) string {
	var b strings.Builder

	ctl := regs.Load(RegCtl)
	fmt.Fprintf(&b, "ctl 0x%08x\n", ctl)
	fmt.Fprintf(&b, "\tstart %d status %d error %d\n",
		mmio.Field(ctl, 0, 1), mmio.Field(ctl, 2, 1), mmio.Field(ctl, 3, 1))
	fmt.Fprintf(&b, "\tcurrent token %d read count %d clkdiv %d\n",
		mmio.Field(ctl, CtlCurrTokenShift, 4),
		mmio.Field(ctl, CtlRdCountShift, 4),
		mmio.Field(ctl, CtlClkDivShift, 10))

	addr := regs.Load(RegAddr)
	fmt.Fprintf(&b, "addr 0x%08x\n", addr)
	fmt.Fprintf(&b, "\ttarget 0x%02x scl delay %d enabled %d\n",
		mmio.Field(addr, AddrTargetShift, 7),
		mmio.Field(addr, AddrSCLDelayShift, 12),
		mmio.Field(addr, 28, 1))

	for i, r := range []mmio.Reg{RegTokenList0, RegTokenList1} {
		v := regs.Load(r)
		fmt.Fprintf(&b, "tk_list%d", i)
		for slot := uint(0); slot < 8; slot++ {
			fmt.Fprintf(&b, " %x", mmio.Field(v, 4*slot, 4))
		}
		b.WriteByte('\n')
	}

	dataRegs := []struct {
		name string
		reg  mmio.Reg
	}{
		{"wdata0", RegWData0},
		{"wdata1", RegWData1},
		{"rdata0", RegRData0},
		{"rdata1", RegRData1},
	}

	for _, d := range dataRegs {
		v := regs.Load(d.reg)
		b.WriteString(d.name)
		for i := uint(0); i < 4; i++ {
			fmt.Fprintf(&b, " %02x", mmio.Field(v, 8*i, 8))
		}
		b.WriteByte('\n')
	}

	return b.String()
}

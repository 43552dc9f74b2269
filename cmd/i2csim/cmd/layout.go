package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sarchlab/i2cmux/config"
	"github.com/sarchlab/i2cmux/microkit"
	"github.com/sarchlab/i2cmux/platform"
	"github.com/sarchlab/i2cmux/transport"
)

func newLayoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layout",
		Short: "Print the shared regions and channels of a system.",
		Long: `layout prints, for every transport, the offsets of its rings and ` +
			`buffer pool, and the channel each PD uses. Both ends of a ` +
			`transport must agree on these values.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			printLayout(cmd.OutOrStdout(), s)

			return nil
		},
	}
}

func printLayout(w io.Writer, s config.System) {
	c := s.TransportConfig()
	l := c.Layout()

	fmt.Fprintf(w, "buffers: %d x %d bytes per direction, max request %d bytes\n",
		c.BufCount, c.BufSize, c.MaxRequest())
	fmt.Fprintf(w, "region: %#x bytes\n", l.Size)

	parts := []struct {
		name   string
		offset int
		size   int
	}{
		{"req_free", l.ReqFree, l.SlabSize},
		{"req_used", l.ReqUsed, l.SlabSize},
		{"ret_free", l.RetFree, l.SlabSize},
		{"ret_used", l.RetUsed, l.SlabSize},
		{"pool", l.Pool, l.PoolSize},
	}
	for _, p := range parts {
		fmt.Fprintf(w, "  %-8s %#08x %#x\n", p.name, p.offset, p.size)
	}

	printTransport(w, "Driver", platform.BrokerDriverCh, platform.DriverChannels.Broker, c)
	for i, cc := range s.Clients {
		printTransport(w, fmt.Sprintf("%s (id %d)", cc.Name, cc.ID),
			platform.ClientChannel(i), platform.ClientBrokerCh, c)
	}

	fmt.Fprintf(w, "driver irq channels: done %d, timeout %d\n",
		platform.DriverChannels.IRQ, platform.DriverChannels.Timeout)
}

func printTransport(
	w io.Writer,
	name string,
	brokerCh, peerCh microkit.Channel,
	c transport.Config,
) {
	fmt.Fprintf(w, "transport %s: broker channel %v, peer channel %v, %#x bytes\n",
		name, brokerCh, peerCh, transport.RegionSize(c))
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/i2cmux/platform"
	"github.com/sarchlab/i2cmux/sim"
)

func newRunCmd() *cobra.Command {
	run := &cobra.Command{
		Use:   "run",
		Short: "Run the clients' operations and print the results.",
		Args:  cobra.NoArgs,
		RunE:  runSystem,
	}

	run.Flags().String("trace", "", "record traces into this database")
	run.Flags().String("perf-csv", "",
		"write ring occupancy and signal counts into this CSV file")
	run.Flags().Bool("monitor", false, "serve the monitor while running")
	run.Flags().Bool("open", false, "open the monitor in a browser")
	run.Flags().Bool("wait", false, "keep the monitor up until interrupted")
	run.Flags().Bool("quiet", false, "do not log from the PDs")
	run.Flags().BoolP("verbose", "v", false, "log every event and kernel signal")
	run.Flags().Bool("unique-ids", false,
		"use globally unique task ids instead of sequential ones")

	return run
}

func runSystem(cmd *cobra.Command, _ []string) error {
	s, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if trace, _ := cmd.Flags().GetString("trace"); trace != "" {
		s.TraceDB = trace
	}

	logger := log.New(cmd.ErrOrStderr(), "", 0)
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		logger = log.New(io.Discard, "", 0)
	}

	if unique, _ := cmd.Flags().GetBool("unique-ids"); unique {
		sim.UseParallelIDGenerator()
	}

	monitorOn, _ := cmd.Flags().GetBool("monitor")
	openBrowser, _ := cmd.Flags().GetBool("open")
	wait, _ := cmd.Flags().GetBool("wait")

	b := platform.MakeBuilder().WithConfig(s).WithLogger(logger)
	if monitorOn || openBrowser {
		b = b.WithMonitor()
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		b = b.WithVerbose()
	}

	if path, _ := cmd.Flags().GetString("perf-csv"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()

		b = b.WithPerfCSV(f)
	}

	p, err := b.Build("I2CSim")
	if err != nil {
		return err
	}
	defer p.Close()

	if openBrowser {
		if err := browser.OpenURL(p.MonitorURL()); err != nil {
			logger.Printf("cannot open browser: %v", err)
		}
	}

	outcomes, err := p.RunScenario()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, o := range outcomes {
		fmt.Fprintln(out, o)
	}

	printReport(out, p.Report())

	if wait && p.Monitor() != nil {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		fmt.Fprintf(out, "monitor at %s, press Ctrl-C to exit\n", p.MonitorURL())
		<-ctx.Done()
	}

	return nil
}

func printReport(w io.Writer, r platform.Report) {
	fmt.Fprintf(w, "time %.9fs\n", r.Now)
	fmt.Fprintf(w, "requests %d, average latency %.9fs, max latency %.9fs\n",
		r.Requests, r.AverageLatency, r.MaxLatency)
	fmt.Fprintf(w, "bus busy %.9fs\n", r.BusBusy)
	fmt.Fprintf(w, "broker forwarded %d, not owned %d, busy %d, malformed %d, delivered %d\n",
		r.Broker.Forwarded, r.Broker.NotOwned, r.Broker.DriverBusy,
		r.Broker.Malformed, r.Broker.Completed)
	fmt.Fprintf(w, "driver batches %d, nacks %d, timeouts %d\n",
		r.Driver.Batches, r.Driver.Nacks, r.Driver.Timeouts)
}

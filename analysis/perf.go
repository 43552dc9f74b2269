// Package analysis turns hook reports into periodic performance entries.
package analysis

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/sarchlab/i2cmux/datarecording"
	"github.com/sarchlab/i2cmux/sim"
)

// PerfTable is the table that RecorderLogger writes into.
const PerfTable = "perf"

// Entry is a single measurement over a time window.
type Entry struct {
	Start       sim.VTimeInSec
	End         sim.VTimeInSec
	Where       string
	WhereRemote string
	What        string
	EntryType   string
	Value       float64
	Unit        string
}

// PerfLogger is the interface that provide the service that can record
// performance data entries.
type PerfLogger interface {
	AddDataEntry(entry Entry)
}

// MultiLogger hands every entry to each of its loggers.
type MultiLogger []PerfLogger

// AddDataEntry passes the entry on.
func (m MultiLogger) AddDataEntry(entry Entry) {
	for _, l := range m {
		l.AddDataEntry(entry)
	}
}

// RecorderLogger stores entries through a DataRecorder.
type RecorderLogger struct {
	recorder datarecording.DataRecorder
}

// NewRecorderLogger creates the perf table in recorder.
func NewRecorderLogger(recorder datarecording.DataRecorder) *RecorderLogger {
	recorder.CreateTable(PerfTable, Entry{})

	return &RecorderLogger{recorder: recorder}
}

// AddDataEntry buffers the entry in the recorder.
func (l *RecorderLogger) AddDataEntry(entry Entry) {
	l.recorder.InsertData(PerfTable, entry)
}

// CSVLogger writes entries as CSV rows.
type CSVLogger struct {
	w *csv.Writer
}

// NewCSVLogger writes the header row into w.
func NewCSVLogger(w io.Writer) (*CSVLogger, error) {
	l := &CSVLogger{w: csv.NewWriter(w)}

	header := []string{
		"Start", "End", "Where", "WhereRemote", "What", "EntryType", "Value", "Unit",
	}
	if err := l.w.Write(header); err != nil {
		return nil, err
	}

	return l, nil
}

// AddDataEntry writes a row.
func (l *CSVLogger) AddDataEntry(entry Entry) {
	err := l.w.Write([]string{
		fmt.Sprintf("%.10f", entry.Start),
		fmt.Sprintf("%.10f", entry.End),
		entry.Where,
		entry.WhereRemote,
		entry.What,
		entry.EntryType,
		fmt.Sprintf("%.10f", entry.Value),
		entry.Unit,
	})
	if err != nil {
		panic(err)
	}
}

// Flush writes buffered rows.
func (l *CSVLogger) Flush() error {
	l.w.Flush()
	return l.w.Error()
}

func periodStartTime(t, period sim.VTimeInSec) sim.VTimeInSec {
	if period <= 0 {
		return 0
	}

	return sim.VTimeInSec(int64(t/period)) * period
}

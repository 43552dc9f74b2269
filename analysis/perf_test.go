package analysis

import (
	"bytes"
	"context"
	"path/filepath"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/i2cmux/datarecording"
)

var _ = ginkgo.Describe("Perf loggers", func() {
	entry := Entry{
		Start: 0, End: 1,
		Where: "Broker.Client.ReqUsed",
		What:  "Occupancy", EntryType: "Ring",
		Value: 0.5, Unit: "Buffer",
	}

	ginkgo.It("should write CSV rows", func() {
		buf := new(bytes.Buffer)
		l, err := NewCSVLogger(buf)
		Expect(err).NotTo(HaveOccurred())

		l.AddDataEntry(entry)
		Expect(l.Flush()).To(Succeed())

		Expect(buf.String()).To(Equal(
			"Start,End,Where,WhereRemote,What,EntryType,Value,Unit\n" +
				"0.0000000000,1.0000000000,Broker.Client.ReqUsed,,Occupancy,Ring,0.5000000000,Buffer\n"))
	})

	ginkgo.It("should hand entries to every logger", func() {
		a, b := new(bytes.Buffer), new(bytes.Buffer)
		la, err := NewCSVLogger(a)
		Expect(err).NotTo(HaveOccurred())
		lb, err := NewCSVLogger(b)
		Expect(err).NotTo(HaveOccurred())

		MultiLogger{la, lb}.AddDataEntry(entry)
		Expect(la.Flush()).To(Succeed())
		Expect(lb.Flush()).To(Succeed())

		Expect(a.String()).To(ContainSubstring("Occupancy,Ring"))
		Expect(a.String()).To(Equal(b.String()))
	})

	ginkgo.It("should store entries in the recorder", func() {
		path := filepath.Join(ginkgo.GinkgoT().TempDir(), "perf")
		recorder := datarecording.New(path)

		l := NewRecorderLogger(recorder)
		l.AddDataEntry(entry)
		recorder.Flush()
		Expect(recorder.Close()).To(Succeed())

		reader, err := datarecording.NewReader(path + ".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		reader.MapTable(PerfTable, Entry{})
		rows, total, err := reader.Query(
			context.Background(), PerfTable, datarecording.QueryParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(1))
		Expect(*rows[0].(*Entry)).To(Equal(entry))
	})
})

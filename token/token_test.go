package token

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/i2cmux/i2c"
)

var _ = Describe("Compose", func() {
	var dst []byte

	BeforeEach(func() {
		dst = make([]byte, 510)
	})

	It("should compose a write", func() {
		n, err := Compose(dst, Write, []byte{0x12, 0x34})

		Expect(err).NotTo(HaveOccurred())
		Expect(dst[:n]).To(Equal([]byte{
			byte(AddrW), byte(Data), 0x12, byte(DataEnd), 0x34,
		}))
		Expect(n).To(Equal(Len(Write, 2)))
	})

	It("should compose a read", func() {
		n, err := Compose(dst, Read, make([]byte, 3))

		Expect(err).NotTo(HaveOccurred())
		Expect(dst[:n]).To(Equal([]byte{
			byte(AddrR), byte(Data), byte(Data), byte(DataEnd),
		}))
	})

	It("should append END for continued modes", func() {
		n, err := Compose(dst, WriteContinued, []byte{0xAA})

		Expect(err).NotTo(HaveOccurred())
		Expect(dst[:n]).To(Equal([]byte{
			byte(AddrW), byte(DataEnd), 0xAA, byte(End),
		}))

		n, err = Compose(dst, ReadContinued, []byte{0})
		Expect(err).NotTo(HaveOccurred())
		Expect(dst[:n]).To(Equal([]byte{byte(AddrR), byte(DataEnd), byte(End)}))
	})

	It("should reject empty payloads", func() {
		_, err := Compose(dst, Write, nil)

		Expect(err).To(MatchError(i2c.ErrEmptyPayload))
	})

	It("should reject payloads that do not fit", func() {
		Expect(MaxPayload(Read, 510)).To(Equal(508))
		Expect(MaxPayload(Write, 510)).To(Equal(254))

		_, err := Compose(dst, Write, make([]byte, 255))
		Expect(err).To(MatchError(i2c.ErrOversizedRequest))

		_, err = Compose(dst, Read, make([]byte, 508))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should report no room for tiny buffers", func() {
		Expect(MaxPayload(Write, 2)).To(Equal(0))
	})
})

var _ = Describe("Decode", func() {
	It("should round trip a composed write", func() {
		dst := make([]byte, 16)
		n, _ := Compose(dst, Write, []byte{0x12, 0x34})

		ops, err := Decode(dst[:n])

		Expect(err).NotTo(HaveOccurred())
		Expect(ops).To(Equal([]Op{
			{Token: AddrW},
			{Token: Data, Byte: 0x12, HasByte: true},
			{Token: DataEnd, Byte: 0x34, HasByte: true},
		}))
	})

	It("should not read bytes after read tokens", func() {
		ops, err := Decode([]byte{byte(AddrR), byte(Data), byte(DataEnd)})

		Expect(err).NotTo(HaveOccurred())
		Expect(ops).To(HaveLen(3))
		Expect(ops[1].HasByte).To(BeFalse())
	})

	It("should follow repeated starts", func() {
		stream := []byte{
			byte(AddrW), byte(DataEnd), 0x10,
			byte(Start), byte(AddrR), byte(DataEnd),
			byte(Stop),
		}

		ops, err := Decode(stream)

		Expect(err).NotTo(HaveOccurred())
		Expect(ops).To(HaveLen(6))
		Expect(ops[4]).To(Equal(Op{Token: DataEnd}))
	})

	It("should stop at END", func() {
		ops, err := Decode([]byte{byte(AddrR), byte(DataEnd), byte(End), 0xFF})

		Expect(err).NotTo(HaveOccurred())
		Expect(ops).To(HaveLen(3))
	})

	It("should reject unknown tokens", func() {
		_, err := Decode([]byte{byte(AddrW), 0x9})

		Expect(err).To(MatchError(i2c.ErrInvalidToken))
	})

	It("should reject data before an address", func() {
		err := Validate([]byte{byte(Data), 0x00})

		Expect(err).To(MatchError(i2c.ErrInvalidToken))
	})

	It("should reject a write token without its byte", func() {
		err := Validate([]byte{byte(AddrW), byte(DataEnd)})

		Expect(err).To(MatchError(i2c.ErrInvalidToken))
	})
})

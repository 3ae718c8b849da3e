package protocol_test

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/samaio/protocol"
)

var _ = Describe("Parsing", func() {
	Describe("ParseReply()", func() {
		It("returns an error if there are less than two tokens", func() {
			_, err := protocol.ParseReply("")
			Expect(errors.Is(err, protocol.ErrReplyTooShort)).To(BeTrue())

			_, err = protocol.ParseReply("   HELLO   ")
			Expect(errors.Is(err, protocol.ErrReplyTooShort)).To(BeTrue())
		})

		It("puts the two leading tokens in the first field", func() {
			reply, err := protocol.ParseReply("HELLO REPLY")
			Expect(err).To(Succeed())
			Expect(reply).To(Equal(protocol.Reply{{Name: "HELLO", Value: "REPLY"}}))
		})

		It("produces one field per KEY=VALUE token, in order", func() {
			reply, err := protocol.ParseReply("HELLO REPLY RESULT=OK VERSION=3.0")
			Expect(err).To(Succeed())
			Expect(reply).To(Equal(protocol.Reply{
				{Name: "HELLO", Value: "REPLY"},
				{Name: "RESULT", Value: "OK"},
				{Name: "VERSION", Value: "3.0"},
			}))
		})

		It("round trips any number of well formed fields", func() {
			for n := 0; n < 20; n++ {
				parts := []string{"SESSION", "STATUS"}
				for i := 0; i < n; i++ {
					parts = append(parts, "K"+strings.Repeat("x", i)+"=v="+strings.Repeat("y", i))
				}

				reply, err := protocol.ParseReply(strings.Join(parts, " "))
				Expect(err).To(Succeed())
				Expect(reply).To(HaveLen(n + 1))
				Expect(reply[0]).To(Equal(protocol.Field{Name: "SESSION", Value: "STATUS"}))

				for i := 0; i < n; i++ {
					Expect(reply[i+1].Name).To(Equal("K" + strings.Repeat("x", i)))
					Expect(reply[i+1].Value).To(Equal("v=" + strings.Repeat("y", i)))
				}
			}
		})

		It("stores tokens without '=' as bare keys", func() {
			reply, err := protocol.ParseReply("STREAM STATUS SILENT RESULT=OK")
			Expect(err).To(Succeed())
			Expect(reply[1]).To(Equal(protocol.Field{Name: "SILENT"}))
			Expect(reply[2]).To(Equal(protocol.Field{Name: "RESULT", Value: "OK"}))
		})

		It("collapses runs of whitespace and tolerates a trailing CR", func() {
			reply, err := protocol.ParseReply("  NAMING \t REPLY   RESULT=OK  \r")
			Expect(err).To(Succeed())
			Expect(reply).To(HaveLen(2))
			Expect(reply.Result()).To(Equal("OK"))
		})

		Describe("quoting", func() {
			It("removes quotes and consumes escapes", func() {
				reply, err := protocol.ParseReply(`A B "a b\"c"`)
				Expect(err).To(Succeed())
				Expect(reply[1]).To(Equal(protocol.Field{Name: `a b"c`}))
			})

			It("keeps whitespace inside quoted values", func() {
				reply, err := protocol.ParseReply(`SESSION STATUS RESULT=I2P_ERROR MESSAGE="no tunnels yet"`)
				Expect(err).To(Succeed())
				Expect(valueOf(reply, "MESSAGE")).To(Equal("no tunnels yet"))
			})

			It("runs an unterminated quote to the end of the line", func() {
				reply, err := protocol.ParseReply(`X Y MESSAGE="not closed  here`)
				Expect(err).To(Succeed())
				Expect(reply).To(HaveLen(2))
				Expect(valueOf(reply, "MESSAGE")).To(Equal("not closed  here"))
			})

			It("does not split on a quoted '='", func() {
				reply, err := protocol.ParseReply(`X Y "a=b"`)
				Expect(err).To(Succeed())
				Expect(reply[1]).To(Equal(protocol.Field{Name: "a=b"}))

				reply, err = protocol.ParseReply(`X Y K="a=b"`)
				Expect(err).To(Succeed())
				Expect(reply[1]).To(Equal(protocol.Field{Name: "K", Value: "a=b"}))
			})

			It("allows quoting in the leading tokens", func() {
				reply, err := protocol.ParseReply(`"two words" REPLY`)
				Expect(err).To(Succeed())
				Expect(reply.Verb()).To(Equal("two words"))
				Expect(reply.Action()).To(Equal("REPLY"))
			})
		})
	})

	Describe("Reply.Matches()", func() {
		var reply protocol.Reply

		BeforeEach(func() {
			var err error
			reply, err = protocol.ParseReply("HELLO REPLY RESULT=OK VERSION=3.0")
			Expect(err).To(Succeed())
		})

		It("matches the expected verb, action and field", func() {
			Expect(reply.Matches("HELLO", "REPLY", "RESULT", "OK")).To(BeTrue())
		})

		It("does not match a different field value", func() {
			Expect(reply.Matches("HELLO", "REPLY", "RESULT", "FAIL")).To(BeFalse())
		})

		It("treats empty arguments as wildcards", func() {
			Expect(reply.Matches("", "", "", "")).To(BeTrue())
			Expect(reply.Matches("HELLO", "", "VERSION", "")).To(BeTrue())
			Expect(reply.Matches("", "REPLY", "", "")).To(BeTrue())
		})

		It("does not match a missing field", func() {
			Expect(reply.Matches("HELLO", "REPLY", "MESSAGE", "")).To(BeFalse())
		})

		It("does not match a different verb or action", func() {
			Expect(reply.Matches("SESSION", "REPLY", "", "")).To(BeFalse())
			Expect(reply.Matches("HELLO", "STATUS", "", "")).To(BeFalse())
		})

		It("never matches an empty reply", func() {
			Expect(protocol.Reply(nil).Matches("", "", "", "")).To(BeFalse())
		})
	})

	Describe("Reply.ErrorReason()", func() {
		It("returns the RESULT of a negative reply", func() {
			reply, _ := protocol.ParseReply("NAMING REPLY RESULT=KEY_NOT_FOUND NAME=foo.i2p")
			Expect(reply.ErrorReason(protocol.ResultI2PError)).To(Equal("KEY_NOT_FOUND"))
		})

		It("falls back when RESULT is OK or missing", func() {
			reply, _ := protocol.ParseReply("NAMING REPLY RESULT=OK")
			Expect(reply.ErrorReason(protocol.ResultI2PError)).To(Equal("I2P_ERROR"))

			reply, _ = protocol.ParseReply("DEST REPLY")
			Expect(reply.ErrorReason(protocol.ResultI2PError)).To(Equal("I2P_ERROR"))
		})
	})

	Describe("ParseDatagramHeader()", func() {
		dest := strings.Repeat("A", protocol.PublicKeySize)

		It("parses a DATAGRAM header", func() {
			reply, err := protocol.ParseReply("DATAGRAM RECEIVED DESTINATION=" + dest + " SIZE=12")
			Expect(err).To(Succeed())

			hdr, err := protocol.ParseDatagramHeader(reply, protocol.StyleDatagram)
			Expect(err).To(Succeed())
			Expect(hdr.Size).To(Equal(12))
			Expect(hdr.Destination).To(Equal(dest))
		})

		It("parses a RAW header without destination", func() {
			reply, _ := protocol.ParseReply("RAW RECEIVED SIZE=3")
			hdr, err := protocol.ParseDatagramHeader(reply, protocol.StyleRaw)
			Expect(err).To(Succeed())
			Expect(hdr.Size).To(Equal(3))
		})

		It("rejects sizes that are not numbers or too big", func() {
			reply, _ := protocol.ParseReply("RAW RECEIVED SIZE=lots")
			_, err := protocol.ParseDatagramHeader(reply, protocol.StyleRaw)
			Expect(errors.Is(err, protocol.ErrMalformedDatagram)).To(BeTrue())

			reply, _ = protocol.ParseReply("RAW RECEIVED SIZE=99999999")
			_, err = protocol.ParseDatagramHeader(reply, protocol.StyleRaw)
			Expect(errors.Is(err, protocol.ErrMalformedDatagram)).To(BeTrue())
		})

		It("rejects a header for another style", func() {
			reply, _ := protocol.ParseReply("RAW RECEIVED SIZE=3")
			_, err := protocol.ParseDatagramHeader(reply, protocol.StyleDatagram)
			Expect(errors.Is(err, protocol.ErrUnexpectedReply)).To(BeTrue())
		})
	})

	Describe("ValidKey()", func() {
		It("checks length and alphabet", func() {
			Expect(protocol.ValidKey(strings.Repeat("a~-9", 129), protocol.PublicKeySize)).To(BeTrue())
			Expect(protocol.ValidKey(strings.Repeat("a", 515), protocol.PublicKeySize)).To(BeFalse())
			Expect(protocol.ValidKey(strings.Repeat("a", 515)+"/", protocol.PublicKeySize)).To(BeFalse())
		})
	})

	Describe("GenChannelName()", func() {
		It("stays within bounds and alphabet", func() {
			for i := 0; i < 50; i++ {
				name := protocol.GenChannelName(protocol.ChannelMinLen, protocol.ChannelMaxLen)
				Expect(len(name)).To(BeNumerically(">=", protocol.ChannelMinLen))
				Expect(len(name)).To(BeNumerically("<=", protocol.ChannelMaxLen))
				Expect(name).To(MatchRegexp(`^[0-9A-Za-z_-]+$`))
			}
		})
	})

	Describe("RemoveTrailingCR()", func() {
		It("does nothing if the data does not end in CR", func() {
			data := []byte("I am awesome data")
			Expect(protocol.RemoveTrailingCR(data)).To(Equal(data))
		})

		It("removes the trailling CR", func() {
			Expect(protocol.RemoveTrailingCR([]byte("data\r"))).To(Equal([]byte("data")))
		})

		It("copes with empty input", func() {
			Expect(protocol.RemoveTrailingCR([]byte{})).To(BeEmpty())
		})
	})
})

func valueOf(reply protocol.Reply, key string) string {
	v, ok := reply.Get(key)
	Expect(ok).To(BeTrue(), "missing field %s", key)
	return v
}

package client_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/samaio/client"
)

var _ = Describe("Connection", func() {
	var (
		bridge *fakeBridge
		rec    *recorder
		s      *client.Session
	)

	BeforeEach(func() {
		bridge = newFakeBridge()
		rec = &recorder{}

		var err error
		s, err = client.StartSession(bridge.options(), rec.session(), "", client.KindStream, "")
		Expect(err).To(Succeed())

		bridge.pump(s, 20)
		Expect(s.State()).To(Equal(client.StateCreated))
		rec.events = nil
	})

	connect := func() *client.Connection {
		c, err := s.StreamConnect(rec.connection(), peerPub)
		Expect(err).To(Succeed())

		bridge.pump(s, 20)
		Expect(c.State()).To(Equal(client.ConnConnected))

		return c
	}

	Describe("StreamConnect()", func() {
		It("connects and signals it can send", func() {
			c := connect()

			Expect(rec.events).To(Equal([]string{"connected", "sent"}))
			Expect(c.DestinationKey()).To(Equal(peerPub))
			Expect(c.Session()).To(BeIdenticalTo(s))
			Expect(s.Connections()).To(Equal([]*client.Connection{c}))

			Expect(string(bridge.last().sent)).To(Equal(
				"HELLO VERSION MIN=3.0 MAX=3.0\n" +
					"STREAM CONNECT ID=" + s.Channel() + " DESTINATION=" + peerPub + "\n"))
		})

		It("rejects invalid destinations", func() {
			_, err := s.StreamConnect(rec.connection(), "nope")
			Expect(err).To(MatchError(client.ErrInvalidKey))
		})

		It("requires a created STREAM session", func() {
			other, err := client.StartSession(bridge.options(), rec.session(), "", client.KindStream, "")
			Expect(err).To(Succeed())

			_, err = other.StreamConnect(rec.connection(), peerPub)
			Expect(err).To(MatchError(client.ErrNotCreated))

			raw, err := client.StartSession(bridge.options(), rec.session(), "", client.KindRaw, "")
			Expect(err).To(Succeed())
			bridge.pump(raw, 20)

			_, err = raw.StreamConnect(rec.connection(), peerPub)
			Expect(err).To(MatchError(client.ErrNotStream))
		})

		It("surfaces a refused connect without disconnecting", func() {
			bridge.respond = overriding("STREAM CONNECT", "STREAM STATUS RESULT=CANT_REACH_PEER\n")

			c, err := s.StreamConnect(rec.connection(), peerPub)
			Expect(err).To(Succeed())

			bridge.pump(s, 20)

			Expect(rec.events).To(Equal([]string{"conn-error:CANT_REACH_PEER"}))
			Expect(c.State()).To(Equal(client.ConnError))
			Expect(bridge.last().shutdowns).To(Equal(1))
			Expect(s.State()).To(Equal(client.StateCreated))
		})
	})

	Describe("Send()", func() {
		It("flushes partial writes and signals once done", func() {
			c := connect()
			sock := bridge.last()
			sock.sendLimit = 3
			before := len(sock.sent)

			Expect(c.Send([]byte("hello world"))).To(Succeed())
			Expect(c.Pending()).To(BeTrue())
			Expect(c.Send([]byte("again"))).To(MatchError(client.ErrQueueBusy))

			bridge.pump(s, 20)

			Expect(string(sock.sent[before:])).To(Equal("hello world"))
			Expect(c.Pending()).To(BeFalse())
			Expect(rec.count("sent")).To(Equal(2))
		})

		It("waits while the socket takes nothing", func() {
			c := connect()
			sock := bridge.last()
			sock.blocked = true
			before := len(sock.sent)

			Expect(c.Send([]byte("payload"))).To(Succeed())
			bridge.pump(s, 5)

			Expect(sock.sent).To(HaveLen(before))
			Expect(c.Pending()).To(BeTrue())

			sock.blocked = false
			bridge.pump(s, 5)

			Expect(string(sock.sent[before:])).To(Equal("payload"))
			Expect(c.Send([]byte("more"))).To(Succeed())
		})

		It("is refused before the stream is up and after close", func() {
			c, err := s.StreamConnect(rec.connection(), peerPub)
			Expect(err).To(Succeed())
			Expect(c.Send([]byte("x"))).To(MatchError(client.ErrNotConnected))

			Expect(c.Close()).To(Succeed())
			Expect(c.Send([]byte("x"))).To(MatchError(client.ErrConnectionClosed))
		})
	})

	Describe("reading", func() {
		It("delivers received bytes", func() {
			connect()
			bridge.last().push("some data")

			bridge.pump(s, 5)

			Expect(rec.reads).To(Equal([]string{"some data"}))
		})

		It("disconnects when the peer closes", func() {
			c := connect()
			bridge.last().peerClosed = true

			bridge.pump(s, 5)

			Expect(rec.events).To(Equal([]string{"connected", "sent", "conn-disconnected"}))
			Expect(c.State()).To(Equal(client.ConnCancelled))
			Expect(c.IsActive()).To(BeFalse())
		})
	})

	Describe("StreamAccept()", func() {
		It("reads the peer key and keeps the bytes after it", func() {
			c, err := s.StreamAccept(rec.connection())
			Expect(err).To(Succeed())

			bridge.pump(s, 20)
			Expect(c.State()).To(Equal(client.ConnAwaitingPeer))

			bridge.last().push(peerPub + " FROM_PORT=0 TO_PORT=0\nfirst bytes")
			bridge.pump(s, 20)

			Expect(c.State()).To(Equal(client.ConnAccepted))
			Expect(c.DestinationKey()).To(Equal(peerPub))
			Expect(rec.events).To(ContainElement("accepted"))
			Expect(rec.events).To(ContainElement("sent"))
			Expect(rec.reads).To(Equal([]string{"first bytes"}))

			Expect(string(bridge.last().sent)).To(HaveSuffix("STREAM ACCEPT ID=" + s.Channel() + "\n"))
		})

		It("surfaces an error reported in place of the peer key", func() {
			c, err := s.StreamAccept(rec.connection())
			Expect(err).To(Succeed())
			bridge.pump(s, 20)

			bridge.last().push("STREAM STATUS RESULT=I2P_ERROR MESSAGE=\"no tunnels\"\n")
			bridge.pump(s, 20)

			Expect(rec.events).To(Equal([]string{"conn-error:I2P_ERROR"}))
			Expect(c.State()).To(Equal(client.ConnError))
		})

		It("fails with INVALID_KEY on a malformed peer key", func() {
			_, err := s.StreamAccept(rec.connection())
			Expect(err).To(Succeed())
			bridge.pump(s, 20)

			bridge.last().push("tooshort\n")
			bridge.pump(s, 20)

			Expect(rec.events).To(Equal([]string{"conn-error:INVALID_KEY"}))
		})
	})

	Describe("lifecycle", func() {
		It("is cancelled with its session", func() {
			c := connect()
			rec.events = nil

			s.Cancel()

			Expect(rec.events).To(Equal([]string{"conn-disconnected", "disconnected"}))
			Expect(c.IsActive()).To(BeFalse())
		})

		It("is closed before its session is destroyed", func() {
			c := connect()
			rec.events = nil

			Expect(s.Close()).To(Succeed())

			Expect(rec.events).To(Equal([]string{"conn-disconnected", "conn-destroy", "disconnected", "destroy"}))
			Expect(c.State()).To(Equal(client.ConnDestroyed))
		})

		It("leaves the session when closed", func() {
			c := connect()

			Expect(c.Close()).To(Succeed())
			Expect(c.Close()).To(Succeed())

			Expect(s.Connections()).To(BeEmpty())
			Expect(rec.count("conn-destroy")).To(Equal(1))

			_, ok := s.Connection(c.ID())
			Expect(ok).To(BeFalse())
		})

		It("can be closed again from its destroy handler", func() {
			destroyed := 0

			c, err := s.StreamConnect(client.ConnectionCallbacks{
				Destroy: func(c *client.Connection) {
					destroyed++
					Expect(c.Close()).To(Succeed())
				},
			}, peerPub)
			Expect(err).To(Succeed())
			bridge.pump(s, 20)

			Expect(c.Close()).To(Succeed())
			Expect(destroyed).To(Equal(1))
			Expect(c.State()).To(Equal(client.ConnDestroyed))
			Expect(s.Connections()).To(BeEmpty())
		})

		It("can be closed from its own handler", func() {
			destroyed := 0

			c, err := s.StreamConnect(client.ConnectionCallbacks{
				Connected: func(c *client.Connection) { c.Close() },
				Destroy:   func(*client.Connection) { destroyed++ },
			}, peerPub)
			Expect(err).To(Succeed())

			Expect(func() { bridge.pump(s, 20) }).NotTo(Panic())
			Expect(destroyed).To(Equal(1))
			Expect(c.State()).To(Equal(client.ConnDestroyed))
		})
	})
})

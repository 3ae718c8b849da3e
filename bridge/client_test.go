package bridge_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/samaio/bridge"
	"github.com/luma/samaio/client"
	"github.com/luma/samaio/protocol"
	"github.com/luma/samaio/transport"
)

// drive runs the reactor over sessions until done reports true.
func drive(poller *transport.Poller, done func() bool, sessions ...*client.Session) {
	deadline := time.Now().Add(5 * time.Second)
	readable, writable := transport.NewFDSet(), transport.NewFDSet()

	for !done() {
		Expect(time.Now().Before(deadline)).To(BeTrue(), "timed out driving sessions")

		readable.Clear()
		writable.Clear()

		for _, s := range sessions {
			s.CollectReadiness(readable, writable)
		}

		_, err := poller.Wait(readable, writable, 10*time.Millisecond)
		Expect(err).To(Succeed())

		for _, s := range sessions {
			s.Dispatch(readable, writable)
		}
	}
}

var _ = Describe("client against the bridge", func() {
	var (
		b      *bridge.Bridge
		poller *transport.Poller
		opts   client.Options
	)

	BeforeEach(func() {
		b = startBridge()

		var err error
		poller, err = transport.MakePoller()
		Expect(err).To(Succeed())

		opts = client.Options{
			Host:    "127.0.0.1",
			Port:    b.Addr().Port,
			UDPPort: b.UDPAddr().Port,
		}
	})

	AfterEach(func() {
		Expect(poller.Close()).To(Succeed())
		Expect(b.Close()).To(Succeed())
	})

	created := func(s *client.Session) func() bool {
		return func() bool {
			return s.State() == client.StateCreated
		}
	}

	It("generates keys", func() {
		var got bool

		s, err := client.GenerateKeys(opts, client.SessionCallbacks{
			Created: func(*client.Session) { got = true },
		})
		Expect(err).To(Succeed())

		Expect(client.Run(context.Background(), poller, 50*time.Millisecond, s)).To(Succeed())

		Expect(got).To(BeTrue())
		Expect(protocol.ValidKey(s.PublicKey(), protocol.PublicKeySize)).To(BeTrue())
		Expect(s.PrivateKey()).To(HavePrefix(s.PublicKey()))
		Expect(s.Close()).To(Succeed())
	})

	It("looks up names in the address book", func() {
		s, err := client.LookupName(opts, nil, "known.i2p")
		Expect(err).To(Succeed())

		Expect(client.Run(context.Background(), poller, 50*time.Millisecond, s)).To(Succeed())

		Expect(s.Err()).To(BeEmpty())
		Expect(s.DestinationKey()).To(Equal(knownKeys.Public))
		Expect(s.Close()).To(Succeed())
	})

	It("surfaces KEY_NOT_FOUND", func() {
		var reason string

		s, err := client.LookupName(opts, client.SessionCallbacks{
			Error: func(s *client.Session) { reason = s.Err() },
		}, "unknown.i2p")
		Expect(err).To(Succeed())

		Expect(client.Run(context.Background(), poller, 50*time.Millisecond, s)).To(Succeed())

		Expect(reason).To(Equal(protocol.ResultKeyNotFound))
		Expect(s.Close()).To(Succeed())
	})

	It("creates a session and learns its public key", func() {
		s, err := client.StartSession(opts, nil, "", client.KindStream, "")
		Expect(err).To(Succeed())
		defer s.Close()

		drive(poller, created(s), s)

		Expect(s.PublicKey()).To(Equal(s.PrivateKey()[:protocol.PublicKeySize]))
		Expect(b.Sessions()).To(HaveLen(1))
		Expect(b.Sessions()[0].ID).To(Equal(s.Channel()))
	})

	It("recreates a session from a saved private key", func() {
		first, err := client.StartSession(opts, nil, "", client.KindDatagram, "")
		Expect(err).To(Succeed())
		drive(poller, created(first), first)

		private := first.PrivateKey()
		Expect(first.Close()).To(Succeed())
		Eventually(b.Sessions).Should(BeEmpty())

		second, err := client.StartSession(opts, nil, private, client.KindDatagram, "")
		Expect(err).To(Succeed())
		defer second.Close()

		drive(poller, created(second), second)
		Expect(second.PrivateKey()).To(Equal(private))
	})

	It("streams bytes between two sessions", func() {
		alpha, err := client.StartSession(opts, nil, "", client.KindStream, "")
		Expect(err).To(Succeed())
		defer alpha.Close()

		beta, err := client.StartSession(opts, nil, "", client.KindStream, "")
		Expect(err).To(Succeed())
		defer beta.Close()

		drive(poller, func() bool {
			return alpha.State() == client.StateCreated && beta.State() == client.StateCreated
		}, alpha, beta)

		// alpha echoes whatever it reads
		accepted, err := alpha.StreamAccept(client.ConnectionCallbacks{
			Read: func(c *client.Connection, data []byte) {
				Expect(c.Send(data)).To(Succeed())
			},
		})
		Expect(err).To(Succeed())

		drive(poller, func() bool {
			return accepted.State() == client.ConnAwaitingPeer
		}, alpha, beta)

		var echoed []byte
		disconnected := false

		connector, err := beta.StreamConnect(client.ConnectionCallbacks{
			Connected: func(c *client.Connection) {
				Expect(c.Send([]byte("ping"))).To(Succeed())
			},
			Read: func(c *client.Connection, data []byte) {
				echoed = append(echoed, data...)
			},
			Disconnected: func(*client.Connection) { disconnected = true },
		}, alpha.PublicKey())
		Expect(err).To(Succeed())

		drive(poller, func() bool {
			return string(echoed) == "ping"
		}, alpha, beta)

		Expect(accepted.State()).To(Equal(client.ConnAccepted))
		Expect(accepted.DestinationKey()).To(Equal(beta.PublicKey()))
		Expect(connector.State()).To(Equal(client.ConnConnected))

		// Closing the accepting side reaches the connector as a hangup
		Expect(accepted.Close()).To(Succeed())

		drive(poller, func() bool { return disconnected }, alpha, beta)
		Expect(connector.Err()).To(BeEmpty())
		Expect(connector.IsActive()).To(BeFalse())
	})

	It("exchanges datagrams between two sessions", func() {
		var (
			payload string
			from    string
		)

		alpha, err := client.StartSession(opts, nil, "", client.KindDatagram, "")
		Expect(err).To(Succeed())
		defer alpha.Close()

		beta, err := client.StartSession(opts, client.SessionCallbacks{
			Datagram: func(s *client.Session, p []byte) {
				payload = string(p)
				from = s.DestinationKey()
			},
		}, "", client.KindDatagram, "")
		Expect(err).To(Succeed())
		defer beta.Close()

		drive(poller, func() bool {
			return alpha.State() == client.StateCreated && beta.State() == client.StateCreated
		}, alpha, beta)

		Expect(alpha.DatagramSend(beta.PublicKey(), []byte("hello"))).To(Succeed())

		drive(poller, func() bool { return payload != "" }, alpha, beta)

		Expect(payload).To(Equal("hello"))
		Expect(from).To(Equal(alpha.PublicKey()))
	})

	It("reports a disconnect when the bridge goes away", func() {
		var events []string

		s, err := client.StartSession(opts, client.SessionCallbacks{
			Error:        func(*client.Session) { events = append(events, "error") },
			Disconnected: func(*client.Session) { events = append(events, "disconnected") },
		}, "", client.KindRaw, "")
		Expect(err).To(Succeed())
		defer s.Close()

		drive(poller, created(s), s)

		Expect(b.Close()).To(Succeed())

		drive(poller, func() bool { return !s.IsActive() }, s)
		Expect(events).To(Equal([]string{"disconnected", "error"}))
		Expect(s.State()).To(Equal(client.StateError))
	})
})

package client_test

import (
	"context"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/samaio/client"
	"github.com/luma/samaio/transport"
)

// wakeWatcher counts Wake calls that arrive after Run returned.
type wakeWatcher struct {
	*fakeBridge
	returned int32
	late     int32
}

func (w *wakeWatcher) Wake() error {
	if atomic.LoadInt32(&w.returned) == 1 {
		atomic.AddInt32(&w.late, 1)
	}

	return nil
}

var _ = Describe("Reactor", func() {
	var (
		bridge *fakeBridge
		rec    *recorder
	)

	BeforeEach(func() {
		bridge = newFakeBridge()
		rec = &recorder{}
	})

	Describe("CollectReadiness()", func() {
		It("asks for write readiness while connecting", func() {
			s, err := client.StartSession(bridge.options(), rec.session(), "", client.KindStream, "")
			Expect(err).To(Succeed())

			readable, writable := transport.NewFDSet(), transport.NewFDSet()
			fd := bridge.last().fd

			Expect(s.CollectReadiness(readable, writable)).To(Equal(fd))
			Expect(readable.Len()).To(Equal(0))
			Expect(writable.IsSet(fd)).To(BeTrue())
		})

		It("includes every connection and returns the highest fd", func() {
			s, err := client.StartSession(bridge.options(), rec.session(), "", client.KindStream, "")
			Expect(err).To(Succeed())
			bridge.pump(s, 20)

			_, err = s.StreamConnect(rec.connection(), peerPub)
			Expect(err).To(Succeed())
			_, err = s.StreamAccept(rec.connection())
			Expect(err).To(Succeed())

			writable := transport.NewFDSet()

			Expect(s.CollectReadiness(nil, writable)).To(Equal(bridge.last().fd))
			Expect(writable.Len()).To(Equal(2))
		})

		It("returns -1 for closed sessions", func() {
			s, err := client.StartSession(bridge.options(), rec.session(), "", client.KindStream, "")
			Expect(err).To(Succeed())
			Expect(s.Close()).To(Succeed())

			Expect(s.CollectReadiness(transport.NewFDSet(), transport.NewFDSet())).To(Equal(-1))
		})
	})

	Describe("Dispatch()", func() {
		It("does nothing for descriptors that are not ready", func() {
			s, err := client.StartSession(bridge.options(), rec.session(), "", client.KindStream, "")
			Expect(err).To(Succeed())

			s.Dispatch(transport.NewFDSet(), transport.NewFDSet())
			s.Dispatch(nil, nil)

			Expect(s.State()).To(Equal(client.StateConnecting))
			Expect(bridge.last().sent).To(BeEmpty())
		})
	})

	Describe("Run()", func() {
		It("returns once no session is active", func() {
			s, err := client.GenerateKeys(bridge.options(), rec.session())
			Expect(err).To(Succeed())

			Expect(client.Run(context.Background(), bridge, time.Millisecond, s)).To(Succeed())
			Expect(rec.events).To(Equal([]string{"created"}))
		})

		It("stops when the context is done", func() {
			s, err := client.StartSession(bridge.options(), rec.session(), "", client.KindStream, "")
			Expect(err).To(Succeed())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			Expect(client.Run(ctx, bridge, time.Millisecond, s)).To(MatchError(context.Canceled))
		})

		It("never wakes the poller after returning", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			watchers := make([]*wakeWatcher, 500)

			for i := range watchers {
				w := &wakeWatcher{fakeBridge: bridge}
				watchers[i] = w

				Expect(client.Run(ctx, w, time.Millisecond)).To(MatchError(context.Canceled))
				atomic.StoreInt32(&w.returned, 1)
			}

			// Give stray goroutines a chance to run
			time.Sleep(20 * time.Millisecond)

			for _, w := range watchers {
				Expect(atomic.LoadInt32(&w.late)).To(BeZero())
			}
		})
	})
})

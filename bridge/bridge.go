package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/samaio/protocol"
	"github.com/luma/samaio/storage"
)

var (
	ErrUnknownSession     = errors.New("No DATAGRAM or RAW session with that ID")
	ErrUnknownDestination = errors.New("No datagram session with that destination")
)

// SessionInfo describes an open session, for the debug HTTP server.
type SessionInfo struct {
	ID        string `json:"id"`
	Style     string `json:"style"`
	PublicKey string `json:"publicKey"`
	Acceptors int    `json:"acceptors"`
}

// Bridge is a small in-process SAM v3 bridge. It implements enough of the
// protocol to exercise a client: sessions, naming, key generation, streams
// between sessions of the same bridge and datagrams. Nothing ever leaves
// the process.
type Bridge struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr    string
	udpAddr string

	reuseport   bool
	addressBook storage.Store

	listener net.Listener
	udp      net.PacketConn

	mu       sync.Mutex
	conns    map[*conn]struct{}
	sessions map[string]*session
	byPublic map[string]*session

	// closeErr collects what went wrong while shutting down
	closeErr error

	metrics *metrics
	log     *zap.Logger
}

type session struct {
	id      string
	style   protocol.Style
	keys    storage.Keys
	control *conn

	// acceptors wait for the next STREAM CONNECT to this session
	acceptors []*acceptor
}

type acceptor struct {
	c    *conn
	peer chan *conn
}

func New(options Options) *Bridge {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	book := options.AddressBook
	if book == nil {
		book = storage.NewInmemoryStore()
	}

	return &Bridge{
		addr:        net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		udpAddr:     net.JoinHostPort(options.Host, strconv.Itoa(options.UDPPort)),
		reuseport:   options.Reuseport,
		addressBook: book,
		conns:       make(map[*conn]struct{}),
		sessions:    make(map[string]*session),
		byPublic:    make(map[string]*session),
		metrics:     newMetrics(),
		log:         log,
	}
}

// Start listens on the TCP and UDP ports and serves clients in the
// background until Close is called or ctx is done. The bridge is reachable
// as soon as Start returns.
func (b *Bridge) Start(parentCtx context.Context) (err error) {
	ctx, cancel := context.WithCancel(parentCtx)
	b.cancel = cancel

	if b.reuseport {
		b.listener, err = reuseport.Listen("tcp4", b.addr)
	} else {
		b.listener, err = net.Listen("tcp4", b.addr)
	}

	if err != nil {
		cancel()
		return fmt.Errorf("Failed to listen on %s: %w", b.addr, err)
	}

	b.udp, err = net.ListenPacket("udp4", b.udpAddr)
	if err != nil {
		cancel()
		b.listener.Close()
		return fmt.Errorf("Failed to listen on udp %s: %w", b.udpAddr, err)
	}

	b.log.Info("Bridge listening",
		zap.Stringer("addr", b.listener.Addr()),
		zap.Stringer("udpAddr", b.udp.LocalAddr()))

	b.stopWaiter.Add(3)

	go func() {
		defer b.stopWaiter.Done()
		b.acceptLoop(ctx)
	}()

	go func() {
		defer b.stopWaiter.Done()
		b.datagramLoop(ctx)
	}()

	go func() {
		defer b.stopWaiter.Done()
		<-ctx.Done()
		b.shutdown()
	}()

	return nil
}

// Addr is the TCP address clients connect to.
func (b *Bridge) Addr() *net.TCPAddr {
	return b.listener.Addr().(*net.TCPAddr)
}

// UDPAddr is where clients send datagrams.
func (b *Bridge) UDPAddr() *net.UDPAddr {
	return b.udp.LocalAddr().(*net.UDPAddr)
}

// Gatherer exposes the bridge's metrics, e.g. to promhttp.HandlerFor.
func (b *Bridge) Gatherer() prometheus.Gatherer {
	return b.metrics.registry
}

// Sessions lists the open sessions ordered by ID.
func (b *Bridge) Sessions() []SessionInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos := make([]SessionInfo, 0, len(b.sessions))

	for _, s := range b.sessions {
		infos = append(infos, SessionInfo{
			ID:        s.id,
			Style:     string(s.style),
			PublicKey: s.keys.Public,
			Acceptors: len(s.acceptors),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})

	return infos
}

// Close immediately closes the listeners and every client connection, and
// waits for them to wind down.
func (b *Bridge) Close() error {
	b.log.Info("Stopping bridge")

	if b.cancel != nil {
		b.cancel()
	}

	b.stopWaiter.Wait()
	b.log.Info("Bridge stopped")

	return b.closeErr
}

func (b *Bridge) shutdown() {
	var err error

	err = multierr.Append(err, b.listener.Close())
	err = multierr.Append(err, b.udp.Close())

	b.mu.Lock()
	for c := range b.conns {
		err = multierr.Append(err, c.Close())
	}
	b.mu.Unlock()

	if err != nil {
		b.log.Warn("Bridge did not close cleanly", zap.Error(err))
	}

	b.closeErr = err
}

func (b *Bridge) acceptLoop(ctx context.Context) {
	for {
		nc, err := b.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				// The listener was closed while we were waiting for new
				// connections, that's fine.
				return
			}

			b.log.Error("Failed to accept", zap.Error(err))
			return
		}

		c := newConn(b, nc)

		b.mu.Lock()
		b.conns[c] = struct{}{}
		b.mu.Unlock()

		b.stopWaiter.Add(1)

		go func() {
			defer b.stopWaiter.Done()
			defer b.release(c)

			c.serve(ctx)
		}()
	}
}

// release forgets a finished client connection and the session it
// controlled, if any.
func (b *Bridge) release(c *conn) {
	c.Close()

	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.conns, c)

	s := c.session
	if s == nil {
		return
	}

	delete(b.sessions, s.id)
	if b.byPublic[s.keys.Public] == s {
		delete(b.byPublic, s.keys.Public)
	}

	for _, a := range s.acceptors {
		a.c.Close()
	}
	s.acceptors = nil

	b.metrics.sessions.Dec()
	c.log.Info("Session closed", zap.String("id", s.id))
}

func (b *Bridge) addSession(s *session) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.sessions[s.id]; ok {
		return false
	}

	if _, ok := b.byPublic[s.keys.Public]; ok {
		return false
	}

	b.sessions[s.id] = s
	b.byPublic[s.keys.Public] = s
	b.metrics.sessions.Inc()

	return true
}

func (b *Bridge) sessionByID(id string) *session {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.sessions[id]
}

func (b *Bridge) addAcceptor(s *session, a *acceptor) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s.acceptors = append(s.acceptors, a)
}

// popAcceptor takes the oldest acceptor waiting on the session with the
// given public key.
func (b *Bridge) popAcceptor(public string) *acceptor {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.byPublic[public]
	if s == nil || len(s.acceptors) == 0 {
		return nil
	}

	a := s.acceptors[0]
	s.acceptors = s.acceptors[1:]

	return a
}

func (b *Bridge) datagramLoop(ctx context.Context) {
	buf := make([]byte, 64*1024)

	for {
		n, from, err := b.udp.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}

			b.log.Warn("Failed to read datagram", zap.Error(err))
			continue
		}

		if err := b.forwardDatagram(buf[:n]); err != nil {
			b.log.Info("Dropped datagram", zap.Stringer("from", from), zap.Error(err))
		}
	}
}

// forwardDatagram delivers "3.0 <id> <dest>\n<payload>" to the control
// connection of the destination session.
func (b *Bridge) forwardDatagram(packet []byte) error {
	end := bytes.IndexByte(packet, '\n')
	if end < 0 {
		return protocol.ErrMalformedDatagram
	}

	header := strings.Fields(string(packet[:end]))
	if len(header) < 3 || header[0] != protocol.Version {
		return protocol.ErrMalformedDatagram
	}

	payload := packet[end+1:]
	if len(payload) > protocol.MaxDatagramSize {
		return protocol.ErrMalformedDatagram
	}

	b.mu.Lock()
	src := b.sessions[header[1]]
	dst := b.byPublic[header[2]]
	b.mu.Unlock()

	if src == nil || src.style == protocol.StyleStream {
		return ErrUnknownSession
	}

	if dst == nil || dst.style == protocol.StyleStream {
		return ErrUnknownDestination
	}

	msg := protocol.DatagramReceived(dst.style, src.keys.Public, len(payload))
	msg = append(msg, payload...)

	if err := dst.control.write(msg); err != nil {
		return err
	}

	b.metrics.datagrams.Inc()

	return nil
}

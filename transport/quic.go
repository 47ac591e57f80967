package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync"
	"time"

	quic "github.com/quic-go/quic-go"

	"github.com/keeferrourke/rhpman-sim/wire"
)

const quicProto = "rhpman-quic"

// QUIC carries each frame on its own stream. A stream holds two
// length-prefixed frames: the sender's listen endpoint, then the frame.
type QUIC struct {
	addr   string
	self   wire.Address
	opts   Options
	router *router

	mu        sync.Mutex
	listener  *quic.Listener
	cancel    context.CancelFunc
	conns     map[string]*quic.Conn
	clientTLS *tls.Config
}

// NewQUIC returns a transport that will listen on addr ("host:port").
func NewQUIC(addr string, self wire.Address, neighbors []string, opts Options) (*QUIC, error) {
	if addr == "" || !strings.Contains(addr, ":") {
		return nil, fmt.Errorf("invalid address: %s", addr)
	}
	if self == wire.NoAddress {
		return nil, fmt.Errorf("local address must be provided")
	}
	q := &QUIC{
		addr:  addr,
		self:  self,
		opts:  opts.withDefaults(),
		conns: make(map[string]*quic.Conn),
		clientTLS: &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{quicProto},
		},
	}
	q.router = newRouter(self, addr, neighbors, q.opts, q.deliver)
	return q, nil
}

// devCert builds a throwaway self-signed certificate for the listener.
func devCert() (tls.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, pub, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}

func (q *QUIC) Open() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.listener != nil {
		return nil
	}
	cert, err := devCert()
	if err != nil {
		return fmt.Errorf("quic certificate: %w", err)
	}
	tlsConf := &tls.Config{Certificates: []tls.Certificate{cert}, NextProtos: []string{quicProto}}
	ln, err := quic.ListenAddr(q.addr, tlsConf, &quic.Config{MaxIdleTimeout: 30 * time.Second})
	if err != nil {
		return fmt.Errorf("quic listen %s: %w", q.addr, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.listener, q.cancel = ln, cancel
	q.router.start()
	go q.acceptLoop(ctx, ln)
	q.opts.Logger.Info("quic listening", "addr", q.addr, "node", q.self.String())
	return nil
}

func (q *QUIC) acceptLoop(ctx context.Context, ln *quic.Listener) {
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			return
		}
		go q.serveConn(ctx, conn)
	}
}

func (q *QUIC) serveConn(ctx context.Context, conn *quic.Conn) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go func(s *quic.Stream) {
			defer s.Close()
			from, err := wire.ReadFrame(s)
			if err != nil {
				q.opts.Logger.Debug("quic read endpoint", "error", err)
				return
			}
			frame, err := wire.ReadFrame(s)
			if err != nil {
				q.opts.Logger.Debug("quic read frame", "error", err)
				return
			}
			q.router.handle(string(from), frame)
		}(stream)
	}
}

func (q *QUIC) Close() error {
	q.mu.Lock()
	ln, cancel := q.listener, q.cancel
	q.listener, q.cancel = nil, nil
	q.mu.Unlock()
	if ln == nil {
		return nil
	}

	q.router.stop()
	cancel()
	err := ln.Close()

	q.mu.Lock()
	defer q.mu.Unlock()
	for ep, conn := range q.conns {
		_ = conn.CloseWithError(0, "closing")
		delete(q.conns, ep)
	}
	return err
}

func (q *QUIC) LocalAddress() wire.Address { return q.self }

// Endpoint returns the listen address.
func (q *QUIC) Endpoint() string { return q.addr }

func (q *QUIC) SetReceiver(fn Receiver) { q.router.setReceiver(fn) }

func (q *QUIC) Unicast(dest wire.Address, payload []byte) error {
	return q.router.unicast(dest, payload)
}

func (q *QUIC) Broadcast(hops uint32, payload []byte) error {
	return q.router.broadcast(hops, payload)
}

// AddNeighbor adds a directly reachable endpoint.
func (q *QUIC) AddNeighbor(endpoint string) { q.router.addNeighbor(endpoint) }

// RemoveNeighbor forgets a neighbor and every route through it.
func (q *QUIC) RemoveNeighbor(endpoint string) { q.router.removeNeighbor(endpoint) }

// Neighbors returns the known neighbor endpoints.
func (q *QUIC) Neighbors() []string { return q.router.neighborList() }

func (q *QUIC) conn(ctx context.Context, endpoint string) (*quic.Conn, error) {
	q.mu.Lock()
	if c, ok := q.conns[endpoint]; ok {
		q.mu.Unlock()
		return c, nil
	}
	q.mu.Unlock()

	c, err := quic.DialAddr(ctx, endpoint, q.clientTLS, &quic.Config{MaxIdleTimeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if existing, ok := q.conns[endpoint]; ok {
		_ = c.CloseWithError(0, "duplicate")
		return existing, nil
	}
	q.conns[endpoint] = c
	return c, nil
}

func (q *QUIC) dropConn(endpoint string, c *quic.Conn) {
	q.mu.Lock()
	if q.conns[endpoint] == c {
		delete(q.conns, endpoint)
	}
	q.mu.Unlock()
	_ = c.CloseWithError(0, "send failed")
}

func (q *QUIC) deliver(ctx context.Context, endpoint string, frame []byte) error {
	c, err := q.conn(ctx, endpoint)
	if err != nil {
		return err
	}
	stream, err := c.OpenStreamSync(ctx)
	if err != nil {
		q.dropConn(endpoint, c)
		return fmt.Errorf("open stream to %s: %w", endpoint, err)
	}
	if err := wire.WriteFrame(stream, []byte(q.addr)); err != nil {
		stream.CancelWrite(0)
		return fmt.Errorf("write to %s: %w", endpoint, err)
	}
	if err := wire.WriteFrame(stream, frame); err != nil {
		stream.CancelWrite(0)
		return fmt.Errorf("write to %s: %w", endpoint, err)
	}
	return stream.Close()
}

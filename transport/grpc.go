package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/keeferrourke/rhpman-sim/wire"
)

// GRPC carries frames as unary Deliver calls between neighbor endpoints.
type GRPC struct {
	addr   string
	self   wire.Address
	opts   Options
	router *router

	mu    sync.Mutex
	srv   *grpc.Server
	lis   net.Listener
	conns map[string]*grpc.ClientConn
}

// NewGRPC returns a transport that will listen on addr ("host:port") and
// exchange frames with the given neighbor endpoints.
func NewGRPC(addr string, self wire.Address, neighbors []string, opts Options) (*GRPC, error) {
	if addr == "" || !strings.Contains(addr, ":") {
		return nil, fmt.Errorf("invalid address: %s", addr)
	}
	if self == wire.NoAddress {
		return nil, fmt.Errorf("local address must be provided")
	}
	g := &GRPC{
		addr:  addr,
		self:  self,
		opts:  opts.withDefaults(),
		conns: make(map[string]*grpc.ClientConn),
	}
	g.router = newRouter(self, addr, neighbors, g.opts, g.deliver)
	return g, nil
}

func (g *GRPC) setupTcp() (net.Listener, error) {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return lis, nil
}

// Open binds the listener and serves in the background.
func (g *GRPC) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.srv != nil {
		return nil
	}
	lis, err := g.setupTcp()
	if err != nil {
		return fmt.Errorf("failed to setup TCP: %w", err)
	}

	srv := grpc.NewServer()
	srv.RegisterService(&datagramServiceDesc, &deliverHandler{router: g.router})
	// Register reflection service for gRPC tools (grpcurl, grpcui, etc.)
	reflection.Register(srv)

	g.srv, g.lis = srv, lis
	g.router.start()
	go func() {
		if err := srv.Serve(lis); err != nil {
			g.opts.Logger.Warn("grpc serve stopped", "addr", g.addr, "error", err)
		}
	}()
	g.opts.Logger.Info("grpc listening", "addr", g.addr, "node", g.self.String())
	return nil
}

func (g *GRPC) Close() error {
	g.mu.Lock()
	srv := g.srv
	g.srv, g.lis = nil, nil
	g.mu.Unlock()
	if srv == nil {
		return nil
	}

	g.router.stop()
	srv.Stop()

	g.mu.Lock()
	defer g.mu.Unlock()
	var firstErr error
	for ep, conn := range g.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(g.conns, ep)
	}
	return firstErr
}

func (g *GRPC) LocalAddress() wire.Address { return g.self }

// Endpoint returns the listen address.
func (g *GRPC) Endpoint() string { return g.addr }

func (g *GRPC) SetReceiver(fn Receiver) { g.router.setReceiver(fn) }

func (g *GRPC) Unicast(dest wire.Address, payload []byte) error {
	return g.router.unicast(dest, payload)
}

func (g *GRPC) Broadcast(hops uint32, payload []byte) error {
	return g.router.broadcast(hops, payload)
}

// AddNeighbor adds a directly reachable endpoint.
func (g *GRPC) AddNeighbor(endpoint string) { g.router.addNeighbor(endpoint) }

// RemoveNeighbor forgets a neighbor and every route through it.
func (g *GRPC) RemoveNeighbor(endpoint string) { g.router.removeNeighbor(endpoint) }

// Neighbors returns the known neighbor endpoints.
func (g *GRPC) Neighbors() []string { return g.router.neighborList() }

func (g *GRPC) conn(endpoint string) (*grpc.ClientConn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.conns[endpoint]; ok {
		return c, nil
	}
	c, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	g.conns[endpoint] = c
	return c, nil
}

func (g *GRPC) dropConn(endpoint string, c *grpc.ClientConn) {
	g.mu.Lock()
	if g.conns[endpoint] == c {
		delete(g.conns, endpoint)
	}
	g.mu.Unlock()
	_ = c.Close()
}

func (g *GRPC) deliver(ctx context.Context, endpoint string, frame []byte) error {
	c, err := g.conn(endpoint)
	if err != nil {
		return err
	}
	ctx = metadata.AppendToOutgoingContext(ctx, fromEndpointMD, g.addr)
	if err := c.Invoke(ctx, deliverMethod, wrapperspb.Bytes(frame), new(emptypb.Empty)); err != nil {
		g.dropConn(endpoint, c)
		return fmt.Errorf("deliver to %s: %w", endpoint, err)
	}
	return nil
}

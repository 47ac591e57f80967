package node

import (
	"fmt"
	"time"

	"github.com/keeferrourke/rhpman-sim/rhpman"
	"github.com/keeferrourke/rhpman-sim/wire"
)

// Default configuration constants
const (
	DefaultAddress   = "127.0.0.1"
	DefaultPort      = "50051"
	DefaultNodeName  = "node-1"
	DefaultTransport = TransportGRPC

	TransportGRPC = "grpc"
	TransportQUIC = "quic"
)

// Config holds the configuration for a node
type Config struct {
	// Node identification
	Name        string
	NodeAddress wire.Address // protocol identity; derived from Name when zero

	// Server configuration
	Address   string
	Port      string
	Transport string // "grpc" or "quic"

	// Peer configuration
	Neighbors   []string // directly reachable endpoints, e.g. ["127.0.0.1:50052"]
	UnicastHops uint32
	SendTimeout time.Duration

	// Protocol configuration
	Engine rhpman.Config
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig(name string) *Config {
	return &Config{
		Name:        name,
		Address:     DefaultAddress,
		Port:        DefaultPort,
		Transport:   DefaultTransport,
		Neighbors:   []string{},
		UnicastHops: 8,
		SendTimeout: 2 * time.Second,
		Engine:      rhpman.DefaultConfig(),
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Name == "" {
		return ErrNodeNameRequired
	}
	if c.Address == "" {
		return ErrAddressRequired
	}
	if c.Port == "" {
		return ErrPortRequired
	}
	if c.Transport != TransportGRPC && c.Transport != TransportQUIC {
		return fmt.Errorf("%q: %w", c.Transport, ErrUnknownTransport)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

// GetAddress returns the full address (address:port)
func (c *Config) GetAddress() string {
	return c.Address + ":" + c.Port
}

// Identity returns the protocol address of the node.
func (c *Config) Identity() wire.Address {
	if c.NodeAddress != wire.NoAddress {
		return c.NodeAddress
	}
	return wire.AddressFromName(c.Name)
}

package node

import (
	"fmt"
	"sync"

	"github.com/keeferrourke/rhpman-sim/logger"
	"github.com/keeferrourke/rhpman-sim/rhpman"
)

// Manager manages multiple local nodes. Each new node neighbors every node
// created before it.
type Manager struct {
	nodes       []*Node        // maintain order with slice
	nodeMap     map[string]int // map node name to index for quick lookup
	mu          sync.RWMutex
	portCounter int // for auto-assigning ports
	nextID      int // monotonically increasing counter for unique node names

	transportKind string
	engine        rhpman.Config
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithBasePort sets the port of the first node.
func WithBasePort(port int) ManagerOption {
	return func(m *Manager) { m.portCounter = port }
}

// WithTransport selects "grpc" or "quic" for every node.
func WithTransport(kind string) ManagerOption {
	return func(m *Manager) { m.transportKind = kind }
}

// WithEngineConfig sets the protocol configuration of new nodes.
func WithEngineConfig(cfg rhpman.Config) ManagerOption {
	return func(m *Manager) { m.engine = cfg }
}

// NewManager creates a new node manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		nodes:         make([]*Node, 0),
		nodeMap:       make(map[string]int),
		portCounter:   50051, // start from default port
		nextID:        1,     // start node names at 1
		transportKind: DefaultTransport,
		engine:        rhpman.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateNode creates and starts a new node
func (m *Manager) CreateNode() (*Node, error) {
	return m.CreateNodeWithRole(m.engine.InitialRole)
}

// CreateNodeWithRole creates and starts a node with the given initial role.
func (m *Manager) CreateNodeWithRole(role rhpman.Role) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	port := m.findAvailablePort()
	name := fmt.Sprintf("node-%d", m.nextID)
	m.nextID++

	config := DefaultConfig(name)
	config.Port = fmt.Sprintf("%d", port)
	config.Address = DefaultAddress
	config.Transport = m.transportKind
	config.Engine = m.engine
	config.Engine.InitialRole = role
	for _, existing := range m.nodes {
		config.Neighbors = append(config.Neighbors, existing.GetConfig().GetAddress())
	}

	node, err := New(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	if err := node.Start(); err != nil {
		return nil, fmt.Errorf("failed to start node: %w", err)
	}
	for _, existing := range m.nodes {
		existing.AddNeighbor(config.GetAddress())
	}

	m.nodes = append(m.nodes, node)
	m.nodeMap[name] = len(m.nodes) - 1
	return node, nil
}

// DeleteNode stops and removes a node by its index in the list
func (m *Manager) DeleteNode(index int) error {
	m.mu.Lock()

	if index < 0 || index >= len(m.nodes) {
		m.mu.Unlock()
		return fmt.Errorf("invalid node index: %d", index)
	}

	node := m.nodes[index]
	name := node.GetConfig().Name
	endpoint := node.GetConfig().GetAddress()

	// Remove from slice and map before unlocking
	m.nodes = append(m.nodes[:index], m.nodes[index+1:]...)
	delete(m.nodeMap, name)

	// Rebuild map indices
	for i, n := range m.nodes {
		m.nodeMap[n.GetConfig().Name] = i
		n.RemoveNeighbor(endpoint)
	}

	m.mu.Unlock()

	// Stop node asynchronously to avoid blocking
	go func() {
		if err := node.Stop(); err != nil {
			logger.Errorf("Error stopping node %s: %v", name, err)
		}
	}()

	return nil
}

// GetNodes returns a list of all nodes (maintains order)
func (m *Manager) GetNodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	return nodes
}

// GetNode returns the node with the given name.
func (m *Manager) GetNode(name string) (*Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.nodeMap[name]
	if !ok {
		return nil, false
	}
	return m.nodes[i], true
}

// findAvailablePort finds the next available port
func (m *Manager) findAvailablePort() int {
	port := m.portCounter
	m.portCounter++
	return port
}

// StopAll stops all nodes
func (m *Manager) StopAll() error {
	m.mu.Lock()
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	m.mu.Unlock()

	var errs []error
	for _, node := range nodes {
		if err := node.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors stopping nodes: %v", errs)
	}

	return nil
}

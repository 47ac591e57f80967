package node

import "errors"

var (
	ErrNodeNameRequired = errors.New("node name is required")
	ErrAddressRequired  = errors.New("address is required")
	ErrPortRequired     = errors.New("port is required")
	ErrUnknownTransport = errors.New("unknown transport")
	ErrNodeStopped      = errors.New("node is not running")
)

package logger

import "fmt"

// Node prefixes every line with a node label, e.g. "[10.1.0.4]".
type Node struct {
	label string
}

// ForNode returns a logger for the node with the given label.
func ForNode(label string) *Node {
	return &Node{label: label}
}

func (n *Node) Debugf(format string, args ...interface{}) {
	if !DebugEnabled() {
		return
	}
	Printf("[%s] [DEBUG] %s", n.label, fmt.Sprintf(format, args...))
}

func (n *Node) Infof(format string, args ...interface{}) {
	Printf("[%s] [INFO] %s", n.label, fmt.Sprintf(format, args...))
}

func (n *Node) Warnf(format string, args ...interface{}) {
	Printf("[%s] [WARN] %s", n.label, fmt.Sprintf(format, args...))
}

func (n *Node) Errorf(format string, args ...interface{}) {
	Printf("[%s] [ERROR] %s", n.label, fmt.Sprintf(format, args...))
}

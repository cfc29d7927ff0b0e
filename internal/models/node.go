package models

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Node represents a target ledger node of the test run
type Node struct {
	ID      string `yaml:"id" json:"id"`
	Address string `yaml:"address" json:"address"`
}

// String returns the host:port of the node
func (n *Node) String() string {
	return n.Address
}

// ParseNodeAddress parses and validates a "host:port" string
func ParseNodeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", fmt.Errorf("invalid node address %q: %w", s, err)
	}
	if host == "" {
		return "", fmt.Errorf("invalid node address %q: missing host", s)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return "", fmt.Errorf("invalid node address %q: bad port %q", s, port)
	}
	return net.JoinHostPort(host, port), nil
}

// GetNodeList builds the ordered node list from the seed node followed by its peers.
// Node IDs are assigned n1, n2, ... in that order.
func GetNodeList(seed string, peers []string) ([]*Node, error) {
	addresses := append([]string{seed}, peers...)
	nodes := make([]*Node, 0, len(addresses))
	for i, a := range addresses {
		addr, err := ParseNodeAddress(a)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &Node{ID: "n" + strconv.Itoa(i+1), Address: addr})
	}
	return nodes, nil
}

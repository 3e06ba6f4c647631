// Package cluster runs several in-process Meshes wired together over
// real loopback TCP connections, for tests and interactive evaluation of
// propagation behaviour without needing separate machines or processes.
package cluster

import (
	"fmt"
	"net"
	"strconv"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/nodegossip/gossipmesh"
)

// Member is one Mesh in the simulated cluster plus the local node it
// exposes for injecting broadcasts and solicitations.
type Member struct {
	Mesh *gossipmesh.Mesh
	Node *gossipmesh.Node
}

// Cluster manages a local, all-loopback fleet used for testing and
// interactive evaluation.
type Cluster struct {
	members []*Member
}

// NewCluster returns an empty cluster.
func NewCluster() *Cluster {
	return &Cluster{}
}

// AddNode creates a fresh single-node Mesh listening on an OS-assigned
// loopback port.
func (c *Cluster) AddNode(options ...gossipmesh.Option) (*Member, error) {
	cfg := gossipmesh.Config{
		Eripa:     "127.0.0.1",
		Ephemeral: true,
		NumNodes:  1,
	}
	mesh, err := gossipmesh.Create(cfg, options...)
	if err != nil {
		return nil, err
	}

	member := &Member{Mesh: mesh, Node: mesh.LocalNodes()[0]}
	c.members = append(c.members, member)
	return member, nil
}

// AddNodes creates n fresh nodes, aggregating any failures rather than
// stopping at the first.
func (c *Cluster) AddNodes(n int, options ...gossipmesh.Option) ([]*Member, error) {
	var errs error
	members := make([]*Member, 0, n)
	for i := 0; i < n; i++ {
		m, err := c.AddNode(options...)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		members = append(members, m)
	}
	return members, errs
}

// FullyConnect wires every pair of members as direct neighbors, the
// densest possible topology, useful for tests that want to isolate
// propagation logic from graph connectivity.
func (c *Cluster) FullyConnect() error {
	for _, a := range c.members {
		for _, b := range c.members {
			if a == b {
				continue
			}
			if err := c.connect(a, b); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Cluster) connect(from, to *Member) error {
	addr := to.Mesh.ListenAddrs()[0]
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("cluster: bad listen addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("cluster: bad listen port %q: %w", portStr, err)
	}
	if host == "::" || host == "0.0.0.0" || host == "" {
		host = "127.0.0.1"
	}
	return from.Mesh.ConnectPeer(from.Node.UID(), host, port, to.Node.UID())
}

// Shutdown tears down every member's Mesh, aggregating any failures.
func (c *Cluster) Shutdown() error {
	var errs error
	for _, m := range c.members {
		if err := m.Mesh.Shutdown(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

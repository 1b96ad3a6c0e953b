package tasks

import (
	"context"
	"fmt"

	"github.com/nomis52/nodeflow/clients/sshclient"
	"github.com/nomis52/nodeflow/config"
	"github.com/nomis52/nodeflow/orchestrator"
)

// BuildOption configures Build.
type BuildOption func(*builder)

// WithDialer overrides how SSH nodes connect to the named host.
func WithDialer(host string, dial DialFunc) BuildOption {
	return func(b *builder) {
		b.dialers[host] = dial
	}
}

type builder struct {
	cfg      config.Config
	dialers  map[string]DialFunc
	byName   map[string]config.NodeConfig
	built    map[string]orchestrator.Node
	visiting map[string]bool
	path     []string
}

// Build creates the nodes described by cfg.Nodes, in configuration order.
// Parents are resolved by name; an unknown parent is an error and a cycle
// is reported as an *orchestrator.CycleError.
func Build(cfg config.Config, opts ...BuildOption) ([]orchestrator.Node, error) {
	b := &builder{
		cfg:      cfg,
		dialers:  make(map[string]DialFunc),
		byName:   make(map[string]config.NodeConfig, len(cfg.Nodes)),
		built:    make(map[string]orchestrator.Node, len(cfg.Nodes)),
		visiting: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}

	for _, nc := range cfg.Nodes {
		if _, dup := b.byName[nc.Name]; dup {
			return nil, fmt.Errorf("node %q: duplicate name", nc.Name)
		}
		b.byName[nc.Name] = nc
	}

	nodes := make([]orchestrator.Node, 0, len(cfg.Nodes))
	for _, nc := range cfg.Nodes {
		n, err := b.node(nc.Name)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (b *builder) node(name string) (orchestrator.Node, error) {
	if n, ok := b.built[name]; ok {
		return n, nil
	}
	nc, ok := b.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown node %q", name)
	}
	if b.visiting[name] {
		start := 0
		for i, p := range b.path {
			if p == name {
				start = i
			}
		}
		cycle := append(append([]string(nil), b.path[start:]...), name)
		return nil, &orchestrator.CycleError{Nodes: cycle}
	}

	b.visiting[name] = true
	b.path = append(b.path, name)
	parents := make([]orchestrator.Node, 0, len(nc.Parents))
	for _, p := range nc.Parents {
		if _, ok := b.byName[p]; !ok {
			return nil, fmt.Errorf("node %q: unknown parent %q", name, p)
		}
		pn, err := b.node(p)
		if err != nil {
			return nil, err
		}
		parents = append(parents, pn)
	}
	b.path = b.path[:len(b.path)-1]
	b.visiting[name] = false

	n, err := b.create(nc, parents)
	if err != nil {
		return nil, err
	}
	b.built[name] = n
	return n, nil
}

func (b *builder) create(nc config.NodeConfig, parents []orchestrator.Node) (orchestrator.Node, error) {
	if nc.Host == "" {
		n, err := NewCommandNode(nc.Name, parents, nc.Command)
		if err != nil {
			return nil, err
		}
		n.Dir = nc.Dir
		n.Env = nc.Env
		return n, nil
	}

	dial, ok := b.dialers[nc.Host]
	if !ok {
		host, ok := b.cfg.SSHHosts[nc.Host]
		if !ok {
			return nil, fmt.Errorf("node %q: unknown ssh host %q", nc.Name, nc.Host)
		}
		dial = keyFileDialer(host)
	}

	n, err := NewSSHNode(nc.Name, parents, nc.Host, nc.Command, dial)
	if err != nil {
		return nil, err
	}
	n.Dir = nc.Dir
	n.Env = nc.Env
	return n, nil
}

// keyFileDialer reads the key when the node runs, so building a graph does
// not require access to the key file.
func keyFileDialer(host config.SSHHostConfig) DialFunc {
	return func(ctx context.Context) (RemoteClient, error) {
		key, err := sshclient.ReadKeyFile(host.KeyFile)
		if err != nil {
			return nil, err
		}
		return SSHDialer(sshclient.Config{
			Address:        host.Address,
			Port:           host.Port,
			User:           host.User,
			PrivateKey:     key,
			KnownHostsFile: host.KnownHosts,
			Timeout:        host.Timeout,
		})(ctx)
	}
}

package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// IdentityScheme selects how node identities are assigned for the
// checkpoint ledger.
type IdentityScheme int

const (
	// ContentIdentity derives an identity from the node name and the
	// identities of its parents. Identities are stable across runs no matter
	// in which order nodes are registered or dispatched.
	ContentIdentity IdentityScheme = iota

	// SequentialIdentity numbers nodes "1", "2", ... in dispatch order.
	// Resuming is only correct when the graph is registered identically.
	SequentialIdentity
)

func (s IdentityScheme) String() string {
	switch s {
	case ContentIdentity:
		return "content"
	case SequentialIdentity:
		return "sequential"
	default:
		return "unknown"
	}
}

// ParseIdentityScheme parses "content" or "sequential". The empty string
// selects ContentIdentity.
func ParseIdentityScheme(s string) (IdentityScheme, error) {
	switch strings.ToLower(s) {
	case "", "content":
		return ContentIdentity, nil
	case "sequential":
		return SequentialIdentity, nil
	default:
		return 0, fmt.Errorf("unknown identity scheme %q", s)
	}
}

// identifier assigns identities for one run.
type identifier struct {
	scheme  IdentityScheme
	counter int
	content map[Node]NodeID
}

func newIdentifier(scheme IdentityScheme, nodes []Node) (*identifier, error) {
	id := &identifier{scheme: scheme}
	if scheme != ContentIdentity {
		return id, nil
	}

	id.content = make(map[Node]NodeID, len(nodes))
	owners := make(map[NodeID]Node, len(nodes))
	for _, n := range nodes {
		nid := id.contentID(n)
		if other, ok := owners[nid]; ok {
			return nil, validationErrorf(n.Name(),
				"nodes %q and %q have the same name and parents, so their content identities collide", other.Name(), n.Name())
		}
		owners[nid] = n
	}
	return id, nil
}

// contentID must only be called on an acyclic graph.
func (id *identifier) contentID(n Node) NodeID {
	if nid, ok := id.content[n]; ok {
		return nid
	}

	parents := n.Parents()
	parentIDs := make([]string, 0, len(parents))
	for _, p := range parents {
		parentIDs = append(parentIDs, string(id.contentID(p)))
	}
	sort.Strings(parentIDs)

	h := sha256.New()
	h.Write([]byte(n.Name()))
	for _, p := range parentIDs {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	nid := NodeID(hex.EncodeToString(h.Sum(nil))[:32])
	id.content[n] = nid
	return nid
}

// assign returns the identity of n for this run. Sequential identities are
// handed out in call order, so assign must be called from the driver loop only.
func (id *identifier) assign(n Node) NodeID {
	if id.scheme == SequentialIdentity {
		id.counter++
		return NodeID(strconv.Itoa(id.counter))
	}
	return id.contentID(n)
}

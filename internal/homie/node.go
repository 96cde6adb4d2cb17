package homie

import (
	"fmt"
	"strings"
	"sync"
)

// Node groups related properties, e.g. "controls" or "status".
type Node struct {
	device *Device
	id     string
	name   string
	typ    string

	mu         sync.RWMutex
	properties []*Property
	byID       map[string]*Property
}

// ID returns the node ID.
func (n *Node) ID() string { return n.id }

// Name returns the node $name.
func (n *Node) Name() string { return n.name }

// Type returns the node $type.
func (n *Node) Type() string { return n.typ }

// AddProperty declares a property on the node.
// Properties must be added before the device is started.
//
// Returns:
//   - *Property: Handle for setting values
//   - error: ErrAlreadyStarted, ErrInvalidID, ErrDuplicateID or ErrInvalidFormat
func (n *Node) AddProperty(spec PropertySpec) (*Property, error) {
	if n.device.isStarted() {
		return nil, ErrAlreadyStarted
	}

	p, err := newProperty(n, spec)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.byID[spec.ID]; exists {
		return nil, fmt.Errorf("%w: property %s/%s", ErrDuplicateID, n.id, spec.ID)
	}
	n.properties = append(n.properties, p)
	n.byID[spec.ID] = p
	return p, nil
}

// Property returns a property by ID.
func (n *Node) Property(id string) (*Property, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.byID[id]
	return p, ok
}

// Properties returns the node's properties in declaration order.
func (n *Node) Properties() []*Property {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]*Property(nil), n.properties...)
}

// propertyIDs is the $properties attribute value.
func (n *Node) propertyIDs() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]string, len(n.properties))
	for i, p := range n.properties {
		ids[i] = p.spec.ID
	}
	return strings.Join(ids, ",")
}

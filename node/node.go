package node

import (
	"time"

	"github.com/google/uuid"
)

type Status uint8

const (
	Active Status = iota
	Inactive
)

func (s Status) String() string {
	switch s {
	case Active:
		return "Active"
	case Inactive:
		return "Inactive"
	default:
		return "Unknown"
	}
}

// Node is one data-holding participant. Nodes are never deleted; a node
// that stops heartbeating is marked Inactive.
type Node struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	Status       Status    `json:"status"`
	LastSeen     time.Time `json:"last_seen"`
	RegisteredAt time.Time `json:"registered_at"`
}

type NodePage struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
	Total  uint64 `json:"total"`
	Nodes  []Node `json:"nodes"`
}

func NewNode(name, address string) Node {
	now := time.Now()

	return Node{
		ID:           uuid.NewString(),
		Name:         name,
		Address:      address,
		Status:       Active,
		LastSeen:     now,
		RegisteredAt: now,
	}
}

func (n *Node) Heartbeat() {
	n.Status = Active
	n.LastSeen = time.Now()
}

// SetAlive refreshes Status from LastSeen using the given liveness window.
func (n *Node) SetAlive(window time.Duration) {
	if time.Since(n.LastSeen) > window {
		n.Status = Inactive

		return
	}
	n.Status = Active
}

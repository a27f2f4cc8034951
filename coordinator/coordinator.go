package coordinator

import (
	"context"

	"github.com/fedloop/fedloop/node"
	"github.com/fedloop/fedloop/pkg/drift"
	"github.com/fedloop/fedloop/session"
)

type Service interface {
	// StartSession opens a new retraining session for the cluster named in
	// cfg. At most one session per cluster may be running at a time.
	StartSession(ctx context.Context, cfg session.Config, trigger session.TriggerSource) (session.Session, error)

	// RegisterClient admits a node into a running session. Duplicate
	// registrations are rejected.
	RegisterClient(ctx context.Context, sessionID string, n node.Node) error

	// SubmitUpdate accepts one node's contribution to the open round.
	SubmitUpdate(ctx context.Context, update session.ClientUpdate) error

	// SubmitUpdateCBOR decodes a CBOR-encoded update and submits it.
	SubmitUpdateCBOR(ctx context.Context, payload []byte) error

	// AbortSession stops acceptance of further updates and releases node
	// registrations. Submissions racing with the abort are rejected.
	AbortSession(ctx context.Context, sessionID string) error

	// ResumeSession rebuilds a session from its last checkpoint and
	// continues from the round after the last closed one.
	ResumeSession(ctx context.Context, sessionID string) error

	GetSession(ctx context.Context, sessionID string) (session.Session, error)
	ListSessions(ctx context.Context, offset, limit uint64) (session.SessionPage, error)
	GetOpenRound(ctx context.Context, sessionID string) (session.Round, error)

	// CheckDrift runs the drift monitor over two windows. It never touches
	// session state and never blocks coordination.
	CheckDrift(ctx context.Context, reference, current drift.Window) (drift.Report, error)

	CreateNode(ctx context.Context, name, address string) (node.Node, error)
	GetNode(ctx context.Context, nodeID string) (node.Node, error)
	ListNodes(ctx context.Context, offset, limit uint64) (node.NodePage, error)

	// Subscribe attaches the MQTT intake: update submissions, node
	// heartbeats and offline notices.
	Subscribe(ctx context.Context) error
}

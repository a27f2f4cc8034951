package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fedloop/fedloop/node"
	"github.com/fedloop/fedloop/pkg/errors"
)

const (
	updatesTopic     = "fedloop/updates"
	updatesCBORTopic = "fedloop/updates/cbor"
	aliveTopic       = "fedloop/clusters/+/nodes/alive"
	offlineTopic     = "fedloop/clusters/+/nodes/offline"
	promotedTopic    = "fedloop/models/promoted"
)

// Subscribe attaches the MQTT intake. Update submissions arrive as JSON
// on the updates topic and as CBOR on its /cbor sibling; both funnel into
// the same SubmitUpdate path so every check applies regardless of
// encoding. Heartbeats and broker last-will notices drive node liveness.
func (svc *service) Subscribe(ctx context.Context) error {
	if svc.pubsub == nil {
		return nil
	}

	if err := svc.pubsub.Subscribe(ctx, updatesTopic, svc.handleUpdate(ctx)); err != nil {
		return fmt.Errorf("failed to subscribe to updates topic: %w", err)
	}

	if err := svc.pubsub.SubscribeRaw(ctx, updatesCBORTopic, svc.handleUpdateCBOR(ctx)); err != nil {
		return fmt.Errorf("failed to subscribe to CBOR updates topic: %w", err)
	}

	if err := svc.pubsub.Subscribe(ctx, aliveTopic, svc.handleAlive(ctx)); err != nil {
		return fmt.Errorf("failed to subscribe to node liveness topic: %w", err)
	}

	if err := svc.pubsub.Subscribe(ctx, offlineTopic, svc.handleOffline(ctx)); err != nil {
		return fmt.Errorf("failed to subscribe to node offline topic: %w", err)
	}

	return nil
}

func (svc *service) handleUpdate(ctx context.Context) func(topic string, msg map[string]any) error {
	return func(topic string, msg map[string]any) error {
		update, err := decodeUpdate(msg)
		if err != nil {
			return fmt.Errorf("failed to decode update: %w", err)
		}

		if err := svc.SubmitUpdate(ctx, update); err != nil {
			// Rejections are per-update outcomes, not intake failures.
			svc.logger.Warn("rejected client update",
				slog.String("session_id", update.SessionID),
				slog.String("node_id", update.NodeID),
				slog.Int("round", update.Round),
				slog.Any("error", err))
		}

		return nil
	}
}

func (svc *service) handleUpdateCBOR(ctx context.Context) func(topic string, payload []byte) error {
	return func(topic string, payload []byte) error {
		if err := svc.SubmitUpdateCBOR(ctx, payload); err != nil {
			svc.logger.Warn("rejected CBOR client update", slog.Any("error", err))
		}

		return nil
	}
}

func (svc *service) handleAlive(ctx context.Context) func(topic string, msg map[string]any) error {
	return func(topic string, msg map[string]any) error {
		nodeID, ok := msg["node_id"].(string)
		if !ok || nodeID == "" {
			return errors.ErrInvalidData
		}

		n, err := svc.nodes.Get(ctx, nodeID)
		if err != nil {
			return err
		}
		n.Heartbeat()

		return svc.nodes.Update(ctx, n)
	}
}

func (svc *service) handleOffline(ctx context.Context) func(topic string, msg map[string]any) error {
	return func(topic string, msg map[string]any) error {
		nodeID, ok := msg["node_id"].(string)
		if !ok || nodeID == "" {
			return errors.ErrInvalidData
		}

		n, err := svc.nodes.Get(ctx, nodeID)
		if err != nil {
			return err
		}
		n.Status = node.Inactive

		return svc.nodes.Update(ctx, n)
	}
}

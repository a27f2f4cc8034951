package storage

import (
	"context"

	"github.com/fedloop/fedloop/node"
	"github.com/fedloop/fedloop/pkg/errors"
	"github.com/fedloop/fedloop/session"
)

type SessionRepository interface {
	Create(ctx context.Context, s session.Session) error
	Get(ctx context.Context, id string) (session.Session, error)
	Update(ctx context.Context, s session.Session) error
	List(ctx context.Context, offset, limit uint64) ([]session.Session, uint64, error)
}

type NodeRepository interface {
	Create(ctx context.Context, n node.Node) error
	Get(ctx context.Context, id string) (node.Node, error)
	Update(ctx context.Context, n node.Node) error
	List(ctx context.Context, offset, limit uint64) ([]node.Node, uint64, error)
}

type sessionRepository struct {
	db Storage
}

func NewSessionRepository(db Storage) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, s session.Session) error {
	return r.db.Create(ctx, s.ID, s)
}

func (r *sessionRepository) Get(ctx context.Context, id string) (session.Session, error) {
	data, err := r.db.Get(ctx, id)
	if err != nil {
		return session.Session{}, err
	}
	s, ok := data.(session.Session)
	if !ok {
		return session.Session{}, errors.ErrInvalidData
	}

	return s, nil
}

func (r *sessionRepository) Update(ctx context.Context, s session.Session) error {
	return r.db.Update(ctx, s.ID, s)
}

func (r *sessionRepository) List(ctx context.Context, offset, limit uint64) ([]session.Session, uint64, error) {
	data, total, err := r.db.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	sessions := make([]session.Session, len(data))
	for i := range data {
		s, ok := data[i].(session.Session)
		if !ok {
			return nil, 0, errors.ErrInvalidData
		}
		sessions[i] = s
	}

	return sessions, total, nil
}

type nodeRepository struct {
	db Storage
}

func NewNodeRepository(db Storage) NodeRepository {
	return &nodeRepository{db: db}
}

func (r *nodeRepository) Create(ctx context.Context, n node.Node) error {
	return r.db.Create(ctx, n.ID, n)
}

func (r *nodeRepository) Get(ctx context.Context, id string) (node.Node, error) {
	data, err := r.db.Get(ctx, id)
	if err != nil {
		return node.Node{}, err
	}
	n, ok := data.(node.Node)
	if !ok {
		return node.Node{}, errors.ErrInvalidData
	}

	return n, nil
}

func (r *nodeRepository) Update(ctx context.Context, n node.Node) error {
	return r.db.Update(ctx, n.ID, n)
}

func (r *nodeRepository) List(ctx context.Context, offset, limit uint64) ([]node.Node, uint64, error) {
	data, total, err := r.db.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	nodes := make([]node.Node, len(data))
	for i := range data {
		n, ok := data[i].(node.Node)
		if !ok {
			return nil, 0, errors.ErrInvalidData
		}
		nodes[i] = n
	}

	return nodes, total, nil
}

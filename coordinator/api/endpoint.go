package api

import (
	"context"
	"errors"

	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"

	"github.com/fedloop/fedloop/coordinator"
	pkgerrors "github.com/fedloop/fedloop/pkg/errors"
	"github.com/fedloop/fedloop/scheduler"
)

func startSessionEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(startSessionReq)
		if !ok {
			return sessionResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return sessionResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		sess, err := svc.StartSession(ctx, req.Config, req.Trigger)
		if err != nil {
			return sessionResponse{}, err
		}

		return sessionResponse{
			Session: sess,
			created: true,
		}, nil
	}
}

func registerClientEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(registerClientReq)
		if !ok {
			return nodeResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return nodeResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		n, err := svc.GetNode(ctx, req.NodeID)
		if err != nil {
			return nodeResponse{}, err
		}
		if err := svc.RegisterClient(ctx, req.sessionID, n); err != nil {
			return nodeResponse{}, err
		}

		return nodeResponse{
			Node:    n,
			created: true,
		}, nil
	}
}

func submitUpdateEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(submitUpdateReq)
		if !ok {
			return updateResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return updateResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		if err := svc.SubmitUpdate(ctx, req.ClientUpdate); err != nil {
			return updateResponse{}, err
		}

		return updateResponse{accepted: true}, nil
	}
}

func submitUpdateCBOREndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(submitUpdateCBORReq)
		if !ok {
			return updateResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return updateResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		if err := svc.SubmitUpdateCBOR(ctx, req.payload); err != nil {
			return updateResponse{}, err
		}

		return updateResponse{accepted: true}, nil
	}
}

func abortSessionEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return sessionResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return sessionResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		if err := svc.AbortSession(ctx, req.id); err != nil {
			return sessionResponse{}, err
		}

		sess, err := svc.GetSession(ctx, req.id)
		if err != nil {
			return sessionResponse{}, err
		}

		return sessionResponse{Session: sess}, nil
	}
}

func resumeSessionEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return sessionResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return sessionResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		if err := svc.ResumeSession(ctx, req.id); err != nil {
			return sessionResponse{}, err
		}

		sess, err := svc.GetSession(ctx, req.id)
		if err != nil {
			return sessionResponse{}, err
		}

		return sessionResponse{Session: sess}, nil
	}
}

func getSessionEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return sessionResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return sessionResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		sess, err := svc.GetSession(ctx, req.id)
		if err != nil {
			return sessionResponse{}, err
		}

		return sessionResponse{Session: sess}, nil
	}
}

func listSessionsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listSessionResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listSessionResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListSessions(ctx, req.offset, req.limit)
		if err != nil {
			return listSessionResponse{}, err
		}

		return listSessionResponse{
			SessionPage: page,
		}, nil
	}
}

func getOpenRoundEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return roundResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return roundResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		round, err := svc.GetOpenRound(ctx, req.id)
		if err != nil {
			return roundResponse{}, err
		}

		return roundResponse{Round: round}, nil
	}
}

func checkDriftEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(checkDriftReq)
		if !ok {
			return driftResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return driftResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		report, err := svc.CheckDrift(ctx, req.Reference, req.Current)
		if err != nil {
			return driftResponse{}, err
		}

		return driftResponse{Report: report}, nil
	}
}

func createNodeEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(createNodeReq)
		if !ok {
			return nodeResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return nodeResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		n, err := svc.CreateNode(ctx, req.Name, req.Address)
		if err != nil {
			return nodeResponse{}, err
		}

		return nodeResponse{
			Node:    n,
			created: true,
		}, nil
	}
}

func getNodeEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return nodeResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return nodeResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		n, err := svc.GetNode(ctx, req.id)
		if err != nil {
			return nodeResponse{}, err
		}

		return nodeResponse{Node: n}, nil
	}
}

func listNodesEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listNodeResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listNodeResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListNodes(ctx, req.offset, req.limit)
		if err != nil {
			return listNodeResponse{}, err
		}

		return listNodeResponse{
			NodePage: page,
		}, nil
	}
}

func retrainEndpoint(sched scheduler.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(retrainReq)
		if !ok {
			return sessionResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return sessionResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		sess, err := sched.TriggerRetrain(ctx, req.Trigger)
		if err != nil {
			return sessionResponse{}, err
		}

		return sessionResponse{
			Session: sess,
			created: true,
		}, nil
	}
}

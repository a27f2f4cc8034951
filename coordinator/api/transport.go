package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fedloop/fedloop/coordinator"
	"github.com/fedloop/fedloop/pkg/api"
	"github.com/fedloop/fedloop/scheduler"
)

const maxUpdateSize = 1024 * 1024 * 16

func MakeHandler(svc coordinator.Service, sched scheduler.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Route("/sessions", func(r chi.Router) {
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			startSessionEndpoint(svc),
			decodeStartSessionReq,
			api.EncodeResponse,
			opts...,
		), "start-session").ServeHTTP)
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listSessionsEndpoint(svc),
			decodeListEntityReq,
			api.EncodeResponse,
			opts...,
		), "list-sessions").ServeHTTP)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
				getSessionEndpoint(svc),
				decodeEntityReq("sessionID"),
				api.EncodeResponse,
				opts...,
			), "get-session").ServeHTTP)
			r.Post("/abort", otelhttp.NewHandler(kithttp.NewServer(
				abortSessionEndpoint(svc),
				decodeEntityReq("sessionID"),
				api.EncodeResponse,
				opts...,
			), "abort-session").ServeHTTP)
			r.Post("/resume", otelhttp.NewHandler(kithttp.NewServer(
				resumeSessionEndpoint(svc),
				decodeEntityReq("sessionID"),
				api.EncodeResponse,
				opts...,
			), "resume-session").ServeHTTP)
			r.Get("/round", otelhttp.NewHandler(kithttp.NewServer(
				getOpenRoundEndpoint(svc),
				decodeEntityReq("sessionID"),
				api.EncodeResponse,
				opts...,
			), "get-open-round").ServeHTTP)
			r.Post("/clients", otelhttp.NewHandler(kithttp.NewServer(
				registerClientEndpoint(svc),
				decodeRegisterClientReq,
				api.EncodeResponse,
				opts...,
			), "register-client").ServeHTTP)
		})
	})

	mux.Route("/updates", func(r chi.Router) {
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			submitUpdateEndpoint(svc),
			decodeSubmitUpdateReq,
			api.EncodeResponse,
			opts...,
		), "submit-update").ServeHTTP)
		r.Post("/cbor", otelhttp.NewHandler(kithttp.NewServer(
			submitUpdateCBOREndpoint(svc),
			decodeSubmitUpdateCBORReq,
			api.EncodeResponse,
			opts...,
		), "submit-update-cbor").ServeHTTP)
	})

	mux.Post("/drift/check", otelhttp.NewHandler(kithttp.NewServer(
		checkDriftEndpoint(svc),
		decodeCheckDriftReq,
		api.EncodeResponse,
		opts...,
	), "check-drift").ServeHTTP)

	mux.Route("/nodes", func(r chi.Router) {
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			createNodeEndpoint(svc),
			decodeCreateNodeReq,
			api.EncodeResponse,
			opts...,
		), "create-node").ServeHTTP)
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listNodesEndpoint(svc),
			decodeListEntityReq,
			api.EncodeResponse,
			opts...,
		), "list-nodes").ServeHTTP)
		r.Get("/{nodeID}", otelhttp.NewHandler(kithttp.NewServer(
			getNodeEndpoint(svc),
			decodeEntityReq("nodeID"),
			api.EncodeResponse,
			opts...,
		), "get-node").ServeHTTP)
	})

	mux.Post("/retrain", otelhttp.NewHandler(kithttp.NewServer(
		retrainEndpoint(sched),
		decodeRetrainReq,
		api.EncodeResponse,
		opts...,
	), "retrain").ServeHTTP)

	mux.Get("/health", supermq.Health("coordinator", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeStartSessionReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req startSessionReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return req, nil
}

func decodeRegisterClientReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req registerClientReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}
	req.sessionID = chi.URLParam(r, "sessionID")

	return req, nil
}

func decodeSubmitUpdateReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req submitUpdateReq
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateSize)).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return req, nil
}

func decodeSubmitUpdateCBORReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentTypeCBOR) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateSize))
	if err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return submitUpdateCBORReq{payload: payload}, nil
}

func decodeCheckDriftReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req checkDriftReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return req, nil
}

func decodeCreateNodeReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req createNodeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return req, nil
}

func decodeRetrainReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req retrainReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return req, nil
}

func decodeEntityReq(key string) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (any, error) {
		return entityReq{
			id: chi.URLParam(r, key),
		}, nil
	}
}

func decodeListEntityReq(_ context.Context, r *http.Request) (any, error) {
	o, err := apiutil.ReadNumQuery[uint64](r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	l, err := apiutil.ReadNumQuery[uint64](r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return listEntityReq{
		offset: o,
		limit:  l,
	}, nil
}

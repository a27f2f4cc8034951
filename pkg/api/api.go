package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"

	pkgerrors "github.com/fedloop/fedloop/pkg/errors"
)

const (
	OffsetKey = "offset"
	LimitKey  = "limit"
	DefOffset = 0
	DefLimit  = 100

	ContentType     = "application/json"
	ContentTypeCBOR = "application/cbor"

	MaxLimitSize = 100
)

func EncodeResponse(_ context.Context, w http.ResponseWriter, response interface{}) error {
	if ar, ok := response.(supermq.Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	return json.NewEncoder(w).Encode(response)
}

func EncodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	switch {
	case errors.Is(err, apiutil.ErrValidation),
		errors.Is(err, pkgerrors.ErrEmptyKey),
		errors.Is(err, pkgerrors.ErrInvalidData),
		errors.Is(err, pkgerrors.ErrMalformedUpdate),
		errors.Is(err, pkgerrors.ErrStaleRound),
		errors.Is(err, pkgerrors.ErrInsufficientData):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, pkgerrors.ErrNotFound),
		errors.Is(err, pkgerrors.ErrNodeNotRegistered):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, pkgerrors.ErrEntityExists),
		errors.Is(err, pkgerrors.ErrSessionAlreadyRunning),
		errors.Is(err, pkgerrors.ErrCooldownActive),
		errors.Is(err, pkgerrors.ErrDuplicateUpdate):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, pkgerrors.ErrSessionNotRunning),
		errors.Is(err, pkgerrors.ErrSessionAborted),
		errors.Is(err, pkgerrors.ErrNodeExcluded):
		w.WriteHeader(http.StatusUnprocessableEntity)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	if err := json.NewEncoder(w).Encode(errorRes{Err: err.Error()}); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

type errorRes struct {
	Err string `json:"error"`
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/domain/interfaces"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"github.com/secmon-lab/tributary/pkg/usecase"
	"github.com/secmon-lab/tributary/pkg/utils/errutil"
	"github.com/secmon-lab/tributary/pkg/utils/safe"
)

const maxBodySize = 1 << 20

var errBadRequest = goerr.New("bad request")

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	safe.Write(ctx, w, data)
}

// decodeJSON reads the request body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	defer safe.Close(r.Context(), r.Body)

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return goerr.Wrap(errBadRequest, "invalid request body: "+err.Error())
	}
	return nil
}

// statusOf maps domain and use case errors to an HTTP status
func statusOf(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, model.ErrInvalidConnection),
		errors.Is(err, model.ErrInvalidMapping),
		errors.Is(err, types.ErrInvalidPlatform),
		errors.Is(err, usecase.ErrUserDiscoveryUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrAlreadyExists),
		errors.Is(err, usecase.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, usecase.ErrConnectionTestFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	errutil.HandleHTTP(ctx, w, err, statusOf(err))
}

func connectionID(r *http.Request) model.ConnectionID {
	return model.ConnectionID(chi.URLParam(r, "connectionID"))
}

func mappingID(r *http.Request) model.UserMappingID {
	return model.UserMappingID(chi.URLParam(r, "mappingID"))
}

// queryInt parses an optional positive integer query parameter
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, goerr.Wrap(errBadRequest, "invalid "+key, goerr.V(key, raw))
	}
	return n, nil
}

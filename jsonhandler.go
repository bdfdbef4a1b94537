package grantrelay

import (
	"encoding/json"
	"net/http"

	"github.com/dpup/grantrelay/errors"
	"github.com/dpup/grantrelay/logging"
	"google.golang.org/genproto/googleapis/rpc/code"
	"google.golang.org/grpc/codes"
)

// JSONHandler are regular HTTP handlers that return a value to be encoded as
// JSON. A json.RawMessage is written verbatim.
type JSONHandler func(req *http.Request) (any, error)

// ErrorResponse is the body written for failed JSON requests. Message is the
// error's public message, internal detail only ever goes to the logs.
type ErrorResponse struct {
	Code     int32  `json:"code"`
	CodeName string `json:"codeName"`
	Message  string `json:"message"`
}

func wrapJSONHandler(fn JSONHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, err := fn(r)
		if err != nil {
			WriteJSONError(w, r, err)
			return
		}
		b, err := encodeJSON(resp)
		if err != nil {
			WriteJSONError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, b)
	})
}

// WriteJSONError logs err against the request scope and writes the public
// representation of it.
func WriteJSONError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status := errors.HTTPStatusCode(err)
	logging.TrackError(ctx, err)
	if status >= http.StatusInternalServerError {
		logging.Errorw(ctx, "json handler error", "error", err, "req.url", r.URL.Path)
	} else {
		logging.Warnw(ctx, "json handler rejected request", "error", err, "req.url", r.URL.Path)
	}

	c := int32(errors.Code(err))
	b, ferr := encodeJSON(&ErrorResponse{
		Code:     c,
		CodeName: code.Code_name[c],
		Message:  errors.PublicMessage(err),
	})
	if ferr != nil {
		http.Error(w, "error encoding response", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, status, b)
}

// encodeJSON runs before any header is written, so a value that can't be
// encoded still gets an error response.
func encodeJSON(v any) ([]byte, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithCode(errors.WrapPrefix(err, "encoding response", 0), codes.Internal)
	}
	return b, nil
}

// writeJSON sends the status and body. Once the status is out a failed write
// can only be logged.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logging.Warnw(r.Context(), "writing response body failed", "error", err, "status", status)
	}
}

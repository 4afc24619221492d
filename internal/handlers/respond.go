package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/firmscope/core/internal/graph"
	"github.com/firmscope/core/internal/parser"
	"github.com/firmscope/core/internal/session"
)

var errMissingPoint = errors.New("x and y are required")

// writeJSON encodes v before writing any header, so an unencodable value
// becomes a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) error {
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(append(data, '\n'))
	return err
}

func (a *API) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := writeJSON(w, status, v, isPretty(r)); err != nil {
		a.logger.Error("Failed to encode response", zap.String("path", r.URL.Path), zap.Error(err))
	}
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, parser.ErrEmptyDataset),
		errors.Is(err, parser.ErrMalformedDataset),
		errors.Is(err, parser.ErrMissingNodes),
		errors.Is(err, parser.ErrMissingEdges),
		errors.Is(err, parser.ErrInvalidNode),
		errors.Is(err, graph.ErrInvalidNode),
		errors.Is(err, graph.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, graph.ErrDuplicateNode),
		errors.Is(err, session.ErrNoGraph),
		errors.Is(err, session.ErrNoDataset):
		return http.StatusConflict
	case isTooLarge(err):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
}

// floatParam reads an optional numeric query parameter.
func floatParam(r *http.Request, name string) (*float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.New("invalid " + name + ": " + raw)
	}
	return &v, nil
}

func isPretty(r *http.Request) bool {
	return r.URL.Query().Get("pretty") == "true"
}

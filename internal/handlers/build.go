package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/firmscope/core/internal/graph"
	"github.com/firmscope/core/internal/parser"
	"github.com/firmscope/core/internal/session"
)

// Options tune request handling. Zero values take the defaults.
type Options struct {
	MaxBodyBytes int64
	BuildTimeout time.Duration
}

const (
	DefaultMaxBodyBytes = 32 << 20
	DefaultBuildTimeout = 2 * time.Minute
)

// API holds the state behind the graph endpoints.
type API struct {
	session *session.Session
	params  graph.Params
	opts    Options
	logger  *zap.Logger
}

// NewAPI creates the handler set. params are the defaults for stateless builds.
func NewAPI(s *session.Session, params graph.Params, opts Options, logger *zap.Logger) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.BuildTimeout <= 0 {
		opts.BuildTimeout = DefaultBuildTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{session: s, params: params, opts: opts, logger: logger.Named("http")}
}

// BuildHandler turns a dataset body into a positioned graph without touching
// the session. factor and threshold query parameters override the defaults.
func (a *API) BuildHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params, err := a.queryParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body, err := readBody(w, r, a.opts.MaxBodyBytes)
	if err != nil {
		a.fail(w, "Failed to read request body", err)
		return
	}

	ds, err := parser.ParseDatasetFormat(body, parser.DetectFormat(r.Header.Get("Content-Type")))
	if err != nil {
		a.fail(w, "Invalid dataset", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.opts.BuildTimeout)
	defer cancel()

	g, err := graph.Build(ctx, ds, params, a.logger)
	if err != nil {
		a.fail(w, "Failed to build graph", err)
		return
	}

	a.respond(w, r, http.StatusOK, g.Snapshot())
}

func (a *API) queryParams(r *http.Request) (graph.Params, error) {
	params := a.params
	factor, err := floatParam(r, "factor")
	if err != nil {
		return params, err
	}
	threshold, err := floatParam(r, "threshold")
	if err != nil {
		return params, err
	}
	if factor != nil {
		params.NodeSizeFactor = *factor
	}
	if threshold != nil {
		params.EdgeThicknessThreshold = *threshold
	}
	return params, params.Validate()
}

// fail writes err with the status it maps to and logs server-side failures.
func (a *API) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		status = http.StatusConflict
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error(msg, zap.Error(err))
	} else {
		a.logger.Debug(msg, zap.Int("status", status), zap.Error(err))
	}
	http.Error(w, msg+": "+err.Error(), status)
}

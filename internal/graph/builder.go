package graph

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/firmscope/core/internal/models"
)

type buildFunc func(ctx context.Context, ds *models.Dataset, params Params, logger *zap.Logger) (*Graph, error)

// Builder runs builds with cancel-and-restart semantics: submitting a build
// cancels the one in flight, and only the latest submission may return a graph.
type Builder struct {
	logger *zap.Logger
	build  buildFunc

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
}

// NewBuilder creates a builder; a nil logger is replaced by a no-op logger.
func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger, build: Build}
}

// Submit builds ds, superseding any build still running. A superseded build
// returns an error wrapping context.Canceled, even if it ran to completion.
func (b *Builder) Submit(ctx context.Context, ds *models.Dataset, params Params) (*Graph, error) {
	buildCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	b.generation++
	gen := b.generation
	b.cancel = cancel
	b.mu.Unlock()

	g, err := b.build(buildCtx, ds, params, b.logger)

	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.generation {
		b.logger.Debug("build superseded", zap.Uint64("generation", gen))
		return nil, fmt.Errorf("build %d superseded: %w", gen, context.Canceled)
	}
	b.cancel = nil
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Generation returns the number of builds submitted so far.
func (b *Builder) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

// Cancel aborts the build in flight, if any.
func (b *Builder) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/idlab-discover/anomalyfusion-cli/internal/logging"
)

// Provider acquires a completed batch of samples for a request. This is the
// only asynchronous boundary in the pipeline: fusion starts once Acquire
// returns.
type Provider interface {
	Acquire(ctx context.Context, req Request) (*Batch, error)
}

// LayerSource acquires a single modality.
type LayerSource interface {
	AcquireLayer(ctx context.Context, m Modality, req Request) (*Layer, error)
}

// LayerSourceFunc adapts a function to LayerSource.
type LayerSourceFunc func(ctx context.Context, m Modality, req Request) (*Layer, error)

func (f LayerSourceFunc) AcquireLayer(ctx context.Context, m Modality, req Request) (*Layer, error) {
	return f(ctx, m, req)
}

// CompositeProvider acquires every modality from its own source concurrently.
// A source that fails marks its modality unavailable for the run; only
// cancellation of ctx aborts the whole acquisition.
type CompositeProvider struct {
	Sources map[Modality]LayerSource

	// Limit caps concurrent acquisitions. Zero means one per modality.
	Limit int
}

// NewCompositeProvider returns a provider over the given per-modality sources.
func NewCompositeProvider(sources map[Modality]LayerSource) *CompositeProvider {
	return &CompositeProvider{Sources: sources}
}

func (c *CompositeProvider) Acquire(ctx context.Context, req Request) (*Batch, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	batch := NewBatch(req.Rows, req.Cols)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if c.Limit > 0 {
		g.SetLimit(c.Limit)
	}

	for _, m := range All() {
		if !req.Wants(m) {
			batch.Set(UnavailableLayer(m, "not requested"))
			continue
		}
		src, ok := c.Sources[m]
		if !ok || src == nil {
			batch.Set(UnavailableLayer(m, "no source configured"))
			continue
		}

		logkv("", "acquire", logging.F("modality", m))
		g.Go(func() error {
			l, err := src.AcquireLayer(gctx, m, req)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err != nil && ctx.Err() != nil:
				return ctx.Err()
			case err != nil:
				logkv("", "unavailable", logging.F("modality", m), logging.F("reason", err))
				batch.Set(UnavailableLayer(m, err.Error()))
			case l == nil:
				batch.Set(UnavailableLayer(m, "source returned no layer"))
			default:
				l.Modality = m
				batch.Set(l)
				logkv("", "acquired", logging.F("modality", m), logging.F("cells", l.Covered()))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("acquire: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire: %w", err)
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	return batch, nil
}

// IsCancelled reports whether err comes from a cancelled or expired context.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

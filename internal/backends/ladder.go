package backends

import (
	"context"
	"fmt"
	"log/slog"

	lenserrors "typelens/internal/errors"
	"typelens/internal/lens"
)

// Ladder answers lens host queries from the first backend, in preference
// order, that covers the document. A backend reporting itself unavailable
// hands the query to the next one.
type Ladder struct {
	order   []Backend
	limiter *Limiter
	logger  *slog.Logger
}

// NewLadder orders backends with preferred first and the rest in the given
// order.
func NewLadder(preferred BackendID, backends []Backend, limiter *Limiter, logger *slog.Logger) *Ladder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if limiter == nil {
		limiter = NewLimiter(0)
	}

	order := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.ID() == preferred {
			order = append(order, b)
		}
	}
	for _, b := range backends {
		if b.ID() != preferred {
			order = append(order, b)
		}
	}

	return &Ladder{order: order, limiter: limiter, logger: logger}
}

// Order returns the backend IDs in preference order.
func (l *Ladder) Order() []BackendID {
	ids := make([]BackendID, len(l.order))
	for i, b := range l.order {
		ids[i] = b.ID()
	}
	return ids
}

// fallsThrough reports whether err means "ask the next backend".
func fallsThrough(err error) bool {
	switch lenserrors.CodeOf(err) {
	case lenserrors.BackendUnavailable, lenserrors.IndexMissing, lenserrors.MissingData:
		return true
	}
	return false
}

func (l *Ladder) walk(ctx context.Context, uri, op string, try func(Backend) error) error {
	var failed []BackendID
	for _, b := range l.order {
		if !b.Covers(uri) {
			continue
		}
		err := try(b)
		if err == nil || !fallsThrough(err) || ctx.Err() != nil {
			return err
		}
		failed = append(failed, b.ID())
		l.logger.Info("Falling back to next backend",
			"op", op,
			"uri", uri,
			"failed", b.ID(),
			"error", err.Error(),
		)
	}

	return lenserrors.NewLensError(
		lenserrors.BackendUnavailable,
		fmt.Sprintf("no backend can answer %s for %s (tried %v)", op, uri, failed),
		nil,
		lenserrors.GetSuggestedFixes(lenserrors.BackendUnavailable),
	)
}

// Outline implements lens.OutlineProvider.
func (l *Ladder) Outline(ctx context.Context, uri string) ([]lens.OutlineNode, error) {
	var nodes []lens.OutlineNode
	err := l.walk(ctx, uri, "outline", func(b Backend) error {
		var err error
		nodes, err = b.Outline(ctx, uri)
		return err
	})
	return nodes, err
}

// References implements lens.ReferenceProvider.
func (l *Ladder) References(ctx context.Context, uri string, pos lens.Position) ([]lens.Location, error) {
	var locs []lens.Location
	err := l.walk(ctx, uri, "references", func(b Backend) error {
		var err error
		locs, err = l.limiter.References(ctx, b.ID(), uri, pos, func(ctx context.Context) ([]lens.Location, error) {
			return b.References(ctx, uri, pos)
		})
		return err
	})
	return locs, err
}

package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vrsandeep/litpush/internal/logging"
)

// ArticleStore is what the evictor needs from persistence.
type ArticleStore interface {
	CountArticles() (int64, error)
	EvictOldestArticles(batch int) (int64, error)
}

// Evictor keeps the article table under a ceiling by deleting the oldest
// batch whenever the ceiling is exceeded.
type Evictor struct {
	store  ArticleStore
	logger *slog.Logger

	mu      sync.Mutex
	ceiling int
	batch   int
}

func NewEvictor(st ArticleStore, ceiling, batch int, logger *slog.Logger) *Evictor {
	return &Evictor{
		store:   st,
		ceiling: ceiling,
		batch:   batch,
		logger:  logging.OrDiscard(logger).With("component", "evictor"),
	}
}

// SetLimits changes the ceiling and batch size, for config reloads.
func (e *Evictor) SetLimits(ceiling, batch int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ceiling, e.batch = ceiling, batch
	e.logger.Info("retention limits updated", "ceiling", ceiling, "batch", batch)
}

// Limits returns the current ceiling and batch size.
func (e *Evictor) Limits() (ceiling, batch int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ceiling, e.batch
}

// Evict runs one pass. The lock also keeps concurrent runs from evicting twice
// for the same overflow.
func (e *Evictor) Evict(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ceiling <= 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count, err := e.store.CountArticles()
	if err != nil {
		return 0, err
	}
	if count <= int64(e.ceiling) {
		return 0, nil
	}
	removed, err := e.store.EvictOldestArticles(e.batch)
	if err != nil {
		return 0, err
	}
	e.logger.Info("evicted oldest articles", "count_before", count, "ceiling", e.ceiling, "removed", removed)
	return int(removed), nil
}

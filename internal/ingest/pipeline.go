// Package ingest turns search results for a subscription into stored
// articles, delivery records and one digest per run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vrsandeep/litpush/internal/cache"
	"github.com/vrsandeep/litpush/internal/delivery"
	"github.com/vrsandeep/litpush/internal/logging"
	"github.com/vrsandeep/litpush/internal/models"
	"github.com/vrsandeep/litpush/internal/search"
	"github.com/vrsandeep/litpush/internal/store"
)

// ResultCache is the subset of cache.Cache the pipeline uses.
type ResultCache interface {
	Lookup(ctx context.Context, query string, p cache.Params) (cache.Result, error)
	Store(ctx context.Context, query string, p cache.Params, records []models.RawRecord) error
}

// Sender delivers one digest.
type Sender interface {
	Send(ctx context.Context, to, subject, html, text string) (string, error)
}

// Result summarizes one run.
type Result struct {
	NewArticles int
	Delivered   bool
	Channel     string
	Evicted     int
	CacheKind   cache.Kind
}

// Pipeline runs the search, store and deliver steps for a subscription.
type Pipeline struct {
	store         *store.Store
	search        search.Provider
	cache         ResultCache
	sender        Sender
	evictor       *Evictor
	searchTimeout time.Duration
	claimLease    time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// Options carries the optional collaborators of a Pipeline.
type Options struct {
	Cache         ResultCache
	Evictor       *Evictor
	SearchTimeout time.Duration
	ClaimLease    time.Duration // how long claimed records stay reserved for one digest
	Now           func() time.Time
}

func NewPipeline(st *store.Store, provider search.Provider, sender Sender, opts Options, logger *slog.Logger) *Pipeline {
	p := &Pipeline{
		store:         st,
		search:        provider,
		cache:         opts.Cache,
		sender:        sender,
		evictor:       opts.Evictor,
		searchTimeout: opts.SearchTimeout,
		claimLease:    opts.ClaimLease,
		now:           opts.Now,
		logger:        logging.OrDiscard(logger).With("component", "ingest"),
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.searchTimeout <= 0 {
		p.searchTimeout = 30 * time.Second
	}
	if p.claimLease <= 0 {
		p.claimLease = 15 * time.Minute
	}
	return p
}

// RunForSubscription executes one run. Writes for articles and delivery
// records are committed before delivery is attempted; a failed delivery
// leaves the records pending for the next run.
func (p *Pipeline) RunForSubscription(ctx context.Context, sub *models.Subscription, user *models.User) (Result, error) {
	log := p.logger.With("subscription_id", sub.ID)
	var res Result

	records, kind, err := p.fetch(ctx, sub)
	res.CacheKind = kind
	if err != nil {
		return res, err
	}

	res.NewArticles, err = p.record(sub, user, records, log)
	if err != nil {
		return res, err
	}

	var deliverErr error
	res.Channel, res.Delivered, deliverErr = p.deliver(ctx, sub, user, log)

	if p.evictor != nil {
		evicted, err := p.evictor.Evict(ctx)
		if err != nil {
			log.Error("eviction failed", "error", err)
		}
		res.Evicted = evicted
	}

	log.Info("subscription run finished",
		"cache", kind, "records", len(records), "new_articles", res.NewArticles,
		"delivered", res.Delivered, "channel", res.Channel, "evicted", res.Evicted)
	return res, deliverErr
}

// fetch consults the cache and falls back to the search provider.
func (p *Pipeline) fetch(ctx context.Context, sub *models.Subscription) ([]models.RawRecord, cache.Kind, error) {
	params := cache.ParamsFor(sub)
	if p.cache != nil {
		hit, err := p.cache.Lookup(ctx, sub.Query, params)
		if err != nil {
			p.logger.Warn("cache lookup failed, searching", "subscription_id", sub.ID, "error", err)
		}
		switch {
		case err == nil && hit.Kind == cache.KindExact:
			return hit.Records, hit.Kind, nil
		case err == nil && hit.Kind == cache.KindRelaxed:
			return narrow(hit.Records, sub.LookbackDays, sub.MaxResults, p.now()), hit.Kind, nil
		}
	}

	sctx, cancel := context.WithTimeout(ctx, p.searchTimeout)
	defer cancel()
	records, err := p.search.Search(sctx, sub.Query, sub.LookbackDays, sub.MaxResults)
	if err != nil {
		if !errors.Is(err, search.ErrProvider) {
			err = fmt.Errorf("%w: %v", search.ErrProvider, err)
		}
		return nil, cache.KindMiss, err
	}
	if p.cache != nil {
		if err := p.cache.Store(ctx, sub.Query, params, records); err != nil {
			p.logger.Warn("cache store failed", "subscription_id", sub.ID, "error", err)
		}
	}
	return records, cache.KindMiss, nil
}

// record stores articles and creates delivery records in one transaction.
func (p *Pipeline) record(sub *models.Subscription, user *models.User, records []models.RawRecord, log *slog.Logger) (int, error) {
	tx, err := p.store.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	created := 0
	for _, rec := range records {
		if rec.PMID == "" {
			continue
		}
		article, _, err := p.store.UpsertArticle(tx, rec)
		if err != nil {
			return 0, err
		}
		exists, _, err := p.store.DeliveryRecordState(tx, user.ID, article.ID)
		if err != nil {
			return 0, err
		}
		if exists {
			continue
		}
		ok, reason, err := p.admit(tx, article, sub.Filters)
		if err != nil {
			return 0, err
		}
		if !ok {
			log.Debug("article filtered out", "pmid", article.PMID, "reason", reason)
			continue
		}
		inserted, err := p.store.InsertDeliveryRecord(tx, user.ID, article.ID, sub.ID)
		if err != nil {
			return 0, err
		}
		if !inserted {
			log.Error("delivery record appeared after existence check", "pmid", article.PMID, "user_id", user.ID, "defect", true)
			continue
		}
		created++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit subscription run: %w", err)
	}
	return created, nil
}

// deliver sends every pending article of the subscription as one digest.
// Records are claimed first so concurrent runs never send the same article
// twice.
func (p *Pipeline) deliver(ctx context.Context, sub *models.Subscription, user *models.User, log *slog.Logger) (string, bool, error) {
	if p.sender == nil {
		pending, err := p.store.ListPendingArticles(sub.ID)
		if err != nil || len(pending) == 0 {
			return "", false, err
		}
		return "", false, fmt.Errorf("deliver digest: %w", delivery.ErrNoChannelAvailable)
	}

	token := uuid.NewString()
	claimed, err := p.store.ClaimPendingArticles(sub.ID, token, p.now(), p.claimLease)
	if err != nil {
		return "", false, err
	}
	if len(claimed) == 0 {
		return "", false, nil
	}
	release := func() {
		if err := p.store.ReleaseClaim(token); err != nil {
			log.Error("failed to release claimed records", "articles", len(claimed), "error", err)
		}
	}

	subject, html, text, err := delivery.RenderDigest(sub, claimed)
	if err != nil {
		release()
		return "", false, err
	}
	channel, err := p.sender.Send(ctx, user.Email, subject, html, text)
	if err != nil {
		release()
		log.Warn("digest not delivered, records stay pending", "articles", len(claimed), "error", err)
		return channel, false, fmt.Errorf("deliver digest: %w", err)
	}

	if err := p.store.MarkClaimNotified(token); err != nil {
		// The digest went out; once the lease lapses these articles may be sent again.
		log.Error("failed to mark articles notified", "articles", len(claimed), "error", err)
	}
	return channel, true, nil
}

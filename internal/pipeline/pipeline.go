// Package pipeline turns one stored announcement into its derived fields and
// writes them back in a single update.
package pipeline

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/InhaCentury20/pass/internal/document"
	"github.com/InhaCentury20/pass/internal/eligibility"
	"github.com/InhaCentury20/pass/internal/fetcher"
	"github.com/InhaCentury20/pass/internal/freeform"
	"github.com/InhaCentury20/pass/internal/model"
	"github.com/InhaCentury20/pass/internal/pdfdoc"
	"github.com/InhaCentury20/pass/internal/price"
	"github.com/InhaCentury20/pass/internal/table"
	"github.com/InhaCentury20/pass/internal/tier"
)

// Defaults applied by New.
const (
	DefaultDocumentTimeout = 60 * time.Second
	DefaultWorkers         = 4
)

// Sink is the persistence side of the pipeline.
type Sink interface {
	eligibility.BaseLookup
	SaveDerived(ctx context.Context, id int64, d model.Derived) error
}

// Options tunes the pipeline.
type Options struct {
	// DocumentTimeout bounds the download of one attachment.
	DocumentTimeout time.Duration
	// Workers bounds concurrent announcements in Run.
	Workers int
	// ContextWindow is the strip height above a table searched for a channel.
	ContextWindow float64
}

// Pipeline extracts derived fields for announcements.
type Pipeline struct {
	fetcher     fetcher.Fetcher
	loader      pdfdoc.Loader
	sink        Sink
	resolver    *eligibility.Resolver
	broadcaster *tier.Broadcaster
	locator     table.Locator
	opts        Options
}

// New creates a Pipeline. broadcaster may be nil, in which case tiers are
// never predicted.
func New(f fetcher.Fetcher, loader pdfdoc.Loader, sink Sink, broadcaster *tier.Broadcaster, opts Options) *Pipeline {
	if opts.DocumentTimeout <= 0 {
		opts.DocumentTimeout = DefaultDocumentTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = table.DefaultContextWindow
	}
	return &Pipeline{
		fetcher:     f,
		loader:      loader,
		sink:        sink,
		resolver:    eligibility.NewResolver(sink),
		broadcaster: broadcaster,
		locator:     table.Locator{Window: opts.ContextWindow},
		opts:        opts,
	}
}

// Process derives and saves the fields of one announcement. Only a
// FetchError or a failed write is returned; everything else degrades to
// defaults.
func (p *Pipeline) Process(ctx context.Context, a *model.Announcement) error {
	log := zap.L().With(zap.Int64("announcement_id", a.ID), zap.String("title", a.Title))

	d, err := p.Derive(ctx, a)
	if err != nil {
		return err
	}
	if err := p.sink.SaveDerived(ctx, a.ID, d); err != nil {
		return eris.Wrapf(err, "pipeline: save derived %d", a.ID)
	}

	log.Info("pipeline: derived fields saved",
		zap.Int("prices", len(d.Prices)),
		zap.Float64("min_deposit", d.MinDeposit),
		zap.Float64("max_deposit", d.MaxDeposit),
		zap.Int("schedule_events", len(d.Schedule)),
	)
	return nil
}

// Derive computes the derived fields without writing them.
func (p *Pipeline) Derive(ctx context.Context, a *model.Announcement) (model.Derived, error) {
	log := zap.L().With(zap.Int64("announcement_id", a.ID))

	var d model.Derived
	if a.HasDocument() {
		doc, err := p.document(ctx, a, log)
		if err != nil {
			return d, err
		}
		d = p.fromDocument(ctx, a, doc, log)
	} else {
		d = p.fromBoard(ctx, a)
	}

	p.predict(ctx, a, &d, log)
	return d, nil
}

// document downloads and loads the attachment. A document that cannot be
// read is replaced by an empty one so that extraction falls back to defaults.
func (p *Pipeline) document(ctx context.Context, a *model.Announcement, log *zap.Logger) (*document.Document, error) {
	fctx, cancel := context.WithTimeout(ctx, p.opts.DocumentTimeout)
	defer cancel()

	data, err := p.fetcher.Get(fctx, a.PDFURL)
	if err != nil {
		return nil, &FetchError{URL: a.PDFURL, Err: err}
	}

	doc, err := p.loader.Load(ctx, data)
	if err != nil {
		log.Warn("pipeline: document unreadable, using defaults",
			zap.String("url", a.PDFURL),
			zap.Error(err),
		)
		return &document.Document{}, nil
	}
	return doc, nil
}

func (p *Pipeline) fromDocument(ctx context.Context, a *model.Announcement, doc *document.Document, log *zap.Logger) model.Derived {
	var (
		prices  []model.PriceRecord
		summary price.Summary
		profile model.EligibilityProfile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prices = price.FromCandidates(p.locator.Locate(doc))
		if len(prices) == 0 {
			log.Info("pipeline: no price rows in document, using fallback prices")
			prices, summary = price.Fallback()
			return nil
		}
		summary = price.Summarize(prices)
		return nil
	})
	g.Go(func() error {
		profile = p.resolver.Resolve(gctx, a.Title, doc)
		return nil
	})
	_ = g.Wait()

	board := freeform.ParseBoard(a.BoardText)
	return model.Derived{
		MinDeposit:      summary.MinDeposit,
		MaxDeposit:      summary.MaxDeposit,
		MonthlyRent:     summary.MonthlyRent,
		Prices:          prices,
		Eligibility:     profile,
		Region:          model.String(firstNonEmpty(board.Region, a.Region)),
		AddressDetail:   model.String(firstNonEmpty(board.AddressDetail, a.AddressDetail)),
		ApplicationEnd:  model.String(firstNonEmpty(board.Deadline, day(a.ApplicationEnd))),
		TotalHouseholds: firstPositive(board.TotalHouseholds, a.TotalHouseholds),
		Schedule:        board.Schedule,
		ApplicationLink: model.String(firstNonEmpty(board.ApplicationLink, a.ApplicationLink)),
		HomepageLink:    model.String(firstNonEmpty(board.HomepageLink, a.HomepageLink)),
	}
}

func (p *Pipeline) fromBoard(ctx context.Context, a *model.Announcement) model.Derived {
	r := freeform.Extract(a.BoardText)
	return model.Derived{
		MinDeposit:      r.Summary.MinDeposit,
		MaxDeposit:      r.Summary.MaxDeposit,
		MonthlyRent:     r.Summary.MonthlyRent,
		Prices:          r.Prices,
		Eligibility:     p.resolver.Resolve(ctx, a.Title, nil),
		Region:          model.String(firstNonEmpty(r.Region, a.Region)),
		AddressDetail:   model.String(firstNonEmpty(r.AddressDetail, a.AddressDetail)),
		ApplicationEnd:  model.String(firstNonEmpty(r.Deadline, day(a.ApplicationEnd))),
		TotalHouseholds: firstPositive(r.TotalHouseholds, a.TotalHouseholds),
		Schedule:        r.Schedule,
		ApplicationLink: model.String(firstNonEmpty(r.ApplicationLink, a.ApplicationLink)),
	}
}

// predict attaches tiers to d.Prices. Failures leave the tiers unset.
func (p *Pipeline) predict(ctx context.Context, a *model.Announcement, d *model.Derived, log *zap.Logger) {
	if len(d.Prices) == 0 {
		return
	}
	if p.broadcaster == nil {
		log.Debug("pipeline: classifier not configured, tiers left unset")
		return
	}

	address := a.AddressDetail
	if d.AddressDetail != nil {
		address = *d.AddressDetail
	}
	out, err := p.broadcaster.Broadcast(ctx, d.Prices, tier.Context{
		HousingType:     a.HousingType,
		Organization:    a.Organization,
		Address:         address,
		TotalHouseholds: d.TotalHouseholds,
		PostDate:        a.PostDate,
	})
	if err != nil {
		log.Warn("pipeline: tier prediction skipped", zap.Error(&ClassifierError{Err: err}))
		return
	}
	d.Prices = out
}

// Stats counts the outcome of a batch.
type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Run processes announcements concurrently, bounded by Options.Workers. A
// failing announcement is logged and counted; it never stops the batch.
func (p *Pipeline) Run(ctx context.Context, announcements []model.Announcement) (Stats, error) {
	var processed, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i := range announcements {
		a := &announcements[i]
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := p.Process(gctx, a); err != nil {
				failed.Add(1)
				zap.L().Error("pipeline: announcement failed",
					zap.Int64("announcement_id", a.ID),
					zap.Error(err),
				)
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	stats := Stats{Processed: processed.Load(), Failed: failed.Load()}
	zap.L().Info("pipeline: batch finished",
		zap.Int("announcements", len(announcements)),
		zap.Int64("processed", stats.Processed),
		zap.Int64("failed", stats.Failed),
	)
	return stats, eris.Wrap(ctx.Err(), "pipeline: run")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func day(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maltedev/shop-scraper/internal/fetcher"
	"github.com/maltedev/shop-scraper/internal/models"
	"github.com/maltedev/shop-scraper/internal/notify"
	"github.com/maltedev/shop-scraper/internal/parser"
	"github.com/maltedev/shop-scraper/internal/ratelimit"
	"github.com/maltedev/shop-scraper/internal/storage"
	"golang.org/x/sync/errgroup"
)

type State string

const (
	StatePending    State = "pending"
	StateFetching   State = "fetching"
	StateExtracting State = "extracting"
	StatePersisting State = "persisting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Store persists run artifacts and downloaded images.
type Store interface {
	Save(ctx context.Context, artifact *models.Artifact) (string, error)
	SaveImage(runID, productName string, data []byte) (string, error)
	Forget(runID string)
}

type Options struct {
	MaxPages        int
	PageTimeout     time.Duration
	PageConcurrency int
	StopOnEmptyPage bool
	DownloadImages  bool

	// OnTransition, if set, observes every state change of a run. Page is
	// zero for run-level states.
	OnTransition func(runID string, state State, page int)
}

type Service struct {
	fetcher  fetcher.Fetcher
	parser   parser.Extractor
	store    Store
	limiter  ratelimit.Limiter
	notifier notify.Notifier
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(
	f fetcher.Fetcher,
	p parser.Extractor,
	store Store,
	limiter ratelimit.Limiter,
	notifier notify.Notifier,
	opts Options,
	logger *slog.Logger,
) *Service {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if opts.PageConcurrency < 1 {
		opts.PageConcurrency = 1
	}

	return &Service{
		fetcher:  f,
		parser:   p,
		store:    store,
		limiter:  limiter,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With("component", "scraper"),
		now:      time.Now,
	}
}

// run carries the per-request state of one Scrape call.
type run struct {
	id     string
	base   *url.URL
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	observe func(string, State, int)
}

func (r *run) transition(state State, page int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = state
	r.logger.Debug("run state", "state", state, "page", page)
	if r.observe != nil {
		r.observe(r.id, state, page)
	}
}

// Validate checks a request and returns its parsed base URL.
func (s *Service) Validate(req models.ScrapeRequest) (*url.URL, error) {
	if req.Pages < 1 {
		return nil, &ValidationError{Field: "pages", Reason: "must be a positive integer"}
	}
	if s.opts.MaxPages > 0 && req.Pages > s.opts.MaxPages {
		return nil, &ValidationError{Field: "pages", Reason: fmt.Sprintf("must not exceed %d", s.opts.MaxPages)}
	}

	if req.URL == "" {
		return nil, &ValidationError{Field: "url", Reason: "is required"}
	}
	base, err := url.Parse(req.URL)
	if err != nil {
		return nil, &ValidationError{Field: "url", Reason: err.Error()}
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, &ValidationError{Field: "url", Reason: "scheme must be http or https"}
	}
	if base.Host == "" {
		return nil, &ValidationError{Field: "url", Reason: "host is required"}
	}

	return base, nil
}

// RunTimeout is the fetch deadline of a run over pages. Zero means
// unbounded.
func (s *Service) RunTimeout(pages int) time.Duration {
	if s.opts.PageTimeout <= 0 || pages < 1 {
		return 0
	}
	return time.Duration(pages) * s.opts.PageTimeout
}

// PageURL resolves the page index against base the way a browser resolves
// a relative link: "https://shop.test/page/" and 2 give
// "https://shop.test/page/2".
func PageURL(base *url.URL, page int) string {
	return base.ResolveReference(&url.URL{Path: strconv.Itoa(page)}).String()
}

// Scrape walks pages 1..req.Pages, extracts their products and persists one
// artifact for the run. Page failures are reported in the summary; only
// validation and storage failures return an error.
func (s *Service) Scrape(ctx context.Context, req models.ScrapeRequest) (*models.RunSummary, error) {
	base, err := s.Validate(req)
	if err != nil {
		return nil, err
	}

	started := s.now()
	r := &run{
		id:      storage.NewRunID(started),
		base:    base,
		observe: s.opts.OnTransition,
	}
	r.logger = s.logger.With("run_id", r.id, "url", req.URL, "pages", req.Pages)
	r.transition(StatePending, 0)

	defer s.store.Forget(r.id)

	r.logger.Info("scrape started")

	if timeout := s.RunTimeout(req.Pages); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	results := s.scrapePages(ctx, r, req.Pages)

	summary := &models.RunSummary{
		RunID:          r.id,
		PagesRequested: req.Pages,
		FailedPages:    []models.PageFailure{},
		StartedAt:      started,
	}

	var products []models.Product
	var pageURLs []string
	for _, res := range results {
		if res == nil {
			continue
		}
		if res.Err != nil {
			kind := classifyPageError(res.Err)
			r.logger.Warn("page failed", "page", res.Index, "page_url", res.URL, "kind", kind, "error", res.Err)
			summary.FailedPages = append(summary.FailedPages, models.PageFailure{
				Page:  res.Index,
				URL:   res.URL,
				Kind:  kind,
				Error: res.Err.Error(),
			})
			continue
		}

		summary.PagesSucceeded++
		for _, p := range res.Products {
			products = append(products, p)
			pageURLs = append(pageURLs, res.URL)
		}
	}

	if s.opts.DownloadImages {
		if err := s.downloadImages(ctx, r, products, pageURLs, summary); err != nil {
			r.transition(StateFailed, 0)
			return nil, fmt.Errorf("persist run %s: %w", r.id, err)
		}
	}

	r.transition(StatePersisting, 0)

	if products == nil {
		products = []models.Product{}
	}
	artifact := &models.Artifact{
		RunID:          r.id,
		SourceURL:      req.URL,
		PagesRequested: req.Pages,
		CreatedAt:      started.UTC(),
		Products:       products,
		FailedPages:    summary.FailedPages,
	}

	// The run deadline bounds fetching only; a late run is still written.
	path, err := s.store.Save(context.WithoutCancel(ctx), artifact)
	if err != nil {
		r.transition(StateFailed, 0)
		r.logger.Error("failed to persist run", "error", err)
		return nil, fmt.Errorf("persist run %s: %w", r.id, err)
	}

	summary.ArtifactPath = path
	summary.ProductCount = len(products)
	summary.FinishedAt = s.now()
	summary.Resolve()

	r.transition(StateDone, 0)
	r.logger.Info("scrape finished",
		"status", summary.Status,
		"products", summary.ProductCount,
		"pages_succeeded", summary.PagesSucceeded,
		"pages_failed", len(summary.FailedPages),
		"artifact", path,
		"duration", summary.FinishedAt.Sub(started),
	)

	if s.notifier != nil {
		if err := s.notifier.Notify(context.WithoutCancel(ctx), summary); err != nil {
			r.logger.Warn("failed to notify", "error", err)
		}
	}

	return summary, nil
}

// scrapePages returns one result per page index, in page order. Entries are
// nil for pages skipped after an early stop.
func (s *Service) scrapePages(ctx context.Context, r *run, pages int) []*models.PageResult {
	results := make([]*models.PageResult, pages)

	// lowest page index that came back empty; pages after it are dropped
	var stopAt atomic.Int64
	stopAt.Store(int64(pages + 1))

	g := new(errgroup.Group)
	g.SetLimit(s.opts.PageConcurrency)

	for i := 1; i <= pages; i++ {
		if s.opts.StopOnEmptyPage && int64(i) > stopAt.Load() {
			break
		}

		g.Go(func() error {
			if s.opts.StopOnEmptyPage && int64(i) > stopAt.Load() {
				return nil
			}

			res := s.scrapePage(ctx, r, i)
			results[i-1] = res

			if s.opts.StopOnEmptyPage && res.Err == nil && len(res.Products) == 0 {
				for {
					cur := stopAt.Load()
					if int64(i) >= cur || stopAt.CompareAndSwap(cur, int64(i)) {
						break
					}
				}
				r.logger.Info("empty page, stopping", "page", i)
			}
			return nil
		})
	}
	g.Wait()

	if limit := stopAt.Load(); limit <= int64(pages) {
		for i := int(limit); i < pages; i++ {
			results[i] = nil
		}
	}

	return results
}

func (s *Service) scrapePage(ctx context.Context, r *run, page int) *models.PageResult {
	res := &models.PageResult{Index: page, URL: PageURL(r.base, page)}

	if err := s.limiter.Wait(ctx); err != nil {
		res.Err = fmt.Errorf("%w: %w", errPageSkipped, err)
		return res
	}

	r.transition(StateFetching, page)
	body, err := s.fetcher.Fetch(ctx, res.URL)
	if err != nil {
		res.Err = err
		return res
	}

	r.transition(StateExtracting, page)
	seq, err := s.parser.Extract(string(body))
	if err != nil {
		res.Err = err
		return res
	}

	res.Products = []models.Product{}
	for p := range seq {
		p.Page = page
		res.Products = append(res.Products, p)
	}

	r.logger.Debug("page scraped", "page", page, "products", len(res.Products))

	return res
}

// downloadImages fetches product images and records where they were
// stored. Fetch failures are counted; storage failures abort the run.
func (s *Service) downloadImages(ctx context.Context, r *run, products []models.Product, pageURLs []string, summary *models.RunSummary) error {
	for i := range products {
		p := &products[i]
		if p.ImageURL == models.Unknown {
			continue
		}

		imageURL, err := resolveURL(pageURLs[i], p.ImageURL)
		if err != nil {
			summary.ImagesFailed++
			r.logger.Warn("invalid image url", "image_url", p.ImageURL, "error", err)
			continue
		}

		data, err := s.fetcher.Fetch(ctx, imageURL)
		if err != nil {
			summary.ImagesFailed++
			r.logger.Warn("failed to download image", "image_url", imageURL, "error", err)
			continue
		}

		path, err := s.store.SaveImage(r.id, p.Name, data)
		if err != nil {
			return err
		}

		p.ImagePath = path
		summary.ImagesSaved++
	}

	return nil
}

func resolveURL(pageURL, ref string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	target, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(target).String(), nil
}

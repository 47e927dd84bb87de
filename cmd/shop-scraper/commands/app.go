package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/maltedev/shop-scraper/internal/browser"
	"github.com/maltedev/shop-scraper/internal/config"
	"github.com/maltedev/shop-scraper/internal/fetcher"
	"github.com/maltedev/shop-scraper/internal/notify"
	"github.com/maltedev/shop-scraper/internal/parser"
	"github.com/maltedev/shop-scraper/internal/ratelimit"
	"github.com/maltedev/shop-scraper/internal/scraper"
	"github.com/maltedev/shop-scraper/internal/storage"
	"github.com/redis/go-redis/v9"
)

// app holds the wired components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *scraper.Service
	store   *storage.FileStore
	closers []io.Closer
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, err := storage.NewFileStore(cfg.Storage.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.store = store

	p, err := parser.NewShopParser(selectorsFromConfig(cfg.Selectors))
	if err != nil {
		return nil, fmt.Errorf("invalid selectors: %w", err)
	}

	f, err := a.newFetcher()
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier, err := a.newNotifier(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.service = scraper.NewService(
		f,
		p,
		store,
		ratelimit.New(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax),
		notifier,
		scraper.Options{
			MaxPages:        cfg.Scraper.MaxPages,
			PageTimeout:     cfg.Scraper.PageTimeout,
			PageConcurrency: cfg.Scraper.PageConcurrency,
			StopOnEmptyPage: cfg.Scraper.StopOnEmptyPage,
			DownloadImages:  cfg.Scraper.DownloadImages,
		},
		logger,
	)

	return a, nil
}

func (a *app) newFetcher() (fetcher.Fetcher, error) {
	sc := a.cfg.Scraper

	if sc.Fetcher == config.FetcherBrowser {
		opts := browser.DefaultOptions()
		opts.Headless = sc.Headless
		opts.Timeout = sc.Timeout
		opts.UserAgent = sc.UserAgent

		b, err := browser.New(opts, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize browser: %w", err)
		}
		a.closers = append(a.closers, b)
		return fetcher.NewBrowserFetcher(b, a.logger), nil
	}

	return fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent:  sc.UserAgent,
		Timeout:    sc.Timeout,
		MaxRetries: sc.MaxRetries,
		RetryDelay: sc.RetryDelay,
	}, a.logger), nil
}

func (a *app) newNotifier(ctx context.Context) (notify.Notifier, error) {
	notifiers := notify.Multi{notify.NewLogNotifier(a.logger)}

	rc := a.cfg.Redis
	if rc.Addr == "" {
		return notifiers, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.closers = append(a.closers, client)

	return append(notifiers, notify.NewRedisNotifier(client, rc.Stream, a.logger)), nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func selectorsFromConfig(sc config.SelectorConfig) parser.Selectors {
	s := parser.DefaultSelectors()
	s.Item = sc.Item
	if sc.Name != "" {
		s.Name = parser.TextField(sc.Name)
	}
	if sc.Price != "" {
		s.Price = parser.TextField(sc.Price)
	}
	if sc.Image != "" {
		attr := sc.ImageAttr
		if attr == "" {
			attr = "src"
		}
		s.Image = parser.AttrField(sc.Image, attr)
	}
	return s
}

package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/rss-blend/app/cache"
	"github.com/lysyi3m/rss-blend/app/feed"
)

const DefaultWorkerCount = 4

var (
	ErrNoSources    = errors.New("no sources configured")
	ErrInvalidQuery = errors.New("invalid query")
)

// Transport retrieves the raw bytes of a feed URL.
type Transport interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Decoder turns raw feed bytes into a node tree.
type Decoder interface {
	Decode(data []byte) (feed.Node, error)
}

type Aggregator struct {
	transport Transport
	decoder   Decoder
	cache     *cache.FeedCache
	filterer  *feed.Filterer
	location  *time.Location
	workers   int
	timeout   time.Duration
}

type Option func(*Aggregator)

// WithLocation sets the zone canonical dates are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) { a.location = loc }
}

// WithWorkerCount bounds the number of sources loaded at once.
func WithWorkerCount(n int) Option {
	return func(a *Aggregator) { a.workers = n }
}

// WithTimeout sets an overall deadline per aggregation. Sources still
// loading when it expires contribute nothing.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.timeout = d }
}

// New builds an Aggregator. A nil feedCache disables both cache levels.
func New(transport Transport, decoder Decoder, feedCache *cache.FeedCache, opts ...Option) *Aggregator {
	a := &Aggregator{
		transport: transport,
		decoder:   decoder,
		cache:     feedCache,
		filterer:  feed.NewFilterer(),
		location:  time.UTC,
		workers:   DefaultWorkerCount,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.location == nil {
		a.location = time.UTC
	}
	if a.workers <= 0 {
		a.workers = DefaultWorkerCount
	}
	return a
}

// Aggregate returns the merged, ordered and truncated records of q. A live
// combined cache entry short-circuits all source loading.
func (a *Aggregator) Aggregate(ctx context.Context, q feed.Query) (*Result, error) {
	return a.run(ctx, q, false)
}

// Refresh reloads every source of q without reading either cache level and
// overwrites the cached entries.
func (a *Aggregator) Refresh(ctx context.Context, q feed.Query) (*Result, error) {
	return a.run(ctx, q, true)
}

// AggregateFeeds aggregates a named set of feeds given as id to URL. Sources
// take precedence in identifier order. Conditions of opts are ignored.
func (a *Aggregator) AggregateFeeds(ctx context.Context, feeds map[string]string, opts feed.Query) (*Result, error) {
	ids := make([]string, 0, len(feeds))
	for id := range feeds {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sources := make(feed.Sources, 0, len(ids))
	for _, id := range ids {
		sources = append(sources, feed.Source{ID: id, URL: feeds[id]})
	}

	opts.Conditions = sources
	return a.Aggregate(ctx, opts)
}

func (a *Aggregator) run(ctx context.Context, q feed.Query, refresh bool) (*Result, error) {
	start := time.Now()

	q, ttl, err := a.prepare(q)
	if err != nil {
		return nil, err
	}

	key := cache.QueryKey(q, a.location)
	useCombined := q.Feed.Cache && a.cache != nil

	if useCombined && !refresh {
		if records, ok := a.cache.GetRecords(ctx, key); ok {
			slog.Debug("Combined cache hit", "key", key, "records", len(records))
			return &Result{
				Records: truncate(records, q.Limit),
				Report:  Report{Key: key, Cached: true, Total: len(records)},
			}, nil
		}
	}

	results := a.loadSources(ctx, q, ttl, refresh)

	maps := make([]map[string]feed.Record, len(results))
	reports := make([]SourceReport, len(results))
	for i, r := range results {
		maps[i] = r.records
		reports[i] = r.report
	}

	ordered := Order(Merge(maps...), q.Order.Direction)
	ordered = a.filterer.Run(ordered, q.Filters)

	if useCombined {
		a.cache.SetRecords(context.WithoutCancel(ctx), key, ordered, ttl)
	}

	result := &Result{
		Records: truncate(ordered, q.Limit),
		Report: Report{
			Key:     key,
			Total:   len(ordered),
			Sources: reports,
		},
	}

	slog.Info("Aggregation completed",
		"key", key,
		"sources", len(q.Conditions),
		"total", len(ordered),
		"returned", len(result.Records),
		"refresh", refresh,
		"duration", time.Since(start))

	return result, nil
}

func (a *Aggregator) prepare(q feed.Query) (feed.Query, time.Duration, error) {
	if len(q.Conditions) == 0 {
		return q, 0, ErrNoSources
	}

	q, err := q.WithDefaults()
	if err != nil {
		return q, 0, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if err := feed.ValidateSources(q.Conditions); err != nil {
		return q, 0, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if err := feed.ValidateFilters(q.Filters); err != nil {
		return q, 0, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	ttl, err := cache.ParseExpiry(q.Feed.Expires)
	if err != nil {
		return q, 0, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	return q, ttl, nil
}

type sourceResult struct {
	records map[string]feed.Record
	report  SourceReport
}

// loadSources loads every source on a bounded pool. Results keep the
// listed source order regardless of completion order.
func (a *Aggregator) loadSources(ctx context.Context, q feed.Query, ttl time.Duration, refresh bool) []sourceResult {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	results := make([]sourceResult, len(q.Conditions))

	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, source := range q.Conditions {
		g.Go(func() error {
			results[i] = a.loadSource(ctx, source, q, ttl, refresh)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (a *Aggregator) loadSource(ctx context.Context, source feed.Source, q feed.Query, ttl time.Duration, refresh bool) sourceResult {
	report := SourceReport{ID: source.ID, URL: source.URL}
	key := cache.SourceKey(source, q, a.location)

	if a.cache != nil && !refresh {
		if records, ok := a.cache.GetSource(ctx, key); ok {
			report.Status = StatusCached
			report.Records = len(records)
			return sourceResult{records: records, report: report}
		}
	}

	unavailable := func(err error) sourceResult {
		report.Status = StatusUnavailable
		report.Diagnostics = append(report.Diagnostics, Diagnostic{
			Kind:    SourceUnavailable,
			Source:  source.ID,
			Message: err.Error(),
		})
		slog.Warn("Source unavailable", "source", source.ID, "url", source.URL, "error", err)
		return sourceResult{report: report}
	}

	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}

	data, err := a.transport.Fetch(ctx, source.URL)
	if err != nil {
		return unavailable(err)
	}

	root, err := a.decoder.Decode(data)
	if err != nil {
		return unavailable(fmt.Errorf("failed to decode feed: %w", err))
	}

	resolved := feed.Resolve(root, q.Feed.Root)
	report.Shape = resolved.Shape

	records := make(map[string]feed.Record, len(resolved.Items))
	if !resolved.Recognized() {
		report.Status = StatusUnrecognized
		report.Diagnostics = append(report.Diagnostics, Diagnostic{
			Kind:    UnrecognizedFeedShape,
			Source:  source.ID,
			Message: "no channel/item, item, entry or custom root found",
		})
		slog.Warn("Unrecognized feed shape", "source", source.ID, "url", source.URL)
	} else {
		report.Status = StatusFetched
		report.Diagnostics = a.normalizeItems(resolved, source, q, records)
	}
	report.Records = len(records)

	if a.cache != nil {
		a.cache.SetSource(context.WithoutCancel(ctx), key, records, ttl)
	}

	slog.Debug("Source loaded", "source", source.ID, "shape", string(resolved.Shape), "items", len(resolved.Items), "records", len(records), "diagnostics", len(report.Diagnostics))

	return sourceResult{records: records, report: report}
}

// normalizeItems fills records keyed by sort key. A later item replaces an
// earlier one with the same key.
func (a *Aggregator) normalizeItems(resolved feed.Resolved, source feed.Source, q feed.Query, records map[string]feed.Record) []Diagnostic {
	normalizer := feed.NewNormalizer(feed.FieldsFor(resolved, q.Fields, q.Explicit), q.Order.Field, a.location)

	var diagnostics []Diagnostic
	for i, item := range resolved.Items {
		normalized, err := normalizer.Normalize(item, source.ID, resolved.Title)
		if err != nil {
			diagnostics = append(diagnostics, Diagnostic{
				Kind:    MissingLink,
				Source:  source.ID,
				Message: fmt.Sprintf("item %d: %v", i, err),
			})
			continue
		}

		if errors.Is(normalized.DateErr, feed.ErrUnparseableDate) {
			diagnostics = append(diagnostics, Diagnostic{
				Kind:    UnparseableDate,
				Source:  source.ID,
				Message: fmt.Sprintf("item %s: %v", normalized.Record.Link(), normalized.DateErr),
			})
		}

		records[normalized.SortKey] = normalized.Record
	}

	if len(diagnostics) > 0 {
		slog.Warn("Source items skipped or degraded", "source", source.ID, "diagnostics", len(diagnostics))
	}
	return diagnostics
}

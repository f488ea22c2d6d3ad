// Package syncer drives a sync run: it walks every platform through the
// history in fixed windows, collects the transformed posts, and uploads
// them to the destination database in batches.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petroleumjelliffe/socialsync/internal/logging"
	"github.com/petroleumjelliffe/socialsync/internal/metricool"
	"github.com/petroleumjelliffe/socialsync/internal/metrics"
	"github.com/petroleumjelliffe/socialsync/internal/notion"
	"github.com/petroleumjelliffe/socialsync/internal/ratelimit"
	"github.com/petroleumjelliffe/socialsync/internal/transform"
)

// Source returns validated posts for one platform and date window
type Source interface {
	FetchPlatformData(ctx context.Context, platform, start, end string) []metricool.Post
}

// Sink stores post records, skipping ones it already holds
type Sink interface {
	FetchExistingIDs(ctx context.Context) error
	AddItems(ctx context.Context, items []notion.Properties, batchSize int) int
}

// Options configures a Syncer
type Options struct {
	Platforms     []string
	YearsBack     int
	WindowDays    int
	BatchSize     int
	WindowPause   time.Duration
	PlatformPause time.Duration
	BatchPause    time.Duration
}

// PlatformResult is the collection outcome of one platform
type PlatformResult struct {
	Platform string
	Items    int
	Err      error
}

// OK reports whether the platform contributed at least one item
func (r PlatformResult) OK() bool {
	return r.Err == nil && r.Items > 0
}

// Summary describes a finished run
type Summary struct {
	RunID     string
	Platforms []PlatformResult
	Collected int
	Uploaded  int
	Duration  time.Duration
}

// Failed lists platforms that contributed nothing
func (s *Summary) Failed() []string {
	var failed []string
	for _, r := range s.Platforms {
		if !r.OK() {
			failed = append(failed, r.Platform)
		}
	}
	return failed
}

// Syncer runs one sync. It is not safe for concurrent runs.
type Syncer struct {
	source Source
	sink   Sink
	opts   Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	log   zerolog.Logger
}

// New creates a Syncer
func New(source Source, sink Sink, opts Options) *Syncer {
	if opts.YearsBack <= 0 {
		opts.YearsBack = 5
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = 30
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}

	return &Syncer{
		source: source,
		sink:   sink,
		opts:   opts,
		now:    time.Now,
		sleep:  ratelimit.Sleep,
		log:    logging.Component("syncer"),
	}
}

// Run collects posts from every platform and uploads them. Failing to load
// the existing ids aborts the upload and is returned.
func (s *Syncer) Run(ctx context.Context) (*Summary, error) {
	started := s.now()
	summary := &Summary{RunID: uuid.NewString()}
	log := s.log.With().Str("run_id", summary.RunID).Logger()

	items, results := s.collect(ctx, log)
	summary.Platforms = results
	summary.Collected = len(items)

	s.logCollection(log, summary)

	if err := ctx.Err(); err != nil {
		summary.Duration = s.now().Sub(started)
		return summary, err
	}

	if len(items) == 0 {
		log.Warn().Msg("No data was collected from any platform")
		summary.Duration = s.now().Sub(started)
		return summary, nil
	}

	uploaded, err := s.upload(ctx, log, items)
	summary.Uploaded = uploaded
	summary.Duration = s.now().Sub(started)
	if err != nil {
		return summary, err
	}

	log.Info().
		Str("phase", "upload").
		Int("processed", len(items)).
		Int("uploaded", uploaded).
		Int("failed", len(items)-uploaded).
		Dur("duration", summary.Duration).
		Msg("Upload summary")
	if uploaded < len(items) {
		log.Warn().Msg("Some items were not uploaded")
	}

	return summary, ctx.Err()
}

// Collect gathers transformed, run-unique items from every platform without
// uploading them
func (s *Syncer) Collect(ctx context.Context) ([]notion.Properties, []PlatformResult) {
	return s.collect(ctx, s.log)
}

func (s *Syncer) collect(ctx context.Context, log zerolog.Logger) ([]notion.Properties, []PlatformResult) {
	now := s.now().UTC()
	windows := Windows(now.AddDate(-s.opts.YearsBack, 0, 0), now, s.opts.WindowDays)
	seen := make(map[string]struct{})

	var all []notion.Properties
	results := make([]PlatformResult, 0, len(s.opts.Platforms))

	for i, platform := range s.opts.Platforms {
		if ctx.Err() != nil {
			results = append(results, PlatformResult{Platform: platform, Err: ctx.Err()})
			continue
		}
		if i > 0 && s.opts.PlatformPause > 0 {
			if err := s.sleep(ctx, s.opts.PlatformPause); err != nil {
				results = append(results, PlatformResult{Platform: platform, Err: err})
				continue
			}
		}

		log.Info().Str("phase", "collect").Str("platform", platform).Msg("Starting data collection")
		items, err := s.collectPlatform(ctx, log, platform, windows, now, seen)
		result := PlatformResult{Platform: platform, Items: len(items), Err: err}
		results = append(results, result)

		switch {
		case err != nil:
			metrics.PlatformRuns.WithLabelValues(platform, "error").Inc()
			log.Error().Err(err).Str("platform", platform).Msg("Failed to process platform")
		case len(items) == 0:
			metrics.PlatformRuns.WithLabelValues(platform, "empty").Inc()
			log.Warn().Str("platform", platform).Msg("No data collected")
		default:
			metrics.PlatformRuns.WithLabelValues(platform, "ok").Inc()
			log.Info().Str("platform", platform).Int("items", len(items)).Msg("Platform collected")
		}

		// items gathered before an error are kept; they are already deduplicated
		all = append(all, items...)
	}

	return all, results
}

func (s *Syncer) collectPlatform(ctx context.Context, log zerolog.Logger, platform string, windows []Window, syncTime time.Time, seen map[string]struct{}) (items []notion.Properties, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing %s: %v", platform, r)
		}
	}()

	for i, w := range windows {
		if i > 0 && s.opts.WindowPause > 0 {
			if err := s.sleep(ctx, s.opts.WindowPause); err != nil {
				return items, err
			}
		}
		if err := ctx.Err(); err != nil {
			return items, err
		}

		posts := s.source.FetchPlatformData(ctx, platform, w.StartParam(), w.EndParam())
		if len(posts) == 0 {
			log.Debug().Str("platform", platform).Str("start", w.StartParam()).Str("end", w.EndParam()).Msg("No data in window")
			continue
		}

		added := 0
		for _, post := range posts {
			if _, dup := seen[post.ID]; dup {
				log.Debug().Str("platform", platform).Str("post_id", post.ID).Msg("Duplicate post within run")
				continue
			}
			seen[post.ID] = struct{}{}
			items = append(items, transform.Item(platform, post, syncTime))
			added++
		}

		log.Info().
			Str("platform", platform).
			Str("start", w.StartParam()).
			Str("end", w.EndParam()).
			Int("retrieved", len(posts)).
			Int("added", added).
			Msg("Window processed")
	}

	return items, nil
}

func (s *Syncer) upload(ctx context.Context, log zerolog.Logger, items []notion.Properties) (int, error) {
	log.Info().Str("phase", "upload").Int("items", len(items)).Msg("Preparing upload")

	if err := s.sink.FetchExistingIDs(ctx); err != nil {
		return 0, fmt.Errorf("failed to load existing posts: %w", err)
	}

	uploaded := 0
	for start := 0; start < len(items); start += s.opts.BatchSize {
		if start > 0 && s.opts.BatchPause > 0 {
			if err := s.sleep(ctx, s.opts.BatchPause); err != nil {
				return uploaded, err
			}
		}

		end := start + s.opts.BatchSize
		if end > len(items) {
			end = len(items)
		}

		uploaded += s.sink.AddItems(ctx, items[start:end], s.opts.BatchSize)
		log.Info().Str("phase", "upload").Int("processed", end).Int("total", len(items)).Msg("Batch progress")
	}

	return uploaded, nil
}

func (s *Syncer) logCollection(log zerolog.Logger, summary *Summary) {
	failed := summary.Failed()
	level := zerolog.InfoLevel
	if len(failed) > 0 {
		level = zerolog.WarnLevel
	}
	log.WithLevel(level).
		Strs("failed_platforms", failed).
		Str("phase", "collect").
		Int("platforms", len(summary.Platforms)).
		Int("successful", len(summary.Platforms)-len(failed)).
		Int("items", summary.Collected).
		Msg("Collection summary")
}

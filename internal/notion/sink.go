package notion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/petroleumjelliffe/socialsync/internal/logging"
	"github.com/petroleumjelliffe/socialsync/internal/metrics"
	"github.com/petroleumjelliffe/socialsync/internal/ratelimit"
)

// PostIDProperty is the title column that identifies a post
const PostIDProperty = "Post ID"

const queryPageSize = 100

// ErrExistingNotLoaded is returned when items are added before the
// existing ids were fetched
var ErrExistingNotLoaded = errors.New("existing post ids not loaded")

// PageStore is the subset of the Notion API the sink writes through
type PageStore interface {
	QueryDatabase(ctx context.Context, cursor string, pageSize int) (*QueryResponse, error)
	CreatePage(ctx context.Context, props Properties) (*Page, error)
}

// SinkOptions configures a Sink
type SinkOptions struct {
	Limiter *ratelimit.Limiter
	// MaxRetries is how many times a conflicting create is retried
	MaxRetries int
	// InitialBackoff doubles after every conflict
	InitialBackoff time.Duration
	// BatchPause separates consecutive batches within one AddItems call
	BatchPause time.Duration
	// DryRun logs creates instead of sending them
	DryRun bool
}

// Sink creates one page per post, skipping posts already in the database.
// A Sink holds the dedupe state of a single run.
type Sink struct {
	store          PageStore
	limiter        *ratelimit.Limiter
	maxRetries     int
	initialBackoff time.Duration
	batchPause     time.Duration
	dryRun         bool
	sleep          func(ctx context.Context, d time.Duration) error
	log            zerolog.Logger

	loaded   bool
	existing map[string]struct{}
	inserted map[string]struct{}
}

// NewSink creates a Sink writing through store
func NewSink(store PageStore, opts SinkOptions) *Sink {
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New("notion", 3, 100)
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}

	return &Sink{
		store:          store,
		limiter:        opts.Limiter,
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		batchPause:     opts.BatchPause,
		dryRun:         opts.DryRun,
		sleep:          ratelimit.Sleep,
		log:            logging.Component("notion"),
		existing:       make(map[string]struct{}),
		inserted:       make(map[string]struct{}),
	}
}

// PostID returns the post id held in the title column, or ""
func PostID(props Properties) string {
	p, ok := props[PostIDProperty]
	if !ok {
		return ""
	}
	return p.PlainText()
}

// FetchExistingIDs loads every post id already in the database. It must
// succeed before AddItems creates anything.
func (s *Sink) FetchExistingIDs(ctx context.Context) error {
	cursor := ""
	pages := 0

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := s.store.QueryDatabase(ctx, cursor, queryPageSize)
		if err != nil {
			return fmt.Errorf("failed to query existing posts: %w", err)
		}
		pages++

		for _, page := range resp.Results {
			if id := PostID(page.Properties); id != "" {
				s.existing[id] = struct{}{}
			}
		}

		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			break
		}
		cursor = *resp.NextCursor
	}

	s.loaded = true
	s.log.Info().Int("existing", len(s.existing)).Int("pages", pages).Msg("Loaded existing post ids")
	return nil
}

// Known reports whether id is already in the database or was created this run
func (s *Sink) Known(id string) bool {
	if _, ok := s.existing[id]; ok {
		return true
	}
	_, ok := s.inserted[id]
	return ok
}

// AddItems creates pages for items in batches of batchSize and returns how
// many were created. Failures are logged per item and never abort the call.
func (s *Sink) AddItems(ctx context.Context, items []Properties, batchSize int) int {
	if !s.loaded {
		s.log.Error().Err(ErrExistingNotLoaded).Int("items", len(items)).Msg("Refusing to add items")
		return 0
	}
	if batchSize <= 0 {
		batchSize = len(items)
	}

	created := 0
	for start := 0; start < len(items); start += batchSize {
		if start > 0 && s.batchPause > 0 {
			if err := s.sleep(ctx, s.batchPause); err != nil {
				return created
			}
		}

		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}

		for _, props := range items[start:end] {
			if ctx.Err() != nil {
				return created
			}
			if s.addItem(ctx, props) {
				created++
			}
		}
	}

	return created
}

func (s *Sink) addItem(ctx context.Context, props Properties) bool {
	id := PostID(props)
	if id == "" {
		metrics.SinkCreates.WithLabelValues("missing_id").Inc()
		s.log.Warn().Msg("Skipping item without post id")
		return false
	}
	if s.Known(id) {
		metrics.SinkCreates.WithLabelValues("duplicate").Inc()
		s.log.Debug().Str("post_id", id).Msg("Skipping existing post")
		return false
	}

	if s.dryRun {
		metrics.SinkCreates.WithLabelValues("dry_run").Inc()
		s.log.Info().Str("post_id", id).Msg("Dry run, would create page")
		s.inserted[id] = struct{}{}
		return true
	}

	if err := s.createWithRetry(ctx, id, props); err != nil {
		if IsConflict(err) {
			metrics.SinkCreates.WithLabelValues("conflict").Inc()
		} else {
			metrics.SinkCreates.WithLabelValues("failed").Inc()
		}
		s.log.Error().Err(err).Str("post_id", id).Msg("Failed to create page")
		return false
	}

	metrics.SinkCreates.WithLabelValues("created").Inc()
	s.inserted[id] = struct{}{}
	return true
}

// createWithRetry retries conflicts with exponential backoff. Any other
// error is returned immediately.
func (s *Sink) createWithRetry(ctx context.Context, id string, props Properties) error {
	backoff := s.initialBackoff

	for retry := 0; ; retry++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		_, err := s.store.CreatePage(ctx, props)
		if err == nil {
			return nil
		}
		if !IsConflict(err) || retry >= s.maxRetries {
			return err
		}

		s.log.Warn().
			Str("post_id", id).
			Int("retry", retry+1).
			Dur("backoff", backoff).
			Msg("Conflict creating page, retrying")

		if err := s.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
}

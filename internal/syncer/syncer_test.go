package syncer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petroleumjelliffe/socialsync/internal/metricool"
	"github.com/petroleumjelliffe/socialsync/internal/notion"
	"github.com/petroleumjelliffe/socialsync/internal/ratelimit"
)

type fetchCall struct {
	platform, start, end string
}

// fakeSource returns canned posts per platform, once per platform
type fakeSource struct {
	posts map[string][]metricool.Post
	calls []fetchCall
	panic string
}

func (f *fakeSource) FetchPlatformData(ctx context.Context, platform, start, end string) []metricool.Post {
	f.calls = append(f.calls, fetchCall{platform, start, end})
	if platform == f.panic {
		panic("boom")
	}
	posts := f.posts[platform]
	delete(f.posts, platform)
	return posts
}

type fakeSink struct {
	fetchErr error
	fetched  bool
	batches  [][]notion.Properties
}

func (f *fakeSink) FetchExistingIDs(ctx context.Context) error {
	f.fetched = true
	return f.fetchErr
}

func (f *fakeSink) AddItems(ctx context.Context, items []notion.Properties, batchSize int) int {
	f.batches = append(f.batches, items)
	return len(items)
}

func newTestSyncer(src Source, sink Sink, opts Options, now time.Time) (*Syncer, *[]time.Duration) {
	s := New(src, sink, opts)
	s.now = func() time.Time { return now }
	var pauses []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return ctx.Err()
	}
	return s, &pauses
}

func post(id string) metricool.Post {
	return metricool.Post{ID: id, CreatedTime: "2024-01-01T00:00:00"}
}

var runTime = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func TestRun_CollectsAndUploads(t *testing.T) {
	src := &fakeSource{posts: map[string][]metricool.Post{
		"instagram": {post("a"), post("b"), post("c")},
		"tiktok":    {post("c"), post("d")},
	}}
	sink := &fakeSink{}
	s, _ := newTestSyncer(src, sink, Options{
		Platforms:  []string{"instagram", "tiktok", "youtube"},
		YearsBack:  1,
		BatchSize:  3,
		BatchPause: 500 * time.Millisecond,
	}, runTime)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 4, summary.Collected)
	assert.Equal(t, 4, summary.Uploaded)
	assert.Equal(t, []string{"youtube"}, summary.Failed())
	assert.True(t, sink.fetched)
	require.Len(t, sink.batches, 2)
	assert.Len(t, sink.batches[0], 3)
	assert.Len(t, sink.batches[1], 1)
	assert.Equal(t, "d", notion.PostID(sink.batches[1][0]))
}

func TestRun_DropsIncompleteItems(t *testing.T) {
	var served atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if served.Swap(true) {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[
			{"id":"1","timestamp":"2024-01-01T00:00:00"},
			{"id":"2","timestamp":"2024-01-02T00:00:00"},
			{"id":"3","timestamp":"2024-01-03T00:00:00"},
			{"timestamp":"2024-01-04T00:00:00","caption":"no id"}
		]`))
	}))
	defer srv.Close()

	src := metricool.NewClient(metricool.Options{
		BaseURL: srv.URL,
		Limiter: ratelimit.New("test", 1000, 1000),
	})
	sink := &fakeSink{}
	s, _ := newTestSyncer(src, sink, Options{Platforms: []string{"instagram"}, YearsBack: 1}, runTime)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Collected)
	assert.Empty(t, summary.Failed())
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 3)
}

func TestRun_ExistingIDsFailureAbortsUpload(t *testing.T) {
	src := &fakeSource{posts: map[string][]metricool.Post{"facebook": {post("x")}}}
	sink := &fakeSink{fetchErr: errors.New("unauthorized")}
	s, _ := newTestSyncer(src, sink, Options{Platforms: []string{"facebook"}, YearsBack: 1}, runTime)

	summary, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
	assert.Empty(t, sink.batches)
	assert.Equal(t, 0, summary.Uploaded)
}

func TestRun_NothingCollectedSkipsUpload(t *testing.T) {
	sink := &fakeSink{}
	s, _ := newTestSyncer(&fakeSource{}, sink, Options{Platforms: []string{"linkedin"}, YearsBack: 1}, runTime)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, sink.fetched)
	assert.Equal(t, []string{"linkedin"}, summary.Failed())
}

func TestCollect_WindowsAndPauses(t *testing.T) {
	src := &fakeSource{}
	s, pauses := newTestSyncer(src, &fakeSink{}, Options{
		Platforms:     []string{"facebook", "youtube"},
		YearsBack:     1,
		WindowDays:    30,
		WindowPause:   100 * time.Millisecond,
		PlatformPause: time.Second,
	}, runTime)

	s.Collect(context.Background())

	windows := Windows(runTime.AddDate(-1, 0, 0), runTime, 30)
	require.Len(t, src.calls, 2*len(windows))

	first := src.calls[0]
	assert.Equal(t, fetchCall{"facebook", "20230615", "20230715"}, first)
	last := src.calls[len(windows)-1]
	assert.Equal(t, "20240615", last.end)
	assert.Equal(t, "youtube", src.calls[len(windows)].platform)

	var windowPauses, platformPauses int
	for _, d := range *pauses {
		switch d {
		case 100 * time.Millisecond:
			windowPauses++
		case time.Second:
			platformPauses++
		}
	}
	assert.Equal(t, 2*(len(windows)-1), windowPauses)
	assert.Equal(t, 1, platformPauses)
}

func TestCollect_WindowsUseUTCDates(t *testing.T) {
	// 20:00 in Honolulu is already the next day in UTC
	local := time.Date(2024, 6, 15, 20, 0, 0, 0, time.FixedZone("HST", -10*60*60))
	src := &fakeSource{}
	s, _ := newTestSyncer(src, &fakeSink{}, Options{Platforms: []string{"facebook"}, YearsBack: 1}, local)

	s.Collect(context.Background())

	require.NotEmpty(t, src.calls)
	assert.Equal(t, "20230616", src.calls[0].start)
	assert.Equal(t, "20240616", src.calls[len(src.calls)-1].end)
}

func TestCollect_CancelledDuringPlatformPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{}
	s, _ := newTestSyncer(src, &fakeSink{}, Options{
		Platforms:     []string{"facebook", "youtube"},
		YearsBack:     1,
		PlatformPause: time.Second,
	}, runTime)
	s.sleep = func(ctx context.Context, d time.Duration) error {
		if d == time.Second {
			cancel()
		}
		return ctx.Err()
	}

	_, results := s.Collect(ctx)
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[1].Err, context.Canceled)
	for _, c := range src.calls {
		assert.Equal(t, "facebook", c.platform)
	}
}

func TestCollect_PanicFailsOnlyThatPlatform(t *testing.T) {
	src := &fakeSource{
		panic: "facebook",
		posts: map[string][]metricool.Post{"instagram": {post("a")}},
	}
	s, _ := newTestSyncer(src, &fakeSink{}, Options{Platforms: []string{"facebook", "instagram"}, YearsBack: 1}, runTime)

	items, results := s.Collect(context.Background())
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.True(t, results[1].OK())
	assert.Len(t, items, 1)
}

func TestRun_Cancelled(t *testing.T) {
	src := &fakeSource{posts: map[string][]metricool.Post{"facebook": {post("x")}}}
	sink := &fakeSink{}
	s, _ := newTestSyncer(src, sink, Options{Platforms: []string{"facebook"}, YearsBack: 1}, runTime)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, src.calls)
	assert.False(t, sink.fetched)
}

package lib

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webtrekk/webtrekk-go/client/encode"
	"github.com/webtrekk/webtrekk-go/client/tctx"
	"github.com/webtrekk/webtrekk-go/shared/testutils"
)

type collector struct {
	mu      sync.Mutex
	queries []url.Values
	paths   []string
	status  int
}

func newCollector(t *testing.T) (*collector, *httptest.Server) {
	c := &collector{status: http.StatusOK}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.queries = append(c.queries, r.URL.Query())
		c.paths = append(c.paths, r.URL.Path)
		w.WriteHeader(c.status)
	}))
	t.Cleanup(server.Close)
	return c, server
}

func (c *collector) received() []url.Values {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]url.Values(nil), c.queries...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTracker(t *testing.T, trackDomain string, opts ...Option) (*Tracker, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	conf := &tctx.Config{TrackIds: []string{"123451234512345"}, TrackDomain: trackDomain, SendTimeoutSeconds: 5}
	opts = append([]Option{WithLogger(logger), WithBackgroundJobs(false)}, opts...)
	tracker, err := New(conf, testutils.OpenTestDb(t, logger), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { tracker.Close() })
	return tracker, hook
}

func pendingFlags(t *testing.T, tracker *Tracker) ([]string, []string) {
	pending, err := tracker.Pending(context.Background(), 100)
	require.NoError(t, err)
	var fns, one []string
	for _, track := range pending {
		fns = append(fns, track.TrackRequest.Fns)
		one = append(one, track.TrackRequest.One)
	}
	return fns, one
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()
	db := testutils.OpenTestDb(t, logger)
	_, err := New(&tctx.Config{TrackDomain: "https://q3.webtrekk.net"}, db, WithLogger(logger))
	require.ErrorIs(t, err, tctx.ErrInvalidConfig)
	_, err = New(nil, db, WithLogger(logger))
	require.ErrorIs(t, err, tctx.ErrInvalidConfig)
}

func TestTrackBeforeInit(t *testing.T) {
	tracker, _ := newTestTracker(t, "https://q3.webtrekk.net")
	err := tracker.TrackCustomEvent(context.Background(), "checkout", nil)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = tracker.ResumeSession(context.Background())
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestTrackNilEvent(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t, "https://q3.webtrekk.net")
	require.ErrorIs(t, tracker.Track(ctx, nil, nil), encode.ErrNilEvent)
	require.NoError(t, tracker.Init(ctx))
	require.ErrorIs(t, tracker.Track(ctx, nil, encode.NewParams()), encode.ErrNilEvent)

	// The session flag is still unread
	require.NoError(t, tracker.TrackCustomPage(ctx, "home", nil))
	fns, _ := pendingFlags(t, tracker)
	require.Equal(t, []string{"1"}, fns)
}

func TestTrackPageGroupsOverrideCustomParams(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t, "https://q3.webtrekk.net")
	require.NoError(t, tracker.Init(ctx))

	custom := encode.NewParams()
	custom.Set("cp1", "custom")
	custom.Set("extra", "1")
	require.NoError(t, tracker.Track(ctx, &encode.PageViewEvent{
		PageName:  "home",
		Page:      &encode.PageParameters{Parameters: map[int]string{1: "page"}},
		ECommerce: &encode.ECommerceParameters{OrderId: "o-1"},
		User:      &encode.UserCategories{CustomerId: "c-1"},
	}, custom))

	pending, err := tracker.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	var keys, values []string
	for _, p := range pending[0].CustomParams {
		keys = append(keys, p.ParamKey)
		values = append(values, p.ParamValue)
	}
	require.Equal(t, []string{"cp1", "extra", "cd", "oi"}, keys)
	require.Equal(t, []string{"page", "1", "c-1", "o-1"}, values)
}

func TestDuplicateInitWarns(t *testing.T) {
	ctx := context.Background()
	tracker, hook := newTestTracker(t, "https://q3.webtrekk.net")
	require.NoError(t, tracker.Init(ctx))
	everId, err := tracker.GetEverId(ctx)
	require.NoError(t, err)

	require.NoError(t, tracker.Init(ctx))
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	require.Contains(t, hook.LastEntry().Message, "already initialized")

	// The running instance is kept, including its session
	again, err := tracker.GetEverId(ctx)
	require.NoError(t, err)
	require.Equal(t, everId, again)
	require.NoError(t, tracker.TrackCustomEvent(ctx, "a", nil))
	fns, _ := pendingFlags(t, tracker)
	require.Equal(t, []string{"1"}, fns)
}

func TestForceNewSessionOnlyOnFirstEvent(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t, "https://q3.webtrekk.net")
	require.NoError(t, tracker.Init(ctx))

	require.NoError(t, tracker.TrackCustomPage(ctx, "home", nil))
	require.NoError(t, tracker.TrackCustomEvent(ctx, "click", map[string]string{"ck1": "x"}))
	require.NoError(t, tracker.TrackPage(ctx, &encode.PageViewEvent{PageName: "cart"}))

	fns, one := pendingFlags(t, tracker)
	require.Equal(t, []string{"1", "0", "0"}, fns)
	require.Equal(t, []string{"1", "1", "1"}, one)
}

func TestSessionTimeoutStartsNewSession(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker, _ := newTestTracker(t, "https://q3.webtrekk.net", WithClock(clock.Now))
	require.NoError(t, tracker.Init(ctx))

	require.NoError(t, tracker.TrackCustomEvent(ctx, "a", nil))
	clock.Advance(10 * time.Minute)
	require.NoError(t, tracker.TrackCustomEvent(ctx, "b", nil))
	clock.Advance(31 * time.Minute)
	require.NoError(t, tracker.TrackCustomEvent(ctx, "c", nil))
	require.NoError(t, tracker.TrackCustomEvent(ctx, "d", nil))

	fns, _ := pendingFlags(t, tracker)
	require.Equal(t, []string{"1", "0", "1", "0"}, fns)
}

func TestResumeSessionOnInit(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	db := testutils.OpenTestDb(t, logger)
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	conf := &tctx.Config{TrackIds: []string{"123451234512345"}, TrackDomain: "https://q3.webtrekk.net"}
	start := func() *Tracker {
		tracker, err := New(conf, db, WithLogger(logger), WithBackgroundJobs(false), WithClock(clock.Now), WithResumeSessionOnInit(true))
		require.NoError(t, err)
		require.NoError(t, tracker.Init(ctx))
		t.Cleanup(func() { tracker.Close() })
		return tracker
	}

	// First start of the installation always opens a session
	tracker := start()
	require.NoError(t, tracker.TrackCustomEvent(ctx, "a", nil))

	// Restarts within the timeout, with or without tracking, keep the session
	clock.Advance(10 * time.Minute)
	start()
	clock.Advance(10 * time.Minute)
	tracker = start()
	require.NoError(t, tracker.TrackCustomEvent(ctx, "b", nil))

	clock.Advance(31 * time.Minute)
	tracker = start()
	require.NoError(t, tracker.TrackCustomEvent(ctx, "c", nil))

	fns, one := pendingFlags(t, tracker)
	require.Equal(t, []string{"1", "0", "1"}, fns)
	require.Equal(t, []string{"1", "1", "1"}, one)
}

func TestOptOutDropsEvents(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t, "https://q3.webtrekk.net")
	require.NoError(t, tracker.Init(ctx))
	require.NoError(t, tracker.OptOut(ctx, true, false))
	optedOut, err := tracker.HasOptOut(ctx)
	require.NoError(t, err)
	require.True(t, optedOut)

	require.NoError(t, tracker.TrackCustomEvent(ctx, "checkout", map[string]string{"ov": "99.90", "oi": "order-1"}))
	count, err := tracker.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)

	// The dropped event did not consume the session boundary
	require.NoError(t, tracker.OptOut(ctx, false, false))
	require.NoError(t, tracker.TrackCustomEvent(ctx, "checkout", nil))
	fns, _ := pendingFlags(t, tracker)
	require.Equal(t, []string{"1"}, fns)
}

func TestOptOutClearsQueue(t *testing.T) {
	ctx := context.Background()
	c, server := newCollector(t)
	tracker, _ := newTestTracker(t, server.URL)
	require.NoError(t, tracker.Init(ctx))
	require.NoError(t, tracker.TrackCustomEvent(ctx, "a", nil))
	require.NoError(t, tracker.TrackCustomEvent(ctx, "b", nil))

	require.NoError(t, tracker.OptOut(ctx, true, false))
	count, err := tracker.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
	require.Empty(t, c.received())
}

func TestOptOutSendsCurrentData(t *testing.T) {
	ctx := context.Background()
	c, server := newCollector(t)
	tracker, _ := newTestTracker(t, server.URL)
	require.NoError(t, tracker.Init(ctx))
	require.NoError(t, tracker.TrackCustomEvent(ctx, "a", nil))
	require.NoError(t, tracker.TrackCustomEvent(ctx, "b", nil))

	require.NoError(t, tracker.OptOut(ctx, true, true))
	require.Len(t, c.received(), 2)
	count, err := tracker.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)

	// Nothing is sent while opted out
	sent, err := tracker.Flush(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 0, sent)
}

func TestInvalidMediaEventKeepsSession(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t, "https://q3.webtrekk.net")
	require.NoError(t, tracker.Init(ctx))

	err := tracker.TrackMedia(ctx, "video page", &encode.MediaParameters{Name: "clip", Action: "rewind"}, nil)
	require.ErrorIs(t, err, encode.ErrInvalidMediaAction)
	count, err := tracker.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)

	require.NoError(t, tracker.TrackMedia(ctx, "video page", &encode.MediaParameters{Name: "clip", Action: encode.MediaPlay, Duration: 10}, nil))
	fns, _ := pendingFlags(t, tracker)
	require.Equal(t, []string{"1"}, fns)
}

func TestEndToEndDelivery(t *testing.T) {
	ctx := context.Background()
	c, server := newCollector(t)
	tracker, _ := newTestTracker(t, server.URL)
	require.NoError(t, tracker.Init(ctx))
	everId, err := tracker.GetEverId(ctx)
	require.NoError(t, err)
	require.Len(t, everId, 19)

	require.NoError(t, tracker.TrackCustomEvent(ctx, "checkout", map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, tracker.TrackMedia(ctx, "video page", &encode.MediaParameters{
		Name:     "intro clip",
		Action:   encode.MediaSeek,
		Position: 42,
		Duration: 120,
	}, nil))

	sent, err := tracker.Flush(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 2, sent)

	received := c.received()
	require.Len(t, received, 2)
	assert.Equal(t, "/123451234512345/wt", c.paths[0])

	checkout := received[0]
	assert.Equal(t, "1", checkout.Get("a"))
	assert.Equal(t, "2", checkout.Get("b"))
	assert.Equal(t, everId, checkout.Get("eid"))
	assert.Equal(t, "1", checkout.Get("fns"))
	assert.Equal(t, "1", checkout.Get("one"))
	assert.Contains(t, checkout.Get("p"), "500,checkout,0,0x0,0,0,")
	assert.Contains(t, checkout.Get("X-WT-UA"), "Tracking Library 500")

	media := received[1]
	assert.Equal(t, "0", media.Get("fns"))
	assert.Equal(t, "intro clip", media.Get("mi"))
	assert.Equal(t, "seek", media.Get("mk"))
	assert.Equal(t, "42", media.Get("mt1"))
	assert.Equal(t, "120", media.Get("mt2"))
	for _, key := range []string{"bw", "mut", "vol"} {
		assert.False(t, media.Has(key), "unexpected key %s", key)
	}

	count, err := tracker.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}

func TestFailedDeliveryStaysQueued(t *testing.T) {
	ctx := context.Background()
	c, server := newCollector(t)
	c.mu.Lock()
	c.status = http.StatusInternalServerError
	c.mu.Unlock()
	tracker, _ := newTestTracker(t, server.URL)
	require.NoError(t, tracker.Init(ctx))
	require.NoError(t, tracker.TrackCustomEvent(ctx, "a", nil))

	result, err := tracker.SendRequests(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)
	count, err := tracker.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	c.mu.Lock()
	c.status = http.StatusOK
	c.mu.Unlock()
	result, err = tracker.SendRequests(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Sent)
}

func TestBackgroundJobs(t *testing.T) {
	ctx := context.Background()
	c, server := newCollector(t)
	tracker, _ := newTestTracker(t, server.URL, WithBackgroundJobs(true))
	require.NoError(t, tracker.Init(ctx))
	require.NoError(t, tracker.TrackCustomEvent(ctx, "a", nil))

	tracker.Trigger()
	require.Eventually(t, func() bool { return len(c.received()) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, tracker.Close())
	require.NoError(t, tracker.Close())
	require.Error(t, tracker.Init(ctx))
}

func TestCleanUp(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now().Add(-10 * 24 * time.Hour)}
	tracker, _ := newTestTracker(t, "https://q3.webtrekk.net", WithClock(clock.Now))
	require.NoError(t, tracker.Init(ctx))
	require.NoError(t, tracker.TrackCustomEvent(ctx, "old", nil))
	clock.Advance(9 * 24 * time.Hour)
	require.NoError(t, tracker.TrackCustomEvent(ctx, "new", nil))

	// Relative to the fake clock the old request is 9 days old
	deleted, err := tracker.CleanUp(ctx, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	deleted, err = tracker.CleanUp(ctx, clock.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}

func TestDeliveryURL(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t, "https://q3.webtrekk.net/")
	require.NoError(t, tracker.Init(ctx))
	require.NoError(t, tracker.TrackCustomEvent(ctx, "a b", map[string]string{"k": "v w"}))
	pending, err := tracker.Pending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	u, err := tracker.DeliveryURL(ctx, pending[0])
	require.NoError(t, err)
	require.Contains(t, u, "https://q3.webtrekk.net/123451234512345/wt?p=500,a+b,0,")
	require.Contains(t, u, "&k=v+w")
}

package lib

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/sirupsen/logrus"
	"github.com/webtrekk/webtrekk-go/client/backend"
	"github.com/webtrekk/webtrekk-go/client/data"
	"github.com/webtrekk/webtrekk-go/client/encode"
	"github.com/webtrekk/webtrekk-go/client/prefs"
	"github.com/webtrekk/webtrekk-go/client/queue"
	"github.com/webtrekk/webtrekk-go/client/scheduler"
	"github.com/webtrekk/webtrekk-go/client/session"
	"github.com/webtrekk/webtrekk-go/client/tctx"
	"gorm.io/gorm"
)

var ErrNotInitialized = errors.New("tracker is not initialized, call Init first")

// Tracker is the handle through which an application tracks events. Every component it
// wires together is owned by the handle, so independent trackers can coexist in one process.
type Tracker struct {
	conf   *tctx.Config
	db     *gorm.DB
	ownsDb bool
	logger *logrus.Logger
	statsd *statsd.Client

	store     prefs.Store
	identity  *session.IdentityStore
	sessions  *session.Manager
	encoder   *encode.Encoder
	queue     *queue.Queue
	sender    backend.Sender
	scheduler *scheduler.Scheduler

	backgroundJobs bool
	resumeOnInit   bool

	mu          sync.Mutex
	initialized bool
	closed      bool
}

type trackerOptions struct {
	logger         *logrus.Logger
	store          prefs.Store
	sender         backend.Sender
	runner         scheduler.JobRunner
	statsd         *statsd.Client
	encoderOpts    []encode.Option
	now            func() time.Time
	backgroundJobs bool
	resumeOnInit   bool
}

type Option func(*trackerOptions)

func WithLogger(logger *logrus.Logger) Option {
	return func(o *trackerOptions) {
		o.logger = logger
	}
}

// WithPrefsStore replaces the preferences table as the store for identity, session and opt-out.
func WithPrefsStore(store prefs.Store) Option {
	return func(o *trackerOptions) {
		o.store = store
	}
}

func WithSender(sender backend.Sender) Option {
	return func(o *trackerOptions) {
		o.sender = sender
	}
}

func WithJobRunner(runner scheduler.JobRunner) Option {
	return func(o *trackerOptions) {
		o.runner = runner
	}
}

func WithStatsd(client *statsd.Client) Option {
	return func(o *trackerOptions) {
		o.statsd = client
	}
}

func WithEncoderOptions(opts ...encode.Option) Option {
	return func(o *trackerOptions) {
		o.encoderOpts = append(o.encoderOpts, opts...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *trackerOptions) {
		o.now = now
	}
}

// WithResumeSessionOnInit makes Init continue the stored session unless it timed out, instead
// of always starting a new one. Processes that are started many times within one user session,
// such as the CLI, use it. The very first start of an installation still starts a session.
func WithResumeSessionOnInit(enabled bool) Option {
	return func(o *trackerOptions) {
		o.resumeOnInit = enabled
	}
}

// WithBackgroundJobs controls whether Init starts the periodic send and cleanup jobs. Short
// lived processes such as the CLI disable them and flush explicitly.
func WithBackgroundJobs(enabled bool) Option {
	return func(o *trackerOptions) {
		o.backgroundJobs = enabled
	}
}

// New wires a tracker on top of db. The config is validated here, a tracker is never built
// from an incomplete config.
func New(conf *tctx.Config, db *gorm.DB, opts ...Option) (*Tracker, error) {
	if conf == nil {
		return nil, fmt.Errorf("%w: config is required", tctx.ErrInvalidConfig)
	}
	c := *conf
	c.FillDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if db == nil {
		return nil, errors.New("a database is required")
	}

	o := &trackerOptions{now: time.Now, backgroundJobs: true}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = tctx.GetLogger()
	}

	t := &Tracker{
		conf:           &c,
		db:             db,
		logger:         o.logger,
		backgroundJobs: o.backgroundJobs,
		resumeOnInit:   o.resumeOnInit,
	}

	t.statsd = o.statsd
	if t.statsd == nil && c.StatsdAddress != "" {
		client, err := statsd.New(c.StatsdAddress)
		if err != nil {
			return nil, fmt.Errorf("failed to create statsd client: %w", err)
		}
		t.statsd = client
	}

	t.store = o.store
	if t.store == nil {
		t.store = prefs.NewDBStore(db)
	}
	t.identity = session.NewIdentityStore(t.store)
	t.sessions = session.NewManager(t.store, t.identity, session.WithTimeout(c.SessionTimeout()), session.WithClock(o.now))

	encoderOpts := []encode.Option{
		encode.WithScreenResolution(c.ScreenResolution),
		encode.WithAppVersion(c.AppVersion),
		encode.WithClock(o.now),
	}
	t.encoder = encode.NewEncoder(append(encoderOpts, o.encoderOpts...)...)
	t.queue = queue.New(db)

	t.sender = o.sender
	if t.sender == nil {
		sender, err := backend.NewSenderFromConfig(backend.Config{
			SenderType:    string(defaultSenderType),
			Timeout:       c.SendTimeout(),
			EnableTracing: c.EnableTracing,
			Logger:        t.logger,
		})
		if err != nil {
			return nil, err
		}
		t.sender = sender
	}

	schedulerOpts := []scheduler.Option{
		scheduler.WithLogger(t.logger),
		scheduler.WithStatsd(t.statsd),
		scheduler.WithOptOut(t.HasOptOut),
		scheduler.WithClock(o.now),
	}
	if o.runner != nil {
		schedulerOpts = append(schedulerOpts, scheduler.WithJobRunner(o.runner))
	}
	t.scheduler = scheduler.New(&c, t.queue, t.sender, t.identity, schedulerOpts...)
	return t, nil
}

// Open builds a tracker on the database in the webtrekk dir. The database is closed by Close.
func Open(conf *tctx.Config, opts ...Option) (*Tracker, error) {
	db, err := tctx.OpenLocalSqliteDb(conf)
	if err != nil {
		return nil, err
	}
	if conf != nil {
		tctx.GetLogger().SetLevel(conf.Level())
	}
	t, err := New(conf, db, opts...)
	if err != nil {
		tctx.CloseDb(db)
		return nil, err
	}
	t.ownsDb = true
	return t, nil
}

// Init persists the ever id, starts a new session and, unless disabled, the background
// jobs. Calling Init on an initialized tracker only logs a warning.
func (t *Tracker) Init(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("tracker is closed")
	}
	if t.initialized {
		t.logger.Warn("Tracker is already initialized, keeping the running instance")
		return nil
	}
	if err := t.sessions.SetEverId(ctx); err != nil {
		return fmt.Errorf("failed to initialize the ever id: %w", err)
	}
	firstStart, err := t.openSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to start a new session: %w", err)
	}
	if firstStart {
		t.logger.Info("First start of this installation")
	}
	if t.backgroundJobs {
		if err := t.scheduler.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
	}
	t.initialized = true
	return nil
}

func (t *Tracker) openSession(ctx context.Context) (bool, error) {
	if t.resumeOnInit {
		one, err := t.sessions.AppFirstStart(ctx)
		if err != nil {
			return false, err
		}
		if one == "1" {
			_, err := t.sessions.ResumeSession(ctx)
			return false, err
		}
	}
	return t.sessions.StartNewSession(ctx)
}

func (t *Tracker) isInitialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initialized
}

// Track queues ev together with custom. The event's own parameter groups override custom on
// key collisions. Events of an opted out user are dropped without error.
func (t *Tracker) Track(ctx context.Context, ev encode.Event, custom *encode.Params) error {
	if ev == nil {
		return encode.ErrNilEvent
	}
	if !t.isInitialized() {
		return ErrNotInitialized
	}
	optedOut, err := t.HasOptOut(ctx)
	if err != nil {
		return err
	}
	if optedOut {
		t.logger.WithField("name", ev.Name()).Debug("User opted out, dropping event")
		return nil
	}
	// Reject invalid events before the session flag is consumed
	if _, err := ev.Params(); err != nil {
		return err
	}

	if _, err := t.sessions.ResumeSession(ctx); err != nil {
		return fmt.Errorf("failed to resume session: %w", err)
	}
	fns, err := t.sessions.CurrentSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}
	one, err := t.sessions.AppFirstStart(ctx)
	if err != nil {
		return fmt.Errorf("failed to read first start flag: %w", err)
	}

	req, params, err := t.encoder.Encode(ev, custom, encode.Snapshot{Fns: fns, One: one})
	if err != nil {
		return err
	}
	id, err := t.queue.Enqueue(ctx, req, encode.ToCustomParams(params, 0))
	if err != nil {
		return err
	}
	t.logger.WithFields(logrus.Fields{"id": id, "name": req.Name, "fns": fns}).Debug("Queued track request")
	if t.statsd != nil {
		t.statsd.Incr("webtrekk.queued", []string{}, 1.0)
	}
	return nil
}

func (t *Tracker) TrackPage(ctx context.Context, ev *encode.PageViewEvent) error {
	return t.Track(ctx, ev, nil)
}

// TrackCustomPage tracks a page view that only carries the given custom parameters.
func (t *Tracker) TrackCustomPage(ctx context.Context, pageName string, params map[string]string) error {
	return t.Track(ctx, &encode.PageViewEvent{PageName: pageName, CustomParameters: encode.ParamsFromMap(params)}, nil)
}

func (t *Tracker) TrackEvent(ctx context.Context, ev *encode.CustomEvent) error {
	return t.Track(ctx, ev, nil)
}

// TrackCustomEvent tracks an event that only carries the given custom parameters.
func (t *Tracker) TrackCustomEvent(ctx context.Context, eventName string, params map[string]string) error {
	return t.Track(ctx, &encode.CustomEvent{EventName: eventName, CustomParameters: encode.ParamsFromMap(params)}, nil)
}

func (t *Tracker) TrackMedia(ctx context.Context, pageName string, media *encode.MediaParameters, custom map[string]string) error {
	return t.Track(ctx, &encode.MediaEvent{PageName: pageName, Media: media, CustomParameters: encode.ParamsFromMap(custom)}, nil)
}

// ResumeSession is called by hosts when the application returns to the foreground. It starts
// a new session if the user was inactive for longer than the session timeout.
func (t *Tracker) ResumeSession(ctx context.Context) (bool, error) {
	if !t.isInitialized() {
		return false, ErrNotInitialized
	}
	return t.sessions.ResumeSession(ctx)
}

func (t *Tracker) GetEverId(ctx context.Context) (string, error) {
	return t.identity.EverId(ctx)
}

func (t *Tracker) HasOptOut(ctx context.Context) (bool, error) {
	value, err := t.store.Get(ctx, data.PrefOptOut, "0")
	if err != nil {
		return false, err
	}
	return value == "1", nil
}

// OptOut stores the opt-out choice. When opting out, already queued requests are either
// delivered one last time (sendCurrentData) or dropped.
func (t *Tracker) OptOut(ctx context.Context, value, sendCurrentData bool) error {
	stored := "0"
	if value {
		stored = "1"
	}
	if err := t.store.Set(ctx, data.PrefOptOut, stored); err != nil {
		return fmt.Errorf("failed to store opt-out: %w", err)
	}
	if !value {
		t.logger.Info("User opted back in to tracking")
		return nil
	}
	t.logger.WithField("sendCurrentData", sendCurrentData).Info("User opted out of tracking")
	if !sendCurrentData {
		return t.queue.Clear(ctx)
	}
	sent, err := t.scheduler.FlushIgnoringOptOut(ctx, nil)
	if err != nil {
		if errors.Is(err, scheduler.ErrFlushStalled) {
			t.logger.Warnf("Could not send all queued requests before opting out (sent %d): %v", sent, err)
			return nil
		}
		return err
	}
	return nil
}

// Flush sends every queued request now.
func (t *Tracker) Flush(ctx context.Context, progress func(scheduler.CycleResult)) (int, error) {
	return t.scheduler.Flush(ctx, progress)
}

// SendRequests runs a single send cycle.
func (t *Tracker) SendRequests(ctx context.Context) (scheduler.CycleResult, error) {
	return t.scheduler.SendRequests(ctx)
}

// CleanUp deletes queued requests older than the retention window, or older than before if
// it is not the zero time.
func (t *Tracker) CleanUp(ctx context.Context, before time.Time) (int64, error) {
	if before.IsZero() {
		return t.scheduler.CleanUp(ctx)
	}
	return t.scheduler.CleanUpBefore(ctx, before)
}

// Trigger asks the background jobs to send right away.
func (t *Tracker) Trigger() {
	t.scheduler.Trigger()
}

func (t *Tracker) Errors() <-chan error {
	return t.scheduler.Errors()
}

func (t *Tracker) Pending(ctx context.Context, limit int) ([]data.DataTrack, error) {
	return t.queue.PeekBatch(ctx, limit)
}

func (t *Tracker) PendingCount(ctx context.Context) (int64, error) {
	return t.queue.Count(ctx)
}

func (t *Tracker) Config() tctx.Config {
	return *t.conf
}

// DeliveryURL renders the URL a queued request is delivered to.
func (t *Tracker) DeliveryURL(ctx context.Context, track data.DataTrack) (string, error) {
	everId, err := t.identity.EverId(ctx)
	if err != nil {
		return "", err
	}
	return encode.BuildURL(track, t.conf.TrackDomain, t.conf.TrackIds, everId), nil
}

// Close stops the background jobs, waiting for an in-flight cycle, and releases the database
// if the tracker opened it.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.initialized = false
	t.mu.Unlock()

	t.scheduler.Stop()
	if t.statsd != nil {
		t.statsd.Close()
	}
	if t.ownsDb {
		return tctx.CloseDb(t.db)
	}
	return nil
}

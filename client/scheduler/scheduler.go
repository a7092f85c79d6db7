// Package scheduler drains the request queue on a fixed cadence, delivers every queued
// request and evicts requests that outlived the retention window.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/sirupsen/logrus"
	"github.com/webtrekk/webtrekk-go/client/backend"
	"github.com/webtrekk/webtrekk-go/client/data"
	"github.com/webtrekk/webtrekk-go/client/encode"
	"github.com/webtrekk/webtrekk-go/client/queue"
	"github.com/webtrekk/webtrekk-go/client/tctx"
	"github.com/webtrekk/webtrekk-go/shared"
	"golang.org/x/time/rate"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

var (
	ErrStopped      = errors.New("scheduler was stopped")
	ErrFlushStalled = errors.New("send cycle made no progress")
)

type State int32

const (
	Idle State = iota
	Draining
	Sending
	Success
	PartialFailure
	TotalFailure
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Draining:
		return "draining"
	case Sending:
		return "sending"
	case Success:
		return "success"
	case PartialFailure:
		return "partial_failure"
	case TotalFailure:
		return "total_failure"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// CycleResult describes a single send cycle. Skipped counts requests of the batch that were
// never attempted because the cycle was cancelled, they stay queued.
type CycleResult struct {
	State     State
	OptedOut  bool
	Attempted int
	Sent      int
	Failed    int
	Skipped   int
}

// EverIdSource supplies the installation id that every delivered request carries.
type EverIdSource interface {
	EverId(ctx context.Context) (string, error)
}

// OptOutFunc reports whether the user opted out of tracking.
type OptOutFunc func(ctx context.Context) (bool, error)

type Scheduler struct {
	conf     *tctx.Config
	queue    *queue.Queue
	sender   backend.Sender
	identity EverIdSource

	logger  *logrus.Logger
	statsd  *statsd.Client
	optOut  OptOutFunc
	runner  JobRunner
	limiter *rate.Limiter
	now     func() time.Time

	state   atomic.Int32
	cycleMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	ctx     context.Context
	wg      sync.WaitGroup
	errs    chan error
}

type Option func(*Scheduler)

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithStatsd reports delivery metrics to a DogStatsD agent. Metrics are skipped when client is nil.
func WithStatsd(client *statsd.Client) Option {
	return func(s *Scheduler) {
		s.statsd = client
	}
}

func WithOptOut(fn OptOutFunc) Option {
	return func(s *Scheduler) {
		s.optOut = fn
	}
}

func WithJobRunner(runner JobRunner) Option {
	return func(s *Scheduler) {
		s.runner = runner
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func New(conf *tctx.Config, q *queue.Queue, sender backend.Sender, identity EverIdSource, opts ...Option) *Scheduler {
	c := *conf
	c.FillDefaults()
	s := &Scheduler{
		conf:     &c,
		queue:    q,
		sender:   sender,
		identity: identity,
		logger:   logrus.StandardLogger(),
		now:      time.Now,
		errs:     make(chan error, 16),
	}
	if c.MaxSendsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(c.MaxSendsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runner == nil {
		s.runner = NewTickerJobRunner(NewNetworkChecker(c.TrackDomain), s.logger)
	}
	return s
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(state State) {
	old := State(s.state.Swap(int32(state)))
	if old != state {
		s.logger.WithFields(logrus.Fields{"from": old, "to": state}).Debug("Scheduler state changed")
	}
}

// SendRequests runs one send cycle: it reads the oldest batch of queued requests and delivers
// each of them. A request is removed from the queue as soon as its own delivery succeeded,
// failed requests stay queued for the next cycle. Delivery failures are not returned as an
// error, only storage failures and cancellation are.
func (s *Scheduler) SendRequests(ctx context.Context) (CycleResult, error) {
	return s.sendCycle(ctx, true)
}

func (s *Scheduler) sendCycle(ctx context.Context, checkOptOut bool) (CycleResult, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	defer s.setState(Idle)

	span, ctx := tracer.StartSpanFromContext(ctx, "webtrekk.send_cycle")
	defer span.Finish()
	start := s.now()

	if checkOptOut && s.optOut != nil {
		optedOut, err := s.optOut(ctx)
		if err != nil {
			return CycleResult{State: Idle}, fmt.Errorf("failed to check opt-out: %w", err)
		}
		if optedOut {
			s.logger.Debug("User opted out, not sending queued requests")
			return CycleResult{State: Idle, OptedOut: true}, nil
		}
	}

	s.setState(Draining)
	batch, err := s.queue.PeekBatch(ctx, s.conf.BatchSize)
	if err != nil {
		return CycleResult{State: Idle}, err
	}
	if len(batch) == 0 {
		return CycleResult{State: Idle}, nil
	}
	everId, err := s.identity.EverId(ctx)
	if err != nil {
		return CycleResult{State: Idle}, fmt.Errorf("failed to read ever id: %w", err)
	}

	s.setState(Sending)
	var sent, failed atomic.Int64
	err = shared.ForEach(ctx, batch, s.conf.MaxParallelSends, func(ctx context.Context, track data.DataTrack) error {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		ok, err := s.deliver(ctx, track, everId)
		if err != nil {
			return err
		}
		if ok {
			sent.Add(1)
		} else {
			failed.Add(1)
		}
		return nil
	})

	result := CycleResult{
		Attempted: int(sent.Load() + failed.Load()),
		Sent:      int(sent.Load()),
		Failed:    int(failed.Load()),
	}
	result.Skipped = len(batch) - result.Attempted
	switch {
	case result.Sent == len(batch):
		result.State = Success
	case result.Sent == 0:
		result.State = TotalFailure
	default:
		result.State = PartialFailure
	}
	s.setState(result.State)
	s.logger.WithFields(logrus.Fields{
		"state":   result.State,
		"sent":    result.Sent,
		"failed":  result.Failed,
		"skipped": result.Skipped,
	}).Info("Finished send cycle")
	if s.statsd != nil {
		s.statsd.Distribution("webtrekk.cycle_duration", float64(s.now().Sub(start).Microseconds())/1_000, []string{"STATE=" + result.State.String()}, 1.0)
	}
	return result, err
}

// deliver sends a single request and removes it from the queue on success. A false result
// with a nil error means the request stays queued for the next cycle.
func (s *Scheduler) deliver(ctx context.Context, track data.DataTrack, everId string) (bool, error) {
	url := encode.BuildURL(track, s.conf.TrackDomain, s.conf.TrackIds, everId)
	sendCtx, cancel := context.WithTimeout(ctx, s.conf.SendTimeout())
	err := s.sender.Send(sendCtx, url)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled by Stop, not a delivery failure
			return false, ctx.Err()
		}
		fields := logrus.Fields{"id": track.TrackRequest.Id, "name": track.TrackRequest.Name}
		if backend.IsOfflineError(err) {
			s.logger.WithFields(fields).Debugf("Endpoint unreachable, will retry next cycle: %v", err)
		} else {
			s.logger.WithFields(fields).Warnf("Failed to send track request, will retry next cycle: %v", err)
		}
		if s.statsd != nil {
			s.statsd.Incr("webtrekk.failed", []string{}, 1.0)
		}
		return false, nil
	}
	// The endpoint already has the request, so it must be removed even if the cycle is being cancelled
	if err := s.queue.MarkSent(context.WithoutCancel(ctx), track.TrackRequest.Id); err != nil {
		return false, err
	}
	if s.statsd != nil {
		s.statsd.Incr("webtrekk.sent", []string{}, 1.0)
	}
	return true, nil
}

// CleanUp deletes every queued request older than the retention window and returns how many
// were deleted.
func (s *Scheduler) CleanUp(ctx context.Context) (int64, error) {
	return s.CleanUpBefore(ctx, s.now().Add(-s.conf.RetentionWindow()))
}

func (s *Scheduler) CleanUpBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	deleted, err := s.queue.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.WithField("cutoff", cutoff.Format(time.RFC3339)).Infof("Deleted %d expired track requests", deleted)
	}
	if s.statsd != nil {
		s.statsd.Count("webtrekk.cleaned", deleted, []string{}, 1.0)
	}
	return deleted, nil
}

// Flush runs send cycles until the queue is empty. It stops with ErrFlushStalled when a cycle
// could not deliver anything. progress is called after every cycle and may be nil.
func (s *Scheduler) Flush(ctx context.Context, progress func(CycleResult)) (int, error) {
	return s.flush(ctx, true, progress)
}

// FlushIgnoringOptOut is Flush for the data that was queued before the user opted out and
// asked for it to be sent anyway.
func (s *Scheduler) FlushIgnoringOptOut(ctx context.Context, progress func(CycleResult)) (int, error) {
	return s.flush(ctx, false, progress)
}

func (s *Scheduler) flush(ctx context.Context, checkOptOut bool, progress func(CycleResult)) (int, error) {
	total := 0
	for {
		result, err := s.sendCycle(ctx, checkOptOut)
		total += result.Sent
		if progress != nil {
			progress(result)
		}
		if err != nil {
			return total, err
		}
		if result.OptedOut || (result.Attempted == 0 && result.Skipped == 0) {
			return total, nil
		}
		if result.Sent == 0 {
			return total, fmt.Errorf("%w: %d requests failed", ErrFlushStalled, result.Failed)
		}
	}
}

// Start registers the send and cleanup jobs with the job runner. Starting a running scheduler
// only logs a warning.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.running {
		s.logger.Warn("Scheduler is already running, ignoring duplicate start")
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	constraints := Constraints{RequireNetwork: s.conf.RequireNetwork, RequireBatteryNotLow: s.conf.RequireBatteryNotLow}
	err := s.runner.Schedule(ctx, Job{
		Name:        "send_requests",
		Interval:    s.conf.RequestsInterval(),
		Constraints: constraints,
		Run:         s.runSendCycle,
	})
	if err == nil {
		err = s.runner.Schedule(ctx, Job{
			Name:     "clean_up",
			Interval: s.conf.CleanupInterval(),
			Run:      s.runCleanUp,
		})
	}
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule jobs: %w", err)
	}
	s.ctx = ctx
	s.cancel = cancel
	s.running = true
	return nil
}

// Trigger starts a send cycle right away instead of waiting for the next tick. It does nothing
// unless the scheduler is running.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()
	go s.runSendCycle(ctx)
}

// Errors reports failures of background cycles. It is closed by Stop.
func (s *Scheduler) Errors() <-chan error {
	return s.errs
}

// Stop cancels the in-flight cycle, waits for it to return and closes Errors. Requests that
// were not confirmed by the endpoint stay queued.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if r, ok := s.runner.(*TickerJobRunner); ok {
		r.Wait()
	}
	close(s.errs)
}

// track registers a background run, it returns false once Stop was called.
func (s *Scheduler) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Scheduler) runSendCycle(ctx context.Context) {
	if !s.track() {
		return
	}
	defer s.wg.Done()
	_, err := s.SendRequests(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Warnf("Send cycle failed: %v", err)
		s.publish(err)
	}
}

func (s *Scheduler) runCleanUp(ctx context.Context) {
	if !s.track() {
		return
	}
	defer s.wg.Done()
	_, err := s.CleanUp(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Warnf("Cleanup failed: %v", err)
		s.publish(err)
	}
}

func (s *Scheduler) publish(err error) {
	select {
	case s.errs <- err:
	default:
		s.logger.Debug("Dropping background error, nobody is reading Errors()")
	}
}

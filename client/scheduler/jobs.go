package scheduler

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Constraints are the coarse conditions a periodic job waits for before running.
type Constraints struct {
	RequireNetwork       bool
	RequireBatteryNotLow bool
}

// ConstraintChecker decides whether the constraints of a job currently hold.
type ConstraintChecker interface {
	Satisfied(ctx context.Context, c Constraints) bool
}

type ConstraintCheckerFunc func(ctx context.Context, c Constraints) bool

func (f ConstraintCheckerFunc) Satisfied(ctx context.Context, c Constraints) bool {
	return f(ctx, c)
}

// Job is a unit of periodic work. Run is invoked roughly every Interval while the context
// passed to Schedule is live and the constraints hold.
type Job struct {
	Name        string
	Interval    time.Duration
	Constraints Constraints
	Run         func(ctx context.Context)
}

// JobRunner is the periodic scheduling facility. Host applications with their own scheduler
// implement it; TickerJobRunner is used otherwise.
type JobRunner interface {
	// Schedule registers job until ctx is done.
	Schedule(ctx context.Context, job Job) error
}

// TickerJobRunner runs every job on its own time.Ticker.
type TickerJobRunner struct {
	checker ConstraintChecker
	logger  *logrus.Logger
	wg      sync.WaitGroup
}

func NewTickerJobRunner(checker ConstraintChecker, logger *logrus.Logger) *TickerJobRunner {
	if checker == nil {
		checker = AlwaysSatisfied
	}
	return &TickerJobRunner{checker: checker, logger: logger}
}

func (r *TickerJobRunner) Schedule(ctx context.Context, job Job) error {
	if job.Interval <= 0 {
		return fmt.Errorf("job %s has a non-positive interval %s", job.Name, job.Interval)
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(job.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !r.checker.Satisfied(ctx, job.Constraints) {
					r.logger.WithField("job", job.Name).Debug("Skipping job run, constraints not met")
					continue
				}
				job.Run(ctx)
			}
		}
	}()
	return nil
}

// Wait blocks until every scheduled job has returned after its context was cancelled.
func (r *TickerJobRunner) Wait() {
	r.wg.Wait()
}

var AlwaysSatisfied = ConstraintCheckerFunc(func(ctx context.Context, c Constraints) bool { return true })

// NetworkChecker treats the network as available when the host of the collection endpoint
// resolves. There is no battery information outside of mobile platforms, so
// RequireBatteryNotLow is always considered satisfied.
type NetworkChecker struct {
	host     string
	resolver *net.Resolver
	timeout  time.Duration
}

func NewNetworkChecker(trackDomain string) *NetworkChecker {
	host := trackDomain
	if u, err := url.Parse(trackDomain); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return &NetworkChecker{host: host, resolver: net.DefaultResolver, timeout: 5 * time.Second}
}

func (n *NetworkChecker) Satisfied(ctx context.Context, c Constraints) bool {
	if !c.RequireNetwork {
		return true
	}
	if ip := net.ParseIP(n.host); ip != nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	addrs, err := n.resolver.LookupHost(ctx, n.host)
	return err == nil && len(addrs) > 0
}

// Package polling waits for an asynchronous conversion job to reach a
// terminal state by querying its status at an increasing interval.
package polling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Strategy selects how the interval between two status polls grows.
type Strategy int

const (
	// StrategyExponential multiplies the interval by Policy.GrowthFactor
	// after every pending poll, clamped at Policy.MaxInterval.
	StrategyExponential Strategy = iota
	// StrategyFixed keeps the interval constant at Policy.InitialInterval.
	StrategyFixed
)

// Defaults match the hosted service: poll every second, back off to at most
// 5 seconds, give up after 2 hours.
const (
	DefaultInitialInterval = 1 * time.Second
	DefaultMaxInterval     = 5 * time.Second
	DefaultMaxTotalWait    = 2 * time.Hour
	DefaultGrowthFactor    = 2.0
)

// Policy configures one Await call.
type Policy struct {
	Strategy        Strategy
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxTotalWait    time.Duration
	// GrowthFactor is only read for StrategyExponential. Values below 1 are
	// replaced by DefaultGrowthFactor.
	GrowthFactor float64
}

// DefaultPolicy returns the exponential policy used by the hosted service.
func DefaultPolicy() Policy {
	return Policy{
		Strategy:        StrategyExponential,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		MaxTotalWait:    DefaultMaxTotalWait,
		GrowthFactor:    DefaultGrowthFactor,
	}
}

// growthFactor resolves the strategy variant to a concrete multiplier
// before the loop starts.
func (p Policy) growthFactor() float64 {
	switch p.Strategy {
	case StrategyFixed:
		return 1.0
	default:
		if p.GrowthFactor < 1.0 {
			return DefaultGrowthFactor
		}
		return p.GrowthFactor
	}
}

func (p Policy) withDefaults() Policy {
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultInitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultMaxInterval
	}
	if p.InitialInterval > p.MaxInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.MaxTotalWait <= 0 {
		p.MaxTotalWait = DefaultMaxTotalWait
	}
	return p
}

// State is the reported state of a job.
type State int

const (
	// StatePending means the job is still processing and should be polled again.
	StatePending State = iota
	// StateCompleted is terminal; Status.DownloadURL carries the result.
	StateCompleted
	// StateFailed is terminal; Status.FailureReason carries the cause.
	StateFailed
)

// Status is one observation of a job, as reported by the service.
type Status struct {
	State         State
	DownloadURL   string
	FailureReason string
}

// StatusFunc queries the current status of a job. A returned error means the
// status could not be determined (transport failure, malformed response) and
// aborts the wait immediately; it is never retried here.
type StatusFunc func(ctx context.Context) (Status, error)

// ErrTimeout is returned when no terminal state was observed within
// Policy.MaxTotalWait.
var ErrTimeout = errors.New("timed out waiting for conversion to complete")

// ErrMissingDownloadURL is returned when the service reports a completed job
// without a result URL. This is a broken server contract, not a retriable
// condition.
var ErrMissingDownloadURL = errors.New("job completed but response contains no download URL")

// JobFailedError is returned when the service explicitly reports the job as
// failed.
type JobFailedError struct {
	Reason string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("conversion failed: %s", e.Reason)
}

// Clock abstracts time for the wait loop so tests can observe suspensions.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Poller drives the wait loop for one or more jobs. The zero value is not
// usable; create one with NewPoller.
type Poller struct {
	clock  Clock
	logger log.Logger
}

// NewPoller creates a Poller. clock can be nil, unless you want to inject a
// custom Clock implementation.
func NewPoller(clock Clock, logger log.Logger) *Poller {
	if clock == nil {
		clock = realClock{}
	}
	return &Poller{clock: clock, logger: logger}
}

// Await polls status until the job reaches a terminal state and returns the
// result's download URL. It suspends between polls according to policy:
// the first suspension lasts InitialInterval, each later one grows by the
// resolved factor up to MaxInterval. Exactly one suspension happens per
// pending poll and none after a terminal one.
//
// Elapsed time is measured from the first call; once it exceeds
// Policy.MaxTotalWait no further poll is issued and ErrTimeout is returned.
func (p *Poller) Await(ctx context.Context, status StatusFunc, policy Policy) (string, error) {
	policy = policy.withDefaults()
	factor := policy.growthFactor()
	interval := policy.InitialInterval
	start := p.clock.Now()

	for attempt := 1; ; attempt++ {
		if p.clock.Now().Sub(start) >= policy.MaxTotalWait {
			return "", ErrTimeout
		}

		observed, err := status(ctx)
		if err != nil {
			return "", fmt.Errorf("query job status: %w", err)
		}

		switch observed.State {
		case StateCompleted:
			if observed.DownloadURL == "" {
				return "", ErrMissingDownloadURL
			}
			return observed.DownloadURL, nil
		case StateFailed:
			return "", &JobFailedError{Reason: observed.FailureReason}
		}

		p.logger.Debugf("Job still processing (attempt %d), next check in %s", attempt, interval)
		p.clock.Sleep(interval)

		next := time.Duration(float64(interval) * factor)
		if next > policy.MaxInterval {
			next = policy.MaxInterval
		}
		interval = next
	}
}

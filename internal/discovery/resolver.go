package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dantescan/internal/logging"
	"github.com/muurk/dantescan/internal/provider"
)

const (
	// DefaultPollInterval is the delay between resolution state polls
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultPollAttempts bounds the number of polls per device (about 3s total)
	DefaultPollAttempts = 30
)

// Resolution is the outcome of resolving one device address.
type Resolution struct {
	Name     string
	IP       string
	State    provider.ConnState
	Attempts int
	Elapsed  time.Duration
	// Err explains why IP is the sentinel. It is nil on success.
	Err error
}

// Resolver turns a device name into a network address by polling a transient
// provider connection until it resolves, fails or the poll budget runs out.
type Resolver struct {
	env    provider.Environment
	logger *zap.Logger

	// Interval is the delay between polls
	Interval time.Duration

	// Attempts is the maximum number of polls
	Attempts int

	// Observer, when set, is told about every resolution
	Observer Observer
}

// NewResolver creates a resolver with the default 30 x 100ms budget.
func NewResolver(env provider.Environment, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = logging.Named("resolver")
	}
	return &Resolver{
		env:      env,
		logger:   logger,
		Interval: DefaultPollInterval,
		Attempts: DefaultPollAttempts,
	}
}

// Budget returns the worst-case time a single resolution may take.
func (r *Resolver) Budget() time.Duration {
	return time.Duration(r.Attempts) * r.Interval
}

// Resolve returns the dotted-quad address of the named device, or
// UnresolvedIP when the connection cannot be opened, enters the error state,
// fails to report an address or does not resolve within the poll budget.
// The transient connection is always closed before Resolve returns.
func (r *Resolver) Resolve(ctx context.Context, name string) Resolution {
	start := time.Now()
	res := Resolution{Name: name, IP: UnresolvedIP, State: provider.StateResolving}

	conn, err := r.env.OpenDevice(name)
	if err != nil {
		res.Err = NewProviderError("open device connection", err)
		res.Elapsed = time.Since(start)
		r.logger.Warn("Failed to open device connection",
			zap.String("device", name),
			zap.Error(err),
		)
		return res
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			r.logger.Debug("Failed to close device connection",
				zap.String("device", name),
				zap.Error(cerr),
			)
		}
	}()

	p := newPoll(conn, r.env.Runtime(), r.Attempts, r.Interval, start)
	res.State, res.Err = p.run(ctx)
	res.Attempts = p.attempts

	if res.Err == nil {
		host, err := conn.Address()
		if err != nil {
			res.Err = NewProviderError("read device address", err)
		} else {
			res.IP = FormatIPv4(host)
		}
	}
	res.Elapsed = time.Since(start)

	if res.Err != nil {
		r.logger.Warn("Device did not resolve",
			zap.String("device", name),
			zap.Stringer("state", res.State),
			zap.Int("attempts", res.Attempts),
			zap.Duration("elapsed", res.Elapsed),
			zap.Error(res.Err),
		)
	} else {
		r.logger.Info("Device address resolved",
			zap.String("device", name),
			zap.String("ip", res.IP),
			zap.Int("attempts", res.Attempts),
		)
	}
	if r.Observer != nil {
		r.Observer.Resolved(res)
	}
	return res
}

// pollStep is the state of a resolution poll.
type pollStep int

const (
	stepPoll pollStep = iota
	stepWait
	stepReady
	stepFailed
	stepExpired
)

// poll is the resolution state machine. It advances one step at a time
// and never blocks except in wait, which honours ctx and the deadline.
type poll struct {
	conn     provider.Connection
	runtime  provider.Runtime
	step     pollStep
	state    provider.ConnState
	attempts int
	max      int
	interval time.Duration
	deadline time.Time
}

func newPoll(conn provider.Connection, rt provider.Runtime, max int, interval time.Duration, start time.Time) *poll {
	if max < 1 {
		max = 1
	}
	return &poll{
		conn:     conn,
		runtime:  rt,
		step:     stepPoll,
		state:    provider.StateResolving,
		max:      max,
		interval: interval,
		// The attempt count is the normal bound. The deadline caps the total
		// when ProcessEvents itself is slow.
		deadline: start.Add(2 * time.Duration(max) * interval),
	}
}

// advance performs one non-blocking transition.
func (p *poll) advance(now time.Time) {
	switch p.step {
	case stepPoll:
		p.state = p.conn.State()
		p.attempts++
		switch {
		case p.state.Ready():
			p.step = stepReady
		case p.state == provider.StateError:
			p.step = stepFailed
		default:
			// Give the provider a chance to make progress on the lookup
			if p.runtime != nil {
				_ = p.runtime.ProcessEvents()
			}
			p.step = stepWait
		}
	case stepWait:
		if p.attempts >= p.max || !now.Before(p.deadline) {
			p.step = stepExpired
		} else {
			p.step = stepPoll
		}
	}
}

func (p *poll) done() bool {
	return p.step == stepReady || p.step == stepFailed || p.step == stepExpired
}

// run drives the state machine to a terminal step.
func (p *poll) run(ctx context.Context) (provider.ConnState, error) {
	for !p.done() {
		p.advance(time.Now())
		if p.step != stepWait {
			continue
		}
		if err := sleepCtx(ctx, p.interval); err != nil {
			return p.state, &Error{Type: ErrTypeTimeout, Message: "resolution cancelled", Err: err}
		}
		p.advance(time.Now())
	}

	switch p.step {
	case stepReady:
		return p.state, nil
	case stepFailed:
		return p.state, NewProviderError("device resolution", provider.NewError("device state", provider.CodeFailed, nil))
	default:
		return p.state, NewTimeoutError("device did not resolve in time")
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Ticker is a source of one-second ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers. Tests inject a fake clock to drive ticks by hand.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type systemClock struct{}

type systemTicker struct{ t *time.Ticker }

func (systemClock) NewTicker(d time.Duration) Ticker { return systemTicker{time.NewTicker(d)} }

func (t systemTicker) C() <-chan time.Time { return t.t.C }
func (t systemTicker) Stop()               { t.t.Stop() }

// SystemClock ticks on wall-clock time.
var SystemClock Clock = systemClock{}

type command struct {
	apply func(*Session) error
	reply chan error
}

// Runner serialises every event of one session onto a single goroutine:
// clock ticks, integrity signals and taker commands. Ticks that are already
// due are always applied before the next queued command, so an expiry wins a
// race against a submit issued in the same instant.
type Runner struct {
	session  *Session
	clock    Clock
	ticker   Ticker
	commands chan command
	done     chan struct{}
	onChange func(*Session)
	log      zerolog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClock overrides the tick source.
func WithClock(c Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

// WithOnChange registers a hook called on the runner goroutine after every
// processed event. It must not block for long; it is the place to checkpoint.
func WithOnChange(fn func(*Session)) RunnerOption {
	return func(r *Runner) { r.onChange = fn }
}

// NewRunner wraps s. Call Run to start processing.
func NewRunner(s *Session, log zerolog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		session:  s,
		clock:    SystemClock,
		commands: make(chan command),
		done:     make(chan struct{}),
		log:      log.With().Str("component", "session_runner").Str("session_id", s.ID()).Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes events until ctx is cancelled or the session locks.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)
	defer r.stopTicker()

	for {
		r.syncTicker()
		if r.session.Phase() == PhaseLocked {
			r.log.Debug().Msg("Session locked, runner exiting")
			return
		}

		// Ticks already due take precedence over queued commands.
		select {
		case <-r.tickC():
			r.session.Tick()
			r.changed()
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-r.tickC():
			r.session.Tick()
		case cmd := <-r.commands:
			cmd.reply <- cmd.apply(r.session)
		}
		r.changed()
	}
}

// Do queues fn for execution on the session goroutine and waits for its result.
func (r *Runner) Do(ctx context.Context, fn func(*Session) error) error {
	cmd := command{apply: fn, reply: make(chan error, 1)}

	select {
	case r.commands <- cmd:
	case <-r.done:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once the runner has accepted the command it always replies.
	return <-cmd.reply
}

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Session exposes the wrapped session. Only touch it from inside Do.
func (r *Runner) Session() *Session { return r.session }

func (r *Runner) tickC() <-chan time.Time {
	if r.ticker == nil {
		return nil
	}
	return r.ticker.C()
}

// syncTicker keeps the tick source running exactly while the session is in
// progress.
func (r *Runner) syncTicker() {
	inProgress := r.session.Phase() == PhaseInProgress
	switch {
	case inProgress && r.ticker == nil:
		r.ticker = r.clock.NewTicker(time.Second)
		r.log.Debug().Msg("Timer started")
	case !inProgress && r.ticker != nil:
		r.stopTicker()
		st := r.session.State()
		r.log.Info().
			Str("outcome", string(st.Outcome)).
			Int("infractions", st.InfractionCount).
			Int("remaining_seconds", st.RemainingSeconds).
			Msg("Session completed, timer cancelled")
	}
}

func (r *Runner) stopTicker() {
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
}

func (r *Runner) changed() {
	if r.onChange != nil {
		r.onChange(r.session)
	}
}

package engine

// Timer is a one-second-resolution countdown. It is driven by explicit Tick
// calls so callers decide where ticks come from (a wall-clock ticker in
// production, a loop in tests).
type Timer struct {
	remaining int
	started   bool
	expired   bool
	stopped   bool
}

// NewTimer returns an unstarted timer.
func NewTimer() *Timer {
	return &Timer{}
}

// Start begins the countdown. A timer can only be started once.
func (t *Timer) Start(seconds int) error {
	if seconds <= 0 {
		return ErrInvalidDuration
	}
	if t.started {
		return ErrTimerRunning
	}
	t.started = true
	t.remaining = seconds
	return nil
}

// Tick decrements the remaining time by one second. It returns true exactly
// once, on the tick that reaches zero. Ticks on an unstarted, expired or
// stopped timer have no effect.
func (t *Timer) Tick() bool {
	if !t.Running() {
		return false
	}
	t.remaining--
	if t.remaining <= 0 {
		t.remaining = 0
		t.expired = true
		return true
	}
	return false
}

// catchUp lowers the remaining time to limit when limit is smaller. Like Tick
// it returns true only when this call expires the timer.
func (t *Timer) catchUp(limit int) bool {
	if !t.Running() || limit >= t.remaining {
		return false
	}
	t.remaining = limit
	if t.remaining <= 0 {
		t.remaining = 0
		t.expired = true
		return true
	}
	return false
}

// Remaining returns the seconds left.
func (t *Timer) Remaining() int {
	return t.remaining
}

// Running reports whether further ticks have an effect.
func (t *Timer) Running() bool {
	return t.started && !t.expired && !t.stopped
}

// Expired reports whether the countdown reached zero.
func (t *Timer) Expired() bool {
	return t.expired
}

// Stop cancels the countdown. Remaining time is frozen at its current value.
func (t *Timer) Stop() {
	t.stopped = true
}

// resume rebuilds a timer from checkpointed state.
func resumeTimer(remaining int, running bool) *Timer {
	t := &Timer{remaining: remaining, started: true}
	if remaining <= 0 {
		t.remaining = 0
		t.expired = true
	} else if !running {
		t.stopped = true
	}
	return t
}

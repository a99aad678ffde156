package countdown

import (
	"sync"
	"time"

	"github.com/BradenHooton/otpflow/internal/clock"
	"github.com/BradenHooton/otpflow/internal/models"
)

// Tick is one recomputation of the remaining time for a session
type Tick struct {
	Generation uint64
	Remaining  int
	At         time.Time
}

// Timer periodically recomputes the remaining seconds of one TokenSession.
// Every tick reads the clock again, so a suspended process catches up on resume.
type Timer struct {
	session    models.TokenSession
	clock      clock.Clock
	interval   time.Duration
	generation uint64
	publish    func(Tick)
	stopCh     chan struct{}
	doneCh     chan struct{}
	stopOnce   sync.Once
}

// Start begins the countdown for session and publishes the first tick immediately.
// The timer stops itself after publishing a zero remaining time.
func Start(session models.TokenSession, clk clock.Clock, interval time.Duration, generation uint64, publish func(Tick)) *Timer {
	if interval <= 0 {
		interval = time.Second
	}

	t := &Timer{
		session:    session,
		clock:      clk,
		interval:   interval,
		generation: generation,
		publish:    publish,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Timer) run() {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if t.emit() {
		return
	}

	for {
		select {
		case <-ticker.C:
			if t.emit() {
				return
			}
		case <-t.stopCh:
			return
		}
	}
}

// emit publishes one tick and reports whether the timer should exit
func (t *Timer) emit() bool {
	select {
	case <-t.stopCh:
		return true
	default:
	}

	now := t.clock.Now()
	remaining := t.session.RemainingSeconds(now)
	t.publish(Tick{Generation: t.generation, Remaining: remaining, At: now})

	return remaining == 0
}

// Generation identifies the session this timer watches
func (t *Timer) Generation() uint64 {
	return t.generation
}

// Stop cancels the periodic task. It is safe to call more than once and from
// inside the publish callback. Use Done to wait for the goroutine to exit.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
}

// Done is closed once the timer goroutine has exited
func (t *Timer) Done() <-chan struct{} {
	return t.doneCh
}

// Package keepalive tracks peer liveness with a counter of unanswered
// keep-alive intervals.
//
// The Primary sends CALV on every tick and counts it as missed until the
// Secondary answers. The Secondary only watches: every tick without a CALV
// from the Primary counts as missed. Either side gives up once the count
// reaches the configured limit:
//
//   - Tick() increments the counter and re-arms the timer
//   - Received() resets the counter to zero
//   - a zero or negative rate disables the monitor entirely
package keepalive

import "time"

// Monitor counts missed keep-alive intervals.
// All methods are used from a single goroutine (the session select loop).
type Monitor struct {
	rate   time.Duration
	limit  int
	missed int
	timer  *time.Timer
	armed  bool
}

// New creates a stopped Monitor. Call Start to arm it.
func New(rate time.Duration, limit int) *Monitor {
	if limit <= 0 {
		limit = 1
	}
	t := time.NewTimer(0)
	// Drain the initial fire from NewTimer(0) so Timer() starts clean
	if !t.Stop() {
		<-t.C
	}
	return &Monitor{rate: rate, limit: limit, timer: t}
}

// Enabled reports whether the monitor has a positive rate.
func (m *Monitor) Enabled() bool {
	return m.rate > 0
}

// Rate returns the interval between ticks.
func (m *Monitor) Rate() time.Duration {
	return m.rate
}

// Start arms the timer for the first interval. It is a no-op when disabled.
func (m *Monitor) Start() {
	m.missed = 0
	m.arm()
}

// SetRate changes the interval and restarts the current one. A
// non-positive rate stops the monitor.
func (m *Monitor) SetRate(rate time.Duration) {
	m.rate = rate
	m.disarm()
	m.arm()
}

// Tick records one elapsed interval and re-arms the timer. It returns true
// once the missed count reaches the limit; the caller should then close
// the session without sending anything.
func (m *Monitor) Tick() bool {
	m.armed = false
	m.missed++
	if m.missed >= m.limit {
		return true
	}
	m.arm()
	return false
}

// Received records a keep-alive from the peer.
func (m *Monitor) Received() {
	m.missed = 0
}

// Missed returns the current count of unanswered intervals.
func (m *Monitor) Missed() int {
	return m.missed
}

// Timer returns the channel that fires when the current interval ends.
// Returns a nil channel when the monitor is not armed (nil channels block
// forever in select, effectively disabling the case).
func (m *Monitor) Timer() <-chan time.Time {
	if !m.armed {
		return nil
	}
	return m.timer.C
}

// Stop releases the timer. Call in defer when done with the Monitor.
func (m *Monitor) Stop() {
	m.disarm()
}

func (m *Monitor) arm() {
	if m.rate <= 0 {
		return
	}
	m.timer.Reset(m.rate)
	m.armed = true
}

func (m *Monitor) disarm() {
	if m.armed && !m.timer.Stop() {
		// Timer already fired; drain so it doesn't trigger a spurious
		// select case later.
		select {
		case <-m.timer.C:
		default:
		}
	}
	m.armed = false
}

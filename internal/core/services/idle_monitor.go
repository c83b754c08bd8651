package services

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// IdleMonitor fires once when no activity has been seen for the timeout, and
// arms again on the next Touch.
type IdleMonitor struct {
	timeout time.Duration
	logger  *zap.SugaredLogger

	mu       sync.Mutex
	timer    *time.Timer
	idle     bool
	lastSeen time.Time
	onIdle   []func()
	stopped  bool
}

func NewIdleMonitor(timeout time.Duration, logger *zap.SugaredLogger) *IdleMonitor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &IdleMonitor{timeout: timeout, logger: logger}
}

// OnIdle registers fn to run, on the timer goroutine, each time the monitor goes idle.
func (m *IdleMonitor) OnIdle(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onIdle = append(m.onIdle, fn)
}

// Start arms the timer. A zero or negative timeout disables the monitor.
func (m *IdleMonitor) Start() {
	m.Touch()
}

// Touch records activity and restarts the countdown.
func (m *IdleMonitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timeout <= 0 || m.stopped {
		return
	}
	m.lastSeen = time.Now()
	m.idle = false
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.timeout, m.fire)
}

func (m *IdleMonitor) fire() {
	m.mu.Lock()
	if m.stopped || m.idle || time.Since(m.lastSeen) < m.timeout {
		m.mu.Unlock()
		return
	}
	m.idle = true
	callbacks := append([]func(){}, m.onIdle...)
	idleFor := time.Since(m.lastSeen)
	m.mu.Unlock()

	m.logger.Infow("Client went idle", "idle_for", idleFor.String())
	for _, fn := range callbacks {
		fn()
	}
}

func (m *IdleMonitor) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idle
}

// Stop disarms the monitor for good.
func (m *IdleMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
	}
}

package transcribe

import (
	"sync"
	"time"
)

type SilenceConfig struct {
	Interval  time.Duration
	Threshold time.Duration
	Warmup    time.Duration
}

func DefaultSilenceConfig() SilenceConfig {
	return SilenceConfig{
		Interval:  3 * time.Second,
		Threshold: 15 * time.Second,
		Warmup:    10 * time.Second,
	}
}

// SilenceMonitor periodically checks a Buffer and calls onSilence when the
// speaker has gone quiet.
type SilenceMonitor struct {
	buffer    *Buffer
	cfg       SilenceConfig
	onSilence func()

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

func NewSilenceMonitor(buffer *Buffer, cfg SilenceConfig, onSilence func()) *SilenceMonitor {
	defaults := DefaultSilenceConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.Warmup < 0 {
		cfg.Warmup = defaults.Warmup
	}
	return &SilenceMonitor{buffer: buffer, cfg: cfg, onSilence: onSilence}
}

// Start launches the check loop. Calling Start on a running monitor is a
// no-op.
func (m *SilenceMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	m.stopped = make(chan struct{})
	go m.run(m.stop, m.stopped)
}

// Stop halts the loop and waits for it to exit. It is safe to call more
// than once and before Start.
func (m *SilenceMonitor) Stop() {
	m.mu.Lock()
	stop, stopped := m.stop, m.stopped
	m.stop, m.stopped = nil, nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-stopped
}

// Check runs a single silence evaluation and fires the callback on a hit.
func (m *SilenceMonitor) Check() bool {
	if !m.buffer.checkSilence(m.cfg.Threshold, m.cfg.Warmup) {
		return false
	}
	if m.onSilence != nil {
		m.onSilence()
	}
	return true
}

func (m *SilenceMonitor) run(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

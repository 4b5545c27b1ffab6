package referee

import (
	"sync"
	"time"
)

// FrameDriver calls tick repeatedly between Start and Stop. Stop may be
// called from inside tick.
type FrameDriver interface {
	Start(tick func())
	Stop()
}

type tickerDriver struct {
	interval time.Duration

	mu   sync.Mutex
	done chan struct{}
}

// NewTickerDriver returns a FrameDriver that ticks on its own goroutine
// every interval.
func NewTickerDriver(interval time.Duration) FrameDriver {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &tickerDriver{interval: interval}
}

func (d *tickerDriver) Start(tick func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != nil {
		return
	}
	done := make(chan struct{})
	d.done = done

	go func() {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				tick()
			}
		}
	}()
}

func (d *tickerDriver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != nil {
		close(d.done)
		d.done = nil
	}
}

// ManualDriver never ticks by itself. Hosts that own their loop, and tests,
// call Referee.Tick directly.
type ManualDriver struct {
	mu      sync.Mutex
	running bool
}

func (d *ManualDriver) Start(func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = true
}

func (d *ManualDriver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
}

// Running reports whether the referee wants ticks.
func (d *ManualDriver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

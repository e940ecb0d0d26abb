// Package gpio drives the board status LEDs through the Raspberry Pi GPIO
// memory interface. On hardware without GPIO everything degrades to no-ops,
// so the daemon runs unchanged on a desktop.
package gpio

import (
	"log/slog"
	"sync"
	"time"

	rpio "github.com/stianeikeland/go-rpio/v4"
)

const (
	statusBlinkInterval = 500 * time.Millisecond
	activityPulse       = 50 * time.Millisecond
)

// Config selects the BCM pin numbers. Zero disables the LED.
type Config struct {
	StatusPin   int `yaml:"statusPin"`
	ActivityPin int `yaml:"activityPin"`
}

// LEDs owns the status LED (blinks while permit join is open) and the
// activity LED (pulses on radio traffic).
type LEDs struct {
	logger    *slog.Logger
	available bool
	status    rpio.Pin
	activity  rpio.Pin
	hasStatus bool
	hasBlink  bool

	mu         sync.Mutex
	permitJoin bool
	done       chan struct{}
}

// Open probes the GPIO interface and starts the status blinker. When the
// interface is unavailable the returned LEDs is a no-op.
func Open(cfg Config, logger *slog.Logger) *LEDs {
	l := &LEDs{
		logger: logger.With("component", "gpio"),
		done:   make(chan struct{}),
	}

	if cfg.StatusPin == 0 && cfg.ActivityPin == 0 {
		return l
	}

	if err := rpio.Open(); err != nil {
		l.logger.Warn("GPIO unavailable, status LEDs disabled", "error", err)
		return l
	}
	l.available = true

	if cfg.StatusPin != 0 {
		l.status = rpio.Pin(cfg.StatusPin)
		l.status.Output()
		l.status.Low()
		l.hasStatus = true
	}
	if cfg.ActivityPin != 0 {
		l.activity = rpio.Pin(cfg.ActivityPin)
		l.activity.Output()
		l.activity.Low()
		l.hasBlink = true
	}

	go l.blinker()
	l.logger.Info("GPIO status LEDs enabled", "statusPin", cfg.StatusPin, "activityPin", cfg.ActivityPin)
	return l
}

// SetPermitJoin switches the status LED between blinking and off.
func (l *LEDs) SetPermitJoin(enabled bool) {
	l.mu.Lock()
	l.permitJoin = enabled
	l.mu.Unlock()
}

// Activity pulses the activity LED once.
func (l *LEDs) Activity() {
	if !l.available || !l.hasBlink {
		return
	}
	l.activity.High()
	time.AfterFunc(activityPulse, l.activity.Low)
}

// Close stops the blinker and releases the GPIO interface.
func (l *LEDs) Close() {
	close(l.done)
	if !l.available {
		return
	}
	if l.hasStatus {
		l.status.Low()
	}
	if l.hasBlink {
		l.activity.Low()
	}
	rpio.Close()
}

func (l *LEDs) blinker() {
	if !l.hasStatus {
		return
	}

	ticker := time.NewTicker(statusBlinkInterval)
	defer ticker.Stop()

	lit := false
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			permit := l.permitJoin
			l.mu.Unlock()

			if permit {
				if lit {
					l.status.Low()
				} else {
					l.status.High()
				}
				lit = !lit
				continue
			}
			if lit {
				l.status.Low()
				lit = false
			}

		case <-l.done:
			return
		}
	}
}

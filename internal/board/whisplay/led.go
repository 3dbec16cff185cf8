package whisplay

import (
	"context"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

const (
	ledPWMFreq  = 100 * physic.Hertz
	ledFadeStep = 20 * time.Millisecond
)

// percentDuty converts 0..100 to a PWM duty.
func percentDuty(percent int) gpio.Duty {
	return gpio.Duty(int64(gpio.DutyMax) * int64(percent) / 100)
}

// invertDuty is percentDuty for active-low outputs.
func invertDuty(percent int) gpio.Duty {
	return gpio.DutyMax - percentDuty(percent)
}

// channelDuty maps an 8 bit channel to a duty, inverted for common anode LEDs.
func channelDuty(v uint8, commonAnode bool) gpio.Duty {
	d := gpio.Duty(int64(gpio.DutyMax) * int64(v) / 255)
	if commonAnode {
		return gpio.DutyMax - d
	}
	return d
}

type rgb struct{ r, g, b uint8 }

// lerp interpolates from a to b at t in [0,1].
func lerp(a, b rgb, t float64) rgb {
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5)
	}
	return rgb{mix(a.r, b.r), mix(a.g, b.g), mix(a.b, b.b)}
}

// led drives the three PWM channels of the RGB LED. A new colour request
// cancels any fade still in progress and fades from wherever it stopped.
type led struct {
	pins        [3]gpio.PinOut
	commonAnode bool

	setMu   sync.Mutex // serializes set calls
	mu      sync.Mutex
	current rgb
	cancel  context.CancelFunc
	done    chan struct{}
}

func (l *led) write(c rgb) error {
	for i, v := range [3]uint8{c.r, c.g, c.b} {
		if l.pins[i] == nil {
			continue
		}
		if err := l.pins[i].PWM(channelDuty(v, l.commonAnode), ledPWMFreq); err != nil {
			return err
		}
	}
	return nil
}

func (l *led) set(r, g, b uint8, fade time.Duration) error {
	l.setMu.Lock()
	defer l.setMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()

	target := rgb{r, g, b}
	if fade <= 0 {
		l.current = target
		return l.write(target)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.cancel, l.done = cancel, done
	from := l.current
	go func() {
		defer close(done)
		start := time.Now()
		ticker := time.NewTicker(ledFadeStep)
		defer ticker.Stop()
		for {
			t := float64(time.Since(start)) / float64(fade)
			if t > 1 {
				t = 1
			}
			c := lerp(from, target, t)
			_ = l.write(c)
			l.mu.Lock()
			l.current = c
			l.mu.Unlock()
			if t == 1 {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

// stopLocked cancels a running fade and waits for it. The fade goroutine
// takes l.mu to record progress, so the lock is released while waiting.
func (l *led) stopLocked() {
	if l.cancel == nil {
		return
	}
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	cancel()
	l.mu.Unlock()
	<-done
	l.mu.Lock()
}

func (l *led) off() error {
	return l.set(0, 0, 0, 0)
}

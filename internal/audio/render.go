package audio

import (
	"errors"
	"time"

	"github.com/winramp/mixcore/internal/audio/mix"
	"github.com/winramp/mixcore/internal/audio/output"
	"github.com/winramp/mixcore/internal/logger"
)

// render produces one frame per period until the device is closed, the
// stream fails, or in unit mode the unit table runs empty. done is closed
// on return.
func (d *Device) render(done chan struct{}) {
	defer close(done)

	cfg := d.config
	frame := d.frame
	pace := newPacer(cfg.Period(), d.opts.SafetyMargin)

	for {
		running, resumed := d.awaitRunning()
		if !running {
			return
		}
		if resumed {
			pace.reset()
		}

		start := time.Now()
		mix.Silence(frame, cfg.Format)

		if cfg.Callback != nil {
			cfg.Callback(frame)
		} else if !d.mixUnits(frame, cfg) {
			return
		}

		if err := d.stream.Write(frame); err != nil {
			if !errors.Is(err, output.ErrUnderrun) {
				d.fail(err)
				return
			}
			if rerr := d.stream.Recover(); rerr != nil {
				d.fail(rerr)
				return
			}
			pace.underrun(time.Since(start))
			d.log.Warn("underrun recovered", logger.Duration("budget", pace.budget))
		} else if d.opts.Observer != nil {
			d.opts.Observer(cfg, frame)
		}

		if sleep := pace.remaining(time.Since(start)); sleep > 0 {
			time.Sleep(sleep)
		}
	}
}

// pacer tracks the sleep budget of one render iteration. Underruns shrink
// it; a resume restores the full period.
type pacer struct {
	full   time.Duration
	budget time.Duration
}

func newPacer(period, margin time.Duration) pacer {
	full := max(0, period-margin)
	return pacer{full: full, budget: full}
}

func (p *pacer) underrun(elapsed time.Duration) {
	p.budget = max(0, p.budget-elapsed)
}

func (p *pacer) reset() { p.budget = p.full }

// remaining returns how long to sleep after an iteration that took elapsed.
func (p *pacer) remaining(elapsed time.Duration) time.Duration {
	return p.budget - elapsed
}

// awaitRunning blocks while the device is paused. running is false once the
// device is closed; resumed reports that the call waited for a Resume.
func (d *Device) awaitRunning() (running, resumed bool) {
	if State(d.state.Load()) == StateRunning {
		return true, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for State(d.state.Load()) == StatePaused {
		d.cond.Wait()
		resumed = true
	}
	return State(d.state.Load()) == StateRunning, resumed
}

// mixUnits mixes every running unit into frame and retires units that
// finished their last pass. It reports false when the goroutine should
// stop: the device was closed, or no unit is attached, in which case the
// device goes idle until the next Play.
func (d *Device) mixUnits(frame []byte, cfg DeviceConfig) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if State(d.state.Load()) == StateClosed {
		return false
	}
	if d.units.len() == 0 {
		d.state.Store(int32(StatePaused))
		d.done = nil
		d.log.Debug("no units attached, render goroutine idle")
		return false
	}

	var finished []*Unit
	for _, u := range d.units.units() {
		if u.state != StateRunning {
			continue
		}
		if err := u.mixInto(frame, cfg); err != nil {
			d.log.Error("unit cannot be mixed", logger.Error(err))
			finished = append(finished, u)
			continue
		}
		if u.advance(cfg.FrameSize) {
			finished = append(finished, u)
		}
	}

	for _, u := range finished {
		d.units.remove(u.handle)
		u.retire()
	}
	return true
}

// fail marks the device closed after an unrecoverable stream error. Errors
// caused by Close aborting a blocked write are expected and not logged.
func (d *Device) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if State(d.state.Swap(int32(StateClosed))) == StateClosed {
		return
	}
	d.broken = err
	d.done = nil
	for _, u := range d.units.clear() {
		u.retire()
	}
	d.log.Error("stream write failed, device closed", logger.Error(err))
}

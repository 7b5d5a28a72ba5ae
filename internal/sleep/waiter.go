package sleep

import "math"

// Wait blocks for canonical seconds, polling sig every CheckInterval.
//
// The deadline is fixed when Wait is entered. A non-positive duration
// returns nil without sleeping or consulting sig. Otherwise sig is checked
// before every slice, so a raised signal is observed within one quantum
// and the call fails with ErrCodeCancelled; it never reports success after
// observing cancellation. A nil sig is never cancelled.
//
// Wait also clamps to MaxSleepSeconds.
func (s *Sleeper) Wait(seconds float64, sig Signal) error {
	return s.wait(funcWait, seconds, sig)
}

func (s *Sleeper) wait(function string, seconds float64, sig Signal) error {
	if math.IsNaN(seconds) {
		s.observer.ObserveWait(function, OutcomeInvalid, 0)
		return NewNaNError()
	}
	seconds = clamp(seconds, s.cfg.MaxSleepSeconds)
	if seconds == 0 {
		s.observer.ObserveWait(function, OutcomeElapsed, 0)
		return nil
	}
	if sig == nil {
		sig = Never
	}

	start := s.clock.Now()
	deadline := start.Add(secondsToDuration(seconds))
	s.logger.Debug("sleep started", "function", function, "seconds", seconds)

	for {
		if sig.Cancelled() {
			elapsed := s.clock.Now().Sub(start)
			s.observer.ObserveWait(function, OutcomeCancelled, elapsed)
			s.logger.Debug("sleep cancelled", "function", function, "seconds", seconds, "elapsed", elapsed)
			return NewCancelledError(cancelCause(sig))
		}

		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			elapsed := s.clock.Now().Sub(start)
			s.observer.ObserveWait(function, OutcomeElapsed, elapsed)
			s.logger.Debug("sleep finished", "function", function, "elapsed", elapsed)
			return nil
		}

		s.clock.Sleep(min(remaining, s.cfg.CheckInterval))
	}
}

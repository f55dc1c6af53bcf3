package migration

import (
	"context"
	"time"
)

type throttleSample struct {
	at    time.Time
	bytes int64
}

// throttleWindow enforces a byte budget over a sliding time window. Uploads
// that would exceed the budget block until the oldest sample ages out; the
// window never drops or rejects a request for being over budget. One
// instance is created per run, so concurrent runs do not contend.
type throttleWindow struct {
	window  time.Duration
	budget  int64
	samples []throttleSample

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func newThrottleWindow(policy ThrottlePolicy) *throttleWindow {
	return &throttleWindow{
		window: time.Duration(policy.WindowSeconds) * time.Second,
		budget: policy.MaxBytesPerWindow,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// inFlight sums the samples still inside the window, pruning aged-out ones.
func (w *throttleWindow) inFlight(now time.Time) int64 {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.samples) && !w.samples[i].at.After(cutoff) {
		i++
	}
	w.samples = w.samples[i:]
	var total int64
	for _, s := range w.samples {
		total += s.bytes
	}
	return total
}

// wait blocks until n bytes fit inside the window budget, then records the
// sample. Single items larger than the whole budget are admitted once the
// window is empty; per-item size limits are the oversize policy's job and
// were enforced before the throttle was reached.
func (w *throttleWindow) wait(ctx context.Context, n int64) error {
	if w.budget <= 0 || n <= 0 {
		return nil
	}
	for {
		now := w.now()
		used := w.inFlight(now)
		if used+n <= w.budget || len(w.samples) == 0 {
			w.samples = append(w.samples, throttleSample{at: now, bytes: n})
			return nil
		}
		// Sleep until the oldest sample leaves the window, then re-evaluate.
		wakeAt := w.samples[0].at.Add(w.window)
		d := wakeAt.Sub(now)
		if d < time.Millisecond {
			d = time.Millisecond
		}
		if err := w.sleep(ctx, d); err != nil {
			return err
		}
	}
}

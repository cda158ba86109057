package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Clock is the time source used by drivers that wait on hardware. Now must
// carry a monotonic reading; elapsed time is always taken with Sub/Since on
// values it returned.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// System is the process clock.
var System Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// Deadline reports whether d has elapsed since start on c.
func Deadline(c Clock, start time.Time, d time.Duration) bool {
	return c.Now().Sub(start) >= d
}

// Fake is a manual clock for tests. Every call to Now advances the clock by
// Step, which models the cost of the work done between two reads.
type Fake struct {
	T    time.Time
	Step time.Duration

	Slept time.Duration
	Reads int
}

func (f *Fake) Now() time.Time {
	now := f.T
	f.T = f.T.Add(f.Step)
	f.Reads++
	return now
}

func (f *Fake) Sleep(d time.Duration) {
	f.Slept += d
	f.T = f.T.Add(d)
}

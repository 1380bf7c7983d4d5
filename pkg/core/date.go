package core

import "time"

// Date - output clock counting samples at a fixed rate from a base timestamp.
// Time is computed from the sample count, so it never drifts.
type Date struct {
	rate  uint32
	base  time.Duration
	count uint32 // samples after base, always less than rate
}

func NewDate(rate uint32) *Date {
	return &Date{rate: rate, base: NoPTS}
}

func (d *Date) Rate() uint32 {
	return d.rate
}

// Change - switch to a new rate keeping the current position
func (d *Date) Change(rate uint32) {
	if d.base != NoPTS {
		d.base = d.Get()
	}
	d.count = 0
	d.rate = rate
}

func (d *Date) Set(ts time.Duration) {
	d.base = ts
	d.count = 0
}

func (d *Date) Get() time.Duration {
	if d.base == NoPTS || d.rate == 0 {
		return d.base
	}
	return d.base + time.Duration(d.count)*time.Second/time.Duration(d.rate)
}

func (d *Date) Valid() bool {
	return d.base != NoPTS
}

// Increment - advance the clock by n samples and return the time before the advance
func (d *Date) Increment(n int) time.Duration {
	ts := d.Get()
	if d.base == NoPTS || d.rate == 0 || n <= 0 {
		return ts
	}

	total := uint64(d.count) + uint64(n)
	secs := total / uint64(d.rate)
	d.base += time.Duration(secs) * time.Second
	d.count = uint32(total - secs*uint64(d.rate))

	return ts
}

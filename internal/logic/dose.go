package logic

// Calculator converts pulse counts into dose samples.
type Calculator struct {
	periodMs   uint32
	multiplier uint64
	tubeFactor float64
}

// NewCalculator creates a calculator for the given sampling period and tube factor.
// The multiplier is 60000/periodMs in integer arithmetic; a period that does
// not divide a minute evenly truncates (see Exact).
func NewCalculator(periodMs uint32, tubeFactor float64) *Calculator {
	var m uint64
	if periodMs > 0 {
		m = uint64(MillisPerMinute / periodMs)
	}
	return &Calculator{
		periodMs:   periodMs,
		multiplier: m,
		tubeFactor: tubeFactor,
	}
}

// PeriodMs returns the sampling period.
func (c *Calculator) PeriodMs() uint32 {
	return c.periodMs
}

// Multiplier returns the counts-to-CPM multiplier.
func (c *Calculator) Multiplier() uint64 {
	return c.multiplier
}

// Exact reports whether the period divides a minute evenly.
func (c *Calculator) Exact() bool {
	return c.periodMs > 0 && MillisPerMinute%c.periodMs == 0
}

// Compute builds a sample from a raw count without touching any counter.
func (c *Calculator) Compute(counts uint64) DoseSample {
	cpm := counts * c.multiplier
	return DoseSample{
		CountsInPeriod:   counts,
		CountsPerMinute:  cpm,
		LogPeriodSeconds: c.periodMs / 1000,
		DoseRate:         c.tubeFactor * float64(cpm),
	}
}

// Sample reads and resets the counter and returns the resulting sample.
func (c *Calculator) Sample(counter *PulseCounter) DoseSample {
	return c.Compute(counter.Take())
}

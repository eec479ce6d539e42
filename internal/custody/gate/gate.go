// Package gate is the single source of truth for temperature audit decisions.
package gate

import "math"

// Celsius is a temperature reading in degrees Celsius.
type Celsius float64

// IsFinite reports whether c is a real measurement. Sensor faults surface as
// NaN or infinities, which cannot be stored in a trail.
func (c Celsius) IsFinite() bool {
	f := float64(c)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Range is an accepted temperature band. Both bounds are exclusive.
type Range struct {
	Min Celsius `json:"min"`
	Max Celsius `json:"max"`
}

// Outcome is the result of a temperature audit.
type Outcome string

const (
	Pass Outcome = "PASS"
	Fail Outcome = "FAIL"
)

func (o Outcome) Passed() bool { return o == Pass }

// Evaluate passes a reading strictly inside the range. A reading equal to
// either bound fails, and NaN fails because every comparison with it is false.
func Evaluate(reading Celsius, r Range) Outcome {
	if r.Min < reading && reading < r.Max {
		return Pass
	}
	return Fail
}

// Contains reports whether reading lies strictly inside the range.
func (r Range) Contains(reading Celsius) bool {
	return Evaluate(reading, r).Passed()
}

// Valid reports whether the range has finite bounds and admits at least one
// reading.
func (r Range) Valid() bool {
	return r.Min.IsFinite() && r.Max.IsFinite() && r.Min < r.Max
}

package analysis

import (
	"errors"
	"math"
	"testing"
)

// TestAccumulator_Empty verifies that an empty accumulator reports ok=false
// instead of a misleading zero.
func TestAccumulator_Empty(t *testing.T) {
	var a Accumulator
	if _, ok := a.Average(); ok {
		t.Error("Average: expected ok=false")
	}
	if _, ok := a.Min(); ok {
		t.Error("Min: expected ok=false")
	}
	if _, ok := a.Max(); ok {
		t.Error("Max: expected ok=false")
	}
	if a.Count() != 0 || a.Sum() != 0 {
		t.Errorf("Count/Sum = %d/%v, want 0/0", a.Count(), a.Sum())
	}
}

// TestAccumulator_Values verifies count, sum, mean and extremes, including
// negative values that must not be confused with the zero value.
func TestAccumulator_Values(t *testing.T) {
	var a Accumulator
	for _, v := range []float64{-3, 7, 2} {
		a.Add(v)
	}
	avg, _ := a.Average()
	lo, _ := a.Min()
	hi, _ := a.Max()
	if a.Count() != 3 || a.Sum() != 6 || avg != 2 || lo != -3 || hi != 7 {
		t.Errorf("got count=%d sum=%v avg=%v min=%v max=%v", a.Count(), a.Sum(), avg, lo, hi)
	}
}

// TestNewTimeWeightedAverage_Validation verifies that non-positive gap or
// bucket sizes are rejected at construction.
func TestNewTimeWeightedAverage_Validation(t *testing.T) {
	cases := []struct{ gap, bucket int64 }{{0, 60}, {600, 0}, {-1, 60}}
	for _, tc := range cases {
		if _, err := NewTimeWeightedAverage(tc.gap, tc.bucket); err == nil {
			t.Errorf("NewTimeWeightedAverage(%d, %d): expected error", tc.gap, tc.bucket)
		}
	}
}

// TestTimeWeightedAverage_Weights verifies that each value is weighted by
// how long it held, capped at the max gap, and that the last value gets the
// bucket weight.
func TestTimeWeightedAverage_Weights(t *testing.T) {
	w, err := NewTimeWeightedAverage(600, 60)
	if err != nil {
		t.Fatal(err)
	}
	w.Add(0, 60)
	w.Add(60, 120)
	got, ok := w.Average()
	// (60*60 + 120*60) / 120
	if !ok || got != 90 {
		t.Errorf("Average() = %v, %v, want 90, true", got, ok)
	}

	w, _ = NewTimeWeightedAverage(600, 60)
	w.Add(0, 60)
	w.Add(3600, 120)
	got, _ = w.Average()
	// gap capped at 600: (60*600 + 120*60) / 660
	want := 43200.0 / 660.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Average() with gap = %v, want %v", got, want)
	}
}

// TestTimeWeightedAverage_SingleValue verifies that one reading averages to itself.
func TestTimeWeightedAverage_SingleValue(t *testing.T) {
	w, _ := NewTimeWeightedAverage(600, 60)
	w.Add(1000, 72)
	got, ok := w.Average()
	if !ok || got != 72 {
		t.Errorf("Average() = %v, %v, want 72, true", got, ok)
	}
	if _, ok := (&TimeWeightedAverage{}).Average(); ok {
		t.Error("empty average: expected ok=false")
	}
}

// TestTimeWeightedAverage_OutOfOrder verifies that going back in time is an error.
func TestTimeWeightedAverage_OutOfOrder(t *testing.T) {
	w, _ := NewTimeWeightedAverage(600, 60)
	w.Add(100, 60)
	if err := w.Add(50, 70); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("Add out of order: err = %v, want ErrOutOfOrder", err)
	}
}

// TestTimeWeightedAverage_Bounds verifies that the average always lies
// between the smallest and largest value added.
func TestTimeWeightedAverage_Bounds(t *testing.T) {
	w, _ := NewTimeWeightedAverage(600, 60)
	values := []float64{55, 130, 72, 64, 180, 91, 58}
	gaps := []int64{60, 30, 900, 60, 5, 1200, 60}
	var ts int64
	for i, v := range values {
		ts += gaps[i]
		if err := w.Add(ts, v); err != nil {
			t.Fatal(err)
		}
	}
	avg, _ := w.Average()
	lo, _ := w.Min()
	hi, _ := w.Max()
	if avg < lo || avg > hi {
		t.Errorf("average %v outside [%v, %v]", avg, lo, hi)
	}
	if lo != 55 || hi != 180 {
		t.Errorf("min/max = %v/%v, want 55/180", lo, hi)
	}
}

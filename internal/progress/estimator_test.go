package progress

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEstimator() (*Estimator, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewEstimatorWithClock(clock.Now), clock
}

func TestEstimateFromTwoSamples(t *testing.T) {
	est, clock := newTestEstimator()

	if !est.RecordSample(0) {
		t.Fatal("first sample rejected")
	}
	if _, ok := est.Estimate(); ok {
		t.Fatal("estimate should be unavailable after one sample")
	}

	clock.Advance(10 * time.Second)
	if !est.RecordSample(0.5) {
		t.Fatal("second sample rejected")
	}
	got, ok := est.Estimate()
	if !ok {
		t.Fatal("expected estimate after two samples")
	}
	if diff := got - 10*time.Second; diff < -time.Millisecond || diff > time.Millisecond {
		t.Fatalf("expected ~10s left, got %v", got)
	}
}

func TestRecordSampleRejectsDuplicates(t *testing.T) {
	est, clock := newTestEstimator()
	est.RecordSample(0.1)

	clock.Advance(400 * time.Millisecond)
	if est.RecordSample(0.2) {
		t.Fatal("sample within the same second should be rejected")
	}

	clock.Advance(time.Second)
	if est.RecordSample(0.1) {
		t.Fatal("sample with unchanged fraction should be rejected")
	}
	if !est.RecordSample(0.3) {
		t.Fatal("distinct sample should be accepted")
	}
}

func TestRegressionKeepsPreviousEstimate(t *testing.T) {
	est, clock := newTestEstimator()
	est.RecordSample(0.2)
	clock.Advance(2 * time.Second)
	est.RecordSample(0.4)
	before, ok := est.Estimate()
	if !ok {
		t.Fatal("expected estimate")
	}

	clock.Advance(2 * time.Second)
	if !est.RecordSample(0.1) {
		t.Fatal("regressing sample should still be recorded")
	}
	after, ok := est.Estimate()
	if !ok || after != before {
		t.Fatalf("expected estimate to stay %v, got %v (ok=%v)", before, after, ok)
	}
	if est.Fraction() != 0.1 {
		t.Fatalf("expected newest fraction 0.1, got %v", est.Fraction())
	}
}

func TestNoEstimateWhenOldestMatchesNewestFraction(t *testing.T) {
	est, clock := newTestEstimator()
	est.RecordSample(0.5)
	clock.Advance(10 * time.Second)
	est.RecordSample(0.3)
	clock.Advance(10 * time.Second)
	if !est.RecordSample(0.5) {
		t.Fatal("sample differing from the newest should be accepted")
	}

	if got, ok := est.Estimate(); ok {
		t.Fatalf("expected no estimate with zero delta against the oldest sample, got %v", got)
	}
}

func TestWindowUsesOldestRetainedSample(t *testing.T) {
	est, clock := newTestEstimator()
	// Slow start, then a steady 0.1/s for the last five samples.
	est.RecordSample(0)
	clock.Advance(100 * time.Second)
	for i := 1; i <= WindowSize; i++ {
		est.RecordSample(float64(i) * 0.01)
		clock.Advance(time.Second)
	}
	for i := 1; i <= WindowSize; i++ {
		clock.Advance(time.Second)
		est.RecordSample(0.05 + float64(i)*0.1)
	}
	// Window now holds 0.15..0.55 at one-second spacing.
	got, ok := est.Estimate()
	if !ok {
		t.Fatal("expected estimate")
	}
	want := time.Duration((1 - 0.55) / 0.1 * float64(time.Second))
	if diff := got - want; diff < -10*time.Millisecond || diff > 10*time.Millisecond {
		t.Fatalf("expected ~%v, got %v", want, got)
	}
}

func TestResetClearsState(t *testing.T) {
	est, clock := newTestEstimator()
	est.RecordSample(0.1)
	clock.Advance(time.Second)
	est.RecordSample(0.2)
	est.Reset()

	if _, ok := est.Estimate(); ok {
		t.Fatal("expected no estimate after reset")
	}
	if est.Fraction() != 0 {
		t.Fatalf("expected zero fraction after reset, got %v", est.Fraction())
	}
	if !est.RecordSample(0.2) {
		t.Fatal("sample after reset should be accepted")
	}
}

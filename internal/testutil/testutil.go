// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"math"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertInDelta checks that got is within delta of want. NaN never matches.
func AssertInDelta(t *testing.T, got, want, delta float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > delta {
		t.Errorf("value = %v, want %v (±%v)", got, want, delta)
	}
}

// AssertNaN checks that the value is NaN, the sentinel for unknown samples
// in persisted posture arrays.
func AssertNaN(t *testing.T, got float64) {
	t.Helper()
	if !math.IsNaN(got) {
		t.Errorf("value = %v, want NaN", got)
	}
}

// AssertVec3InDelta compares a 3-vector componentwise within delta.
func AssertVec3InDelta(t *testing.T, got, want [3]float64, delta float64) {
	t.Helper()
	for i := 0; i < 3; i++ {
		if math.IsNaN(got[i]) || math.Abs(got[i]-want[i]) > delta {
			t.Errorf("component %d = %v, want %v (±%v)", i, got[i], want[i], delta)
			return
		}
	}
}

// AssertMat3InDelta compares a 3x3 matrix componentwise within delta.
func AssertMat3InDelta(t *testing.T, got, want [3][3]float64, delta float64) {
	t.Helper()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.IsNaN(got[i][j]) || math.Abs(got[i][j]-want[i][j]) > delta {
				t.Errorf("entry (%d,%d) = %v, want %v (±%v)", i, j, got[i][j], want[i][j], delta)
				return
			}
		}
	}
}

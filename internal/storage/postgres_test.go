package storage

import "testing"

func TestSanitizeConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{96.32000000000001, 96.32},
		{-3, 0},
		{120, 100},
		{0, 0},
		{100, 100},
		{87.554, 87.55},
	}
	for _, tc := range tests {
		if got := sanitizeConfidence(tc.in); got != tc.want {
			t.Errorf("sanitizeConfidence(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

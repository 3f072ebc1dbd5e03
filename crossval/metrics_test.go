package crossval

import (
	"math"
	"testing"
)

func TestRMSE(t *testing.T) {
	tests := []struct {
		name      string
		actual    []float64
		predicted []float64
		want      float64
	}{
		{
			name:      "perfect prediction",
			actual:    []float64{1, 2, 3},
			predicted: []float64{1, 2, 3},
			want:      0,
		},
		{
			name:      "constant offset",
			actual:    []float64{2, 4, 6},
			predicted: []float64{4, 6, 8},
			want:      2,
		},
		{
			name:      "known error",
			actual:    []float64{0, 0},
			predicted: []float64{3, 4},
			want:      math.Sqrt(12.5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RMSE(tt.actual, tt.predicted)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("RMSE() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRMSELengthMismatch(t *testing.T) {
	if got := RMSE([]float64{1, 2}, []float64{1}); !math.IsNaN(got) {
		t.Errorf("RMSE() = %v, want NaN", got)
	}
	if got := RMSE(nil, nil); !math.IsNaN(got) {
		t.Errorf("RMSE() = %v, want NaN", got)
	}
}

func TestRSquared(t *testing.T) {
	actual := []float64{1, 2, 3, 4, 5}

	if got := RSquared(actual, actual); math.Abs(got-1) > 1e-12 {
		t.Errorf("RSquared for perfect prediction = %v, want 1", got)
	}

	noisy := []float64{1.1, 1.9, 3.2, 3.8, 5.1}
	got := RSquared(actual, noisy)
	if got <= 0.9 || got >= 1 {
		t.Errorf("RSquared for near-perfect prediction = %v, want in (0.9, 1)", got)
	}
}

package segmentation

import (
	"errors"
	"testing"
)

func TestOutputShape(t *testing.T) {
	tests := []struct {
		name       string
		dims       []int
		rows, cols int
		ok         bool
	}{
		{"nchw", []int{1, 1, 144, 256}, 144, 256, true},
		{"nhwc", []int{1, 144, 256, 1}, 144, 256, true},
		{"chw", []int{1, 144, 256}, 144, 256, true},
		{"multi channel nchw", []int{1, 3, 144, 256}, 0, 0, false},
		{"flat", []int{36864}, 0, 0, false},
		{"empty", nil, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, cols, err := outputShape(tt.dims)
			if !tt.ok {
				if !errors.Is(err, ErrUnsupportedFrame) {
					t.Fatalf("err = %v, want ErrUnsupportedFrame", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("outputShape: %v", err)
			}
			if rows != tt.rows || cols != tt.cols {
				t.Errorf("shape = %dx%d, want %dx%d", rows, cols, tt.rows, tt.cols)
			}
		})
	}
}

func TestClamp01(t *testing.T) {
	for in, want := range map[float32]float32{-0.5: 0, 0: 0, 0.25: 0.25, 1: 1, 1.7: 1} {
		if got := clamp01(in); got != want {
			t.Errorf("clamp01(%v) = %v, want %v", in, got, want)
		}
	}
}

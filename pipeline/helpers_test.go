package pipeline

import (
	"testing"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vbg-go/model"
)

func solidFrame(rows, cols int, c model.RGB) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(scalarOf(c), rows, cols, gocv.MatTypeCV8UC3)
}

func probMask(rows, cols int, p float32) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(p), 0, 0, 0), rows, cols, gocv.MatTypeCV32FC1)
}

func binaryMask(rows, cols int, foreground bool) gocv.Mat {
	v := float64(MaskBackground)
	if foreground {
		v = MaskForeground
	}
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC1)
}

// pixelAt returns the RGB color of a CV8UC3 pixel.
func pixelAt(m gocv.Mat, row, col int) model.RGB {
	return model.RGB{
		B: m.GetUCharAt(row, col*3),
		G: m.GetUCharAt(row, col*3+1),
		R: m.GetUCharAt(row, col*3+2),
	}
}

func assertAll(t *testing.T, m gocv.Mat, want model.RGB) {
	t.Helper()
	for r := 0; r < m.Rows(); r++ {
		for c := 0; c < m.Cols(); c++ {
			if got := pixelAt(m, r, c); got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", r, c, got, want)
			}
		}
	}
}

func closeEnough(a, b uint8, tolerance int) bool {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/khaledhikmat/vbg-go/model"
	"github.com/khaledhikmat/vbg-go/service/segmentation"
)

func TestRenderForegroundKeepsFrame(t *testing.T) {
	engine := NewEngine(segmentation.NewFake(0.9), SolidColorBackdrop{Color: green}, EngineOptions{Threshold: 0.3})
	defer engine.Close()

	frame := solidFrame(4, 4, white)
	defer frame.Close()

	result, err := engine.Render(context.Background(), frame)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	defer result.Close()

	assertAll(t, result.Output, white)
}

func TestRenderBackgroundUsesSolidColor(t *testing.T) {
	engine := NewEngine(segmentation.NewFake(0), SolidColorBackdrop{Color: black}, EngineOptions{Threshold: 0.3})
	defer engine.Close()

	frame := solidFrame(4, 4, white)
	defer frame.Close()

	result, err := engine.Render(context.Background(), frame)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	defer result.Close()

	assertAll(t, result.Output, black)
	if n := result.Mask.Rows() * result.Mask.Cols(); n != 16 {
		t.Errorf("mask has %d pixels, want 16", n)
	}
}

func TestRenderReusesStaticBackground(t *testing.T) {
	counted := countingBackdrop{Backdrop: GradientBackdrop{Stops: []model.RGB{black, white}}, produced: new(atomic.Int64)}
	engine := NewEngine(segmentation.NewFake(0), counted, EngineOptions{Threshold: 0.5})
	defer engine.Close()

	frame := solidFrame(4, 4, white)
	defer frame.Close()

	for i := 0; i < 3; i++ {
		result, err := engine.Render(context.Background(), frame)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		result.Close()
	}

	if n := counted.produced.Load(); n != 1 {
		t.Errorf("gradient produced %d times, want 1", n)
	}
}

func TestRenderSwitchesBackdropOnNextRender(t *testing.T) {
	engine := NewEngine(segmentation.NewFake(0), SolidColorBackdrop{Color: green}, EngineOptions{Threshold: 0.5})
	defer engine.Close()

	frame := solidFrame(2, 2, white)
	defer frame.Close()

	engine.SetBackdrop(DesaturateBackdrop{})
	if engine.Backdrop().Name() != "solid" {
		t.Fatalf("backdrop switched before the next render")
	}

	result, err := engine.Render(context.Background(), frame)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	defer result.Close()

	if engine.Backdrop().Name() != "desaturate" {
		t.Errorf("backdrop = %s, want desaturate", engine.Backdrop().Name())
	}
	assertAll(t, result.Output, white)
}

func TestRenderSegmentationRejectionIsFatal(t *testing.T) {
	seg := segmentation.NewFake(0.5)
	seg.Reject = true
	engine := NewEngine(seg, SolidColorBackdrop{}, EngineOptions{Threshold: 0.3})
	defer engine.Close()

	frame := solidFrame(2, 2, white)
	defer frame.Close()

	_, err := engine.Render(context.Background(), frame)
	if !errors.Is(err, segmentation.ErrUnsupportedFrame) {
		t.Fatalf("err = %v, want ErrUnsupportedFrame", err)
	}
	if model.KindOf(err) != model.KindFatal {
		t.Errorf("kind = %v, want fatal", model.KindOf(err))
	}
}

func TestRenderInferenceTimeoutIsRecoverable(t *testing.T) {
	seg := segmentation.NewFake(0.9)
	seg.Delay = time.Second
	engine := NewEngine(seg, SolidColorBackdrop{}, EngineOptions{Threshold: 0.3, InferenceTimeout: 10 * time.Millisecond})
	defer engine.Close()

	frame := solidFrame(2, 2, white)
	defer frame.Close()

	start := time.Now()
	_, err := engine.Render(context.Background(), frame)
	if !errors.Is(err, ErrInferenceTimeout) {
		t.Fatalf("err = %v, want ErrInferenceTimeout", err)
	}
	if !model.IsRecoverable(err) {
		t.Errorf("timeout should be recoverable")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("render took %v despite the timeout", elapsed)
	}
}

func TestRenderWithFeather(t *testing.T) {
	engine := NewEngine(segmentation.NewFake(0.9), SolidColorBackdrop{Color: black}, EngineOptions{Threshold: 0.3, FeatherKernel: 3})
	defer engine.Close()

	frame := solidFrame(4, 4, white)
	defer frame.Close()

	result, err := engine.Render(context.Background(), frame)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	defer result.Close()

	assertAll(t, result.Output, white)
}

func TestRenderCancelledCallerIsNotATimeout(t *testing.T) {
	seg := segmentation.NewFake(0.9)
	seg.Delay = 5 * time.Second
	engine := NewEngine(seg, SolidColorBackdrop{}, EngineOptions{Threshold: 0.3, InferenceTimeout: time.Second})
	defer engine.Close()

	frame := solidFrame(2, 2, white)
	defer frame.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := engine.Render(ctx, frame)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrInferenceTimeout) || model.IsRecoverable(err) {
		t.Errorf("cancellation reported as a recoverable timeout: %v", err)
	}
}

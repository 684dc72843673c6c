package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/khaledhikmat/vbg-go/model"
	"github.com/khaledhikmat/vbg-go/service/capture"
	"github.com/khaledhikmat/vbg-go/service/display"
	"github.com/khaledhikmat/vbg-go/service/segmentation"
)

type loopFixture struct {
	capture     *capture.FakeService
	seg         *segmentation.FakeService
	display     *display.FakeService
	engine      *Engine
	errorStream chan interface{}
	statsStream chan interface{}
}

func newLoopFixture(t *testing.T, p float32, backdrop Backdrop) *loopFixture {
	t.Helper()

	f := &loopFixture{
		capture:     capture.NewFake(4, 4, white),
		seg:         segmentation.NewFake(p),
		display:     display.NewFake(),
		errorStream: make(chan interface{}, 64),
		statsStream: make(chan interface{}, 1),
	}
	f.engine = NewEngine(f.seg, backdrop, EngineOptions{Threshold: 0.3})
	t.Cleanup(f.engine.Close)
	return f
}

func (f *loopFixture) loop(opts LoopOptions) *Loop {
	if opts.MaxReadFailures == 0 {
		opts.MaxReadFailures = 5
	}
	return NewLoop(f.capture, f.display, f.engine, f.errorStream, f.statsStream, opts)
}

func (f *loopFixture) stats(t *testing.T) model.SessionStats {
	t.Helper()
	select {
	case v := <-f.statsStream:
		return v.(model.SessionStats)
	default:
		t.Fatal("no session stats reported")
	}
	return model.SessionStats{}
}

func TestLoopForegroundFramesPassThrough(t *testing.T) {
	f := newLoopFixture(t, 0.9, SolidColorBackdrop{Color: green})
	f.capture.Frames = 3
	loop := f.loop(LoopOptions{Mirror: true})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if f.display.Shown() != 3 {
		t.Errorf("shown %d frames, want 3", f.display.Shown())
	}
	last, rows, cols := f.display.Last()
	if rows != 4 || cols != 4 {
		t.Fatalf("last frame is %dx%d, want 4x4", cols, rows)
	}
	for i, b := range last {
		if b != 255 {
			t.Fatalf("byte %d = %d, want the white frame unchanged", i, b)
		}
	}

	if loop.State() != StateStopped {
		t.Errorf("state = %s, want stopped", loop.State())
	}
	if n := f.capture.Device().Releases(); n != 1 {
		t.Errorf("device released %d times, want 1", n)
	}

	stats := f.stats(t)
	if stats.Composites != 3 || stats.Ticks != 3 || stats.Width != 4 || stats.Height != 4 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.SessionID != loop.SessionID() || stats.Backdrop != "solid" {
		t.Errorf("unexpected stats identity %+v", stats)
	}
}

func TestLoopBackgroundFramesUseSolidColor(t *testing.T) {
	f := newLoopFixture(t, 0, SolidColorBackdrop{Color: black})
	f.capture.Frames = 2
	loop := f.loop(LoopOptions{})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	last, _, _ := f.display.Last()
	for i, b := range last {
		if b != 0 {
			t.Fatalf("byte %d = %d, want an all black frame", i, b)
		}
	}
}

func TestLoopQuitKeyStopsBeforeNextComposite(t *testing.T) {
	for _, key := range []int{display.KeyQuit, display.KeyEscape} {
		f := newLoopFixture(t, 0.9, SolidColorBackdrop{})
		f.display.Keys[2] = key
		loop := f.loop(LoopOptions{})

		if err := loop.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}

		if f.display.Shown() != 2 {
			t.Errorf("key %d: shown %d frames, want 2", key, f.display.Shown())
		}
		if f.seg.Calls() != 2 {
			t.Errorf("key %d: segmented %d frames, want 2", key, f.seg.Calls())
		}
		if n := f.capture.Device().Releases(); n != 1 {
			t.Errorf("key %d: device released %d times, want 1", key, n)
		}
	}
}

func TestLoopStopTakesEffectAtTickBoundary(t *testing.T) {
	f := newLoopFixture(t, 0.9, SolidColorBackdrop{})
	loop := f.loop(LoopOptions{})
	f.display.OnShow = func(shown int) {
		if shown == 3 {
			loop.Stop()
		}
	}

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if f.display.Shown() != 3 {
		t.Errorf("shown %d frames, want 3", f.display.Shown())
	}
	if n := f.capture.Device().Releases(); n != 1 {
		t.Errorf("device released %d times, want 1", n)
	}
}

func TestLoopContextCancelDoesNotPreemptTick(t *testing.T) {
	f := newLoopFixture(t, 0.9, SolidColorBackdrop{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := f.loop(LoopOptions{})
	f.display.OnShow = func(shown int) {
		if shown == 1 {
			cancel()
		}
	}

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if f.display.Shown() != 1 {
		t.Errorf("shown %d frames, want 1", f.display.Shown())
	}
	if f.capture.Device().Reads() != 1 {
		t.Errorf("read %d frames after cancellation, want 1", f.capture.Device().Reads())
	}
}

func TestLoopSkipsEmptyFrames(t *testing.T) {
	f := newLoopFixture(t, 0.9, SolidColorBackdrop{})
	f.capture.Frames = 4
	f.capture.Failures = map[int]bool{2: true}
	loop := f.loop(LoopOptions{})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if f.display.Shown() != 3 {
		t.Errorf("shown %d frames, want 3", f.display.Shown())
	}

	stats := f.stats(t)
	if stats.Skipped != 1 || stats.ReadFailures != 1 {
		t.Errorf("skipped=%d readFailures=%d, want 1 and 1", stats.Skipped, stats.ReadFailures)
	}

	select {
	case v := <-f.errorStream:
		if err, ok := v.(error); !ok || !model.IsRecoverable(err) {
			t.Errorf("reported %v, want a recoverable error", v)
		}
	default:
		t.Error("skipped frame was not reported")
	}
}

func TestLoopEscalatesConsecutiveFailures(t *testing.T) {
	f := newLoopFixture(t, 0.9, SolidColorBackdrop{})
	f.capture.Failures = map[int]bool{1: true, 2: true, 3: true}
	loop := f.loop(LoopOptions{MaxReadFailures: 3})

	err := loop.Run(context.Background())
	if !errors.Is(err, ErrTooManyFailures) {
		t.Fatalf("err = %v, want ErrTooManyFailures", err)
	}
	if model.KindOf(err) != model.KindFatal {
		t.Errorf("kind = %v, want fatal", model.KindOf(err))
	}
	if f.display.Shown() != 0 {
		t.Errorf("shown %d frames, want 0", f.display.Shown())
	}
	if n := f.capture.Device().Releases(); n != 1 {
		t.Errorf("device released %d times, want 1", n)
	}
}

func TestLoopFailureCounterResetsOnSuccess(t *testing.T) {
	f := newLoopFixture(t, 0.9, SolidColorBackdrop{})
	f.capture.Frames = 6
	f.capture.Failures = map[int]bool{1: true, 2: true, 4: true, 5: true}
	loop := f.loop(LoopOptions{MaxReadFailures: 3})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.display.Shown() != 2 {
		t.Errorf("shown %d frames, want 2", f.display.Shown())
	}
}

func TestLoopOpenFailure(t *testing.T) {
	f := newLoopFixture(t, 0.9, SolidColorBackdrop{})
	f.capture.OpenErr = errors.New("no camera")
	loop := f.loop(LoopOptions{Device: 3})

	err := loop.Run(context.Background())
	if !errors.Is(err, f.capture.OpenErr) {
		t.Fatalf("err = %v, want the open error", err)
	}
	if loop.State() != StateStopped {
		t.Errorf("state = %s, want stopped", loop.State())
	}
	if f.capture.Device() != nil {
		t.Error("no device should have been opened")
	}
}

func TestLoopRunsOnce(t *testing.T) {
	f := newLoopFixture(t, 0.9, SolidColorBackdrop{})
	f.capture.Frames = 1
	loop := f.loop(LoopOptions{})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := loop.Run(context.Background()); !errors.Is(err, ErrLoopStarted) {
		t.Fatalf("second Run: err = %v, want ErrLoopStarted", err)
	}
}

func TestLoopSegmentationRejectionStopsSession(t *testing.T) {
	f := newLoopFixture(t, 0.9, SolidColorBackdrop{})
	f.seg.Reject = true
	loop := f.loop(LoopOptions{})

	err := loop.Run(context.Background())
	if !errors.Is(err, segmentation.ErrUnsupportedFrame) {
		t.Fatalf("err = %v, want ErrUnsupportedFrame", err)
	}
	if f.seg.Calls() != 1 {
		t.Errorf("segmented %d times, want 1", f.seg.Calls())
	}
	if n := f.capture.Device().Releases(); n != 1 {
		t.Errorf("device released %d times, want 1", n)
	}
}

func TestLoopKeySwitchesBackdrop(t *testing.T) {
	f := newLoopFixture(t, 0, SolidColorBackdrop{Color: green})
	f.capture.Frames = 3
	f.display.Keys[1] = '1'

	var loop *Loop
	var keys []int
	loop = f.loop(LoopOptions{
		OnKey: func(key int) {
			keys = append(keys, key)
			loop.SetBackdrop(SolidColorBackdrop{Color: black})
		},
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(keys) != 1 || keys[0] != '1' {
		t.Fatalf("keys = %v, want ['1']", keys)
	}
	last, _, _ := f.display.Last()
	for i, b := range last {
		if b != 0 {
			t.Fatalf("byte %d = %d, want the switched black background", i, b)
		}
	}
}

func TestLoopInferenceTimeoutsEscalate(t *testing.T) {
	f := newLoopFixture(t, 0.9, SolidColorBackdrop{})
	f.seg.Delay = time.Second
	f.engine = NewEngine(f.seg, SolidColorBackdrop{}, EngineOptions{Threshold: 0.3, InferenceTimeout: 5 * time.Millisecond})
	defer f.engine.Close()
	loop := f.loop(LoopOptions{MaxReadFailures: 2})

	err := loop.Run(context.Background())
	if !errors.Is(err, ErrTooManyFailures) {
		t.Fatalf("err = %v, want ErrTooManyFailures", err)
	}

	stats := f.stats(t)
	if stats.InferenceTimeouts != 2 || stats.Composites != 0 {
		t.Errorf("inferenceTimeouts=%d composites=%d, want 2 and 0", stats.InferenceTimeouts, stats.Composites)
	}
}

func TestLoopPipelinedCapture(t *testing.T) {
	f := newLoopFixture(t, 0.9, SolidColorBackdrop{})
	f.capture.Frames = 20
	loop := f.loop(LoopOptions{Pipelined: true})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	shown := f.display.Shown()
	if shown < 1 || shown > 20 {
		t.Errorf("shown %d frames, want between 1 and 20", shown)
	}
	if n := f.capture.Device().Releases(); n != 1 {
		t.Errorf("device released %d times, want 1", n)
	}

	stats := f.stats(t)
	if stats.Composites+stats.HandoffDrops != 20 {
		t.Errorf("composites=%d drops=%d, want them to add up to 20", stats.Composites, stats.HandoffDrops)
	}
}

func TestLoopPipelinedQuit(t *testing.T) {
	f := newLoopFixture(t, 0.9, SolidColorBackdrop{})
	f.display.Keys[2] = display.KeyQuit
	loop := f.loop(LoopOptions{Pipelined: true})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.display.Shown() != 2 {
		t.Errorf("shown %d frames, want 2", f.display.Shown())
	}
	if n := f.capture.Device().Releases(); n != 1 {
		t.Errorf("device released %d times, want 1", n)
	}
}

func TestLoopPipelinedCountsSkippedReads(t *testing.T) {
	f := newLoopFixture(t, 0.9, SolidColorBackdrop{})
	f.capture.Frames = 6
	f.capture.Failures = map[int]bool{2: true, 4: true}
	loop := f.loop(LoopOptions{Pipelined: true, MaxReadFailures: 3})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stats := f.stats(t)
	if stats.Skipped != 2 || stats.ReadFailures != 2 {
		t.Errorf("skipped=%d readFailures=%d, want 2 and 2", stats.Skipped, stats.ReadFailures)
	}
}

func TestLoopConcurrentRunOpensOnce(t *testing.T) {
	f := newLoopFixture(t, 0.9, SolidColorBackdrop{})
	f.capture.Frames = 2
	loop := f.loop(LoopOptions{})

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			errs <- loop.Run(context.Background())
		}()
	}

	started := 0
	for i := 0; i < 2; i++ {
		err := <-errs
		switch {
		case err == nil:
		case errors.Is(err, ErrLoopStarted):
			started++
		default:
			t.Fatalf("Run: %v", err)
		}
	}

	if started != 1 {
		t.Errorf("%d runs were rejected, want 1", started)
	}
	if f.capture.Opens() != 1 {
		t.Errorf("device opened %d times, want 1", f.capture.Opens())
	}
}

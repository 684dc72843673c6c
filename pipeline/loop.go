package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vbg-go/model"
	"github.com/khaledhikmat/vbg-go/service/capture"
	"github.com/khaledhikmat/vbg-go/service/display"
	"github.com/khaledhikmat/vbg-go/service/lgr"
)

type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

var ErrLoopStarted = errors.New("loop already started")

type LoopOptions struct {
	// Mode is the mode processor name, reported in stats
	Mode string
	// SessionID is generated when empty
	SessionID       string
	Device          int
	Width           int
	Height          int
	Mirror          bool
	MaxReadFailures int
	Pipelined       bool
	WindowName      string
	KeyPollInterval int
	// OnKey receives every key that does not quit the loop. It runs on the
	// loop goroutine between ticks.
	OnKey  func(key int)
	Tracer trace.Tracer
}

// Loop drives capture, render and display one tick at a time:
// Idle -> Running once the device opens, Running -> Stopped on stop request,
// end of stream or a fatal error. The device is released exactly once.
type Loop struct {
	opts        LoopOptions
	sessionID   string
	captureSvc  capture.IService
	displaySvc  display.IService
	engine      *Engine
	errorStream chan interface{}
	statsStream chan interface{}
	tracer      trace.Tracer

	state   atomic.Int32
	started atomic.Bool
	stop    atomic.Bool
	seq     atomic.Int64
	reads   atomic.Int64
	handoff *handoff

	mu       sync.Mutex
	stats    model.SessionStats
	tickTime time.Duration
}

func NewLoop(captureSvc capture.IService, displaySvc display.IService, engine *Engine, errorStream chan interface{}, statsStream chan interface{}, opts LoopOptions) *Loop {
	if opts.MaxReadFailures < 1 {
		opts.MaxReadFailures = 1
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(tracerName)
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Loop{
		opts:        opts,
		sessionID:   sessionID,
		captureSvc:  captureSvc,
		displaySvc:  displaySvc,
		engine:      engine,
		errorStream: errorStream,
		statsStream: statsStream,
		tracer:      tracer,
		stats: model.SessionStats{
			SessionID: sessionID,
			Mode:      opts.Mode,
		},
	}
}

func (l *Loop) SessionID() string {
	return l.sessionID
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

// Stop requests the loop to stop. It takes effect at the next tick boundary
// and never interrupts a tick in progress.
func (l *Loop) Stop() {
	l.stop.Store(true)
}

// SetBackdrop switches the background strategy at the next tick boundary.
func (l *Loop) SetBackdrop(b Backdrop) {
	l.engine.SetBackdrop(b)
}

// Stats returns a snapshot of the session counters.
func (l *Loop) Stats() model.SessionStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := l.stats
	stats.ReadFailures = int(l.reads.Load())
	if l.handoff != nil {
		stats.HandoffDrops = l.handoff.dropped()
	}
	return stats
}

func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrLoopStarted
	}

	device, err := l.captureSvc.Open(l.opts.Device, l.opts.Width, l.opts.Height)
	if err != nil {
		l.state.Store(int32(StateStopped))
		return l.fail(model.GenError(model.StageCapture, model.KindFatal, err,
			map[string]interface{}{"device": l.opts.Device, "width": l.opts.Width, "height": l.opts.Height},
			"error opening capture device"))
	}
	l.state.Store(int32(StateRunning))

	lgr.Logger.Info(
		"pipeline loop running",
		slog.String("session", l.sessionID),
		slog.String("backdrop", l.engine.Backdrop().Name()),
		slog.Bool("mirror", l.opts.Mirror),
		slog.Bool("pipelined", l.opts.Pipelined),
	)

	started := time.Now()
	captureCtx, captureCancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	var release sync.Once

	defer func() {
		captureCancel()
		wg.Wait()
		release.Do(func() {
			if err := device.Release(); err != nil {
				lgr.Logger.Error("error releasing capture device", slog.Any("error", err))
			}
		})
		l.state.Store(int32(StateStopped))
		l.emitStats(started)
	}()

	next := func() (FrameData, error) {
		return l.readFrame(device)
	}

	if l.opts.Pipelined {
		h := newHandoff()
		l.mu.Lock()
		l.handoff = h
		l.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			l.captureStage(captureCtx, device, h)
		}()

		go func() {
			<-captureCtx.Done()
			h.close()
		}()

		next = h.take
	}

	failures := 0
	for {
		// The only point where a stop request is observed
		if ctx.Err() != nil || l.stop.Load() {
			lgr.Logger.Info("pipeline loop stopping", slog.String("session", l.sessionID))
			return nil
		}

		err := l.tick(ctx, next)
		switch {
		case err == nil:
			failures = 0

		case errors.Is(err, capture.ErrEndOfStream):
			lgr.Logger.Info("capture reached end of stream", slog.String("session", l.sessionID))
			return nil

		case errors.Is(err, errHandoffClosed):
			return nil

		case model.IsRecoverable(err):
			failures++
			l.skipped(err, failures)
			l.count(func(s *model.SessionStats) {
				s.Skipped++
				if errors.Is(err, ErrInferenceTimeout) {
					s.InferenceTimeouts++
				}
			})
			l.report(l.errorStream, err)

			if failures >= l.opts.MaxReadFailures {
				return l.fail(model.GenError(model.StageCapture, model.KindFatal, ErrTooManyFailures,
					map[string]interface{}{"failures": failures, "last": err.Error()},
					"giving up after %d consecutive failures", failures))
			}

		default:
			return l.fail(err)
		}
	}
}

func (l *Loop) tick(ctx context.Context, next func() (FrameData, error)) error {
	tickStart := time.Now()

	frame, err := next()
	if err != nil {
		return err
	}
	defer frame.Mat.Close()

	ctx, span := l.tracer.Start(ctx, "tick", trace.WithAttributes(attribute.Int64("seq", frame.Seq)))
	defer span.End()

	l.count(func(s *model.SessionStats) { s.Ticks++ })

	if err := l.checkFrame(frame.Mat); err != nil {
		return err
	}

	input := frame.Mat
	if l.opts.Mirror {
		mirrored := gocv.NewMat()
		defer mirrored.Close()
		if err := gocv.Flip(frame.Mat, &mirrored, 1); err != nil {
			return model.GenError(model.StageCapture, model.KindFatal, err,
				map[string]interface{}{"frame": shapeOf(frame.Mat)},
				"error mirroring frame")
		}
		input = mirrored
	}

	// A tick in progress is never preempted by a stop request
	result, err := l.engine.Render(context.WithoutCancel(ctx), input)
	if err != nil {
		return err
	}
	result.Mask.Close()

	l.count(func(s *model.SessionStats) { s.Composites++ })

	// The display owns the output from here on
	if err := l.displaySvc.Show(l.opts.WindowName, result.Output); err != nil {
		return model.GenError(model.StageDisplay, model.KindFatal, err,
			map[string]interface{}{"window": l.opts.WindowName},
			"error showing composite")
	}

	l.mu.Lock()
	l.tickTime += time.Since(tickStart)
	l.mu.Unlock()

	if key, ok := l.displaySvc.PollKey(l.opts.KeyPollInterval); ok {
		l.handleKey(key)
	}
	return nil
}

// checkFrame pins the session size to the first frame.
func (l *Loop) checkFrame(frame gocv.Mat) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if frame.Type() != gocv.MatTypeCV8UC3 {
		return model.GenError(model.StageCapture, model.KindFatal, ErrShapeMismatch,
			map[string]interface{}{"frame": shapeOf(frame)},
			"frames must be 3 channel 8 bit images")
	}

	if l.stats.Width == 0 && l.stats.Height == 0 {
		l.stats.Width = frame.Cols()
		l.stats.Height = frame.Rows()
		return nil
	}

	if frame.Cols() != l.stats.Width || frame.Rows() != l.stats.Height {
		return model.GenError(model.StageCapture, model.KindFatal, ErrShapeMismatch,
			map[string]interface{}{"frame": shapeOf(frame), "session": Shape{Rows: l.stats.Height, Cols: l.stats.Width, Channels: 3}},
			"frame size changed during the session")
	}
	return nil
}

func (l *Loop) readFrame(device capture.Device) (FrameData, error) {
	img := gocv.NewMat()
	if err := device.Read(&img); err != nil {
		img.Close()

		if errors.Is(err, capture.ErrEndOfStream) {
			return FrameData{}, err
		}

		if errors.Is(err, capture.ErrEmptyFrame) {
			l.reads.Add(1)
			return FrameData{}, model.GenError(model.StageCapture, model.KindRecoverable, err,
				map[string]interface{}{"device": l.opts.Device},
				"ignoring empty camera frame")
		}

		return FrameData{}, model.GenError(model.StageCapture, model.KindFatal, err,
			map[string]interface{}{"device": l.opts.Device},
			"error reading frame")
	}

	return FrameData{
		Mat:       img,
		Seq:       l.seq.Add(1),
		Timestamp: time.Now(),
	}, nil
}

// captureStage reads frames ahead of the loop into h until ctx is done.
func (l *Loop) captureStage(ctx context.Context, device capture.Device, h *handoff) {
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := l.readFrame(device)
		if err == nil {
			failures = 0
			h.publish(frame)
			continue
		}

		if !model.IsRecoverable(err) {
			h.fail(err)
			return
		}

		failures++
		l.skipped(err, failures)
		l.count(func(s *model.SessionStats) { s.Skipped++ })
		l.report(l.errorStream, err)
		if failures >= l.opts.MaxReadFailures {
			h.fail(model.GenError(model.StageCapture, model.KindFatal, ErrTooManyFailures,
				map[string]interface{}{"failures": failures},
				"giving up after %d consecutive read failures", failures))
			return
		}
	}
}

func (l *Loop) handleKey(key int) {
	if key == display.KeyQuit || key == display.KeyEscape {
		lgr.Logger.Info("quit key pressed", slog.String("session", l.sessionID))
		l.Stop()
		return
	}

	if l.opts.OnKey != nil {
		l.opts.OnKey(key)
	}
}

func (l *Loop) skipped(err error, failures int) {
	lgr.Logger.Warn(
		"skipping tick",
		slog.String("session", l.sessionID),
		slog.Int("consecutive", failures),
		slog.Any("error", err),
	)
}

func (l *Loop) count(fn func(s *model.SessionStats)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.stats)
}

func (l *Loop) fail(err error) error {
	lgr.Logger.Error(
		"pipeline loop failed",
		slog.String("session", l.sessionID),
		slog.Any("error", err),
	)
	l.report(l.errorStream, err)
	return err
}

func (l *Loop) emitStats(started time.Time) {
	stats := l.Stats()
	stats.Backdrop = l.engine.Backdrop().Name()
	stats.Uptime = int64(time.Since(started).Seconds())
	if elapsed := time.Since(started).Seconds(); elapsed > 0 {
		stats.FPS = int(float64(stats.Composites) / elapsed)
	}

	l.mu.Lock()
	if stats.Composites > 0 {
		stats.AvgTickTime = l.tickTime.Seconds() / float64(stats.Composites)
	}
	l.stats = stats
	l.mu.Unlock()

	lgr.Logger.Info(
		"pipeline loop stopped",
		slog.String("session", stats.SessionID),
		slog.Int("ticks", stats.Ticks),
		slog.Int("composites", stats.Composites),
		slog.Int("skipped", stats.Skipped),
		slog.Int("fps", stats.FPS),
	)

	l.report(l.statsStream, stats)
}

// report never blocks the loop; a full stream drops the value.
func (l *Loop) report(stream chan interface{}, v interface{}) {
	if stream == nil {
		return
	}

	select {
	case stream <- v:
	default:
		lgr.Logger.Warn("stream full, dropping report", slog.Any("value", v))
	}
}

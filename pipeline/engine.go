package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/vbg-go/model"
	"github.com/khaledhikmat/vbg-go/service/lgr"
	"github.com/khaledhikmat/vbg-go/service/segmentation"
)

const tracerName = "github.com/khaledhikmat/vbg-go/pipeline"

// Result is one rendered frame. The caller owns both Mats.
type Result struct {
	Output gocv.Mat
	Mask   gocv.Mat
}

func (r *Result) Close() {
	r.Output.Close()
	r.Mask.Close()
}

type EngineOptions struct {
	Threshold        float32
	FeatherKernel    int
	InferenceTimeout time.Duration
	Tracer           trace.Tracer
}

// Engine renders single frames: segment, binarize, synthesize and composite.
// It owns the session's static background cache.
type Engine struct {
	segmenter segmentation.IService
	binarizer *MaskBinarizer
	cache     *BackdropCache
	feather   int
	timeout   time.Duration
	tracer    trace.Tracer

	// at most one inference in flight
	inflight chan struct{}

	mu      sync.Mutex
	active  Backdrop
	pending Backdrop
}

func NewEngine(segmenter segmentation.IService, backdrop Backdrop, opts EngineOptions) *Engine {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(tracerName)
	}

	return &Engine{
		segmenter: segmenter,
		binarizer: NewMaskBinarizer(opts.Threshold),
		cache:     NewBackdropCache(),
		feather:   opts.FeatherKernel,
		timeout:   opts.InferenceTimeout,
		tracer:    tracer,
		inflight:  make(chan struct{}, 1),
		active:    backdrop,
	}
}

// SetBackdrop switches the strategy. The switch takes effect at the start of
// the next Render.
func (e *Engine) SetBackdrop(b Backdrop) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = b
}

func (e *Engine) Backdrop() Backdrop {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) swapBackdrop() Backdrop {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil {
		lgr.Logger.Info(
			"background switched",
			slog.String("from", e.active.Name()),
			slog.String("to", e.pending.Name()),
		)
		e.active = e.pending
		e.pending = nil
	}
	return e.active
}

// Render composites one frame. frame is read-only.
func (e *Engine) Render(ctx context.Context, frame gocv.Mat) (Result, error) {
	backdrop := e.swapBackdrop()

	ctx, span := e.tracer.Start(ctx, "render", trace.WithAttributes(
		attribute.String("backdrop", backdrop.Name()),
		attribute.Int("cols", frame.Cols()),
		attribute.Int("rows", frame.Rows()),
	))
	defer span.End()

	result, err := e.render(ctx, frame, backdrop)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (e *Engine) render(ctx context.Context, frame gocv.Mat, backdrop Backdrop) (Result, error) {
	prob, err := e.segment(ctx, frame)
	if err != nil {
		prob.Close()
		return Result{}, err
	}
	defer prob.Close()

	if prob.Rows() != frame.Rows() || prob.Cols() != frame.Cols() {
		return Result{}, model.GenError(model.StageSegmentation, model.KindFatal, ErrShapeMismatch,
			map[string]interface{}{"frame": shapeOf(frame), "mask": shapeOf(prob)},
			"segmentation mask does not match the frame")
	}

	mask, err := e.binarizer.Binarize(prob)
	if err != nil {
		return Result{}, err
	}

	bg, owned, err := e.cache.Get(backdrop, BackdropContext{
		Frame:  frame,
		Width:  frame.Cols(),
		Height: frame.Rows(),
	})
	if err != nil {
		mask.Close()
		return Result{}, err
	}
	if owned {
		defer bg.Close()
	}

	var out gocv.Mat
	if e.feather > 1 {
		out, err = Blend(frame, mask, bg, e.feather)
	} else {
		out, err = Composite(frame, mask, bg)
	}
	if err != nil {
		mask.Close()
		return Result{}, err
	}

	return Result{Output: out, Mask: mask}, nil
}

type segmentResult struct {
	mask gocv.Mat
	err  error
}

func (e *Engine) segment(ctx context.Context, frame gocv.Mat) (gocv.Mat, error) {
	_, span := e.tracer.Start(ctx, "segment")
	defer span.End()

	if e.timeout <= 0 {
		mask, err := e.segmenter.Segment(ctx, frame)
		if err != nil {
			return mask, segmentationError(err, frame)
		}
		return mask, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	select {
	case e.inflight <- struct{}{}:
	case <-ctx.Done():
		return gocv.NewMat(), interruptedError(ctx, frame, e.timeout)
	}

	// The inference may outlive this tick, it works on its own copy
	input := frame.Clone()
	results := make(chan segmentResult)
	go func() {
		defer func() { <-e.inflight }()
		defer input.Close()

		mask, err := e.segmenter.Segment(ctx, input)
		select {
		case results <- segmentResult{mask: mask, err: err}:
		case <-ctx.Done():
			mask.Close()
		}
	}()

	select {
	case r := <-results:
		if r.err != nil {
			if ctx.Err() != nil {
				return r.mask, interruptedError(ctx, frame, e.timeout)
			}
			return r.mask, segmentationError(r.err, frame)
		}
		return r.mask, nil
	case <-ctx.Done():
		return gocv.NewMat(), interruptedError(ctx, frame, e.timeout)
	}
}

func (e *Engine) Close() {
	e.cache.Close()
}

func segmentationError(err error, frame gocv.Mat) error {
	return model.GenError(model.StageSegmentation, model.KindFatal, err,
		map[string]interface{}{"frame": shapeOf(frame)},
		"segmentation failed")
}

// interruptedError tells the inference deadline, a recoverable skip, apart
// from a cancelled caller.
func interruptedError(ctx context.Context, frame gocv.Mat, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return timeoutError(frame, timeout)
	}
	return model.GenError(model.StageSegmentation, model.KindFatal, context.Cause(ctx),
		map[string]interface{}{"frame": shapeOf(frame)},
		"segmentation cancelled")
}

func timeoutError(frame gocv.Mat, timeout time.Duration) error {
	return model.GenError(model.StageSegmentation, model.KindRecoverable, ErrInferenceTimeout,
		map[string]interface{}{"frame": shapeOf(frame), "timeout": timeout.String()},
		"segmentation did not finish in time")
}

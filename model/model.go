package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mdobak/go-xerrors"
)

type ErrorKind string

const (
	// Fatal errors abort the session after releasing acquired resources.
	KindFatal ErrorKind = "fatal"
	// Recoverable errors skip the current tick and keep the loop running.
	KindRecoverable ErrorKind = "recoverable"
	// Config errors are detected at startup before any frame is processed.
	KindConfig ErrorKind = "config"
)

// Pipeline stages used as CustomError processors
const (
	StageConfig       = "config"
	StageCapture      = "capture"
	StageSegmentation = "segmentation"
	StageBinarize     = "binarize"
	StageSynthesize   = "synthesize"
	StageComposite    = "composite"
	StageDisplay      = "display"
)

type CustomError struct {
	Kind       ErrorKind              `json:"kind"`
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("%s [%s]: %s", e.Processor, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s [%s]: %s: %v", e.Processor, e.Kind, e.Message, e.Inner)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, kind ErrorKind, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	message := fmt.Sprintf(messagef, args...)
	return CustomError{
		Kind:       kind,
		Processor:  proc,
		Inner:      err,
		Message:    message,
		StackTrace: stackTrace(xerrors.New(message)),
		Misc:       misc,
	}
}

// KindOf reports the kind of the first CustomError in err's chain.
// Errors that carry no kind are treated as fatal.
func KindOf(err error) ErrorKind {
	var custom CustomError
	if errors.As(err, &custom) {
		return custom.Kind
	}
	return KindFatal
}

func IsRecoverable(err error) bool {
	return err != nil && KindOf(err) == KindRecoverable
}

func stackTrace(err error) string {
	trace := xerrors.StackTrace(err)
	if len(trace) == 0 {
		return ""
	}

	b := strings.Builder{}
	for _, frame := range trace.Frames() {
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
	}
	return b.String()
}

// RGB is a user-facing color. Frames store channels in BGR order.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

func (c RGB) String() string {
	return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B)
}

type SessionStats struct {
	SessionID         string  `json:"sessionId"`
	Mode              string  `json:"mode"`
	Backdrop          string  `json:"backdrop"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	Ticks             int     `json:"ticks"`
	Composites        int     `json:"composites"`
	Skipped           int     `json:"skipped"`
	ReadFailures      int     `json:"readFailures"`
	InferenceTimeouts int     `json:"inferenceTimeouts"`
	HandoffDrops      int     `json:"handoffDrops"`
	FPS               int     `json:"fps"`
	Uptime            int64   `json:"uptime"`
	AvgTickTime       float64 `json:"avgTickTime"`
	Timestamp         int64   `json:"timestamp"`
}

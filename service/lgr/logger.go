package lgr

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mdobak/go-xerrors"
	"github.com/natefinch/lumberjack"

	"github.com/khaledhikmat/vbg-go/model"
)

// Logger is the process-wide logger. It starts as a console logger and is
// re-configured by Setup once the environment is loaded.
var Logger = slog.New(newConsoleHandler(os.Stderr, slog.LevelInfo))

type stackFrame struct {
	Func   string `json:"func"`
	Source string `json:"source"`
	Line   int    `json:"line"`
}

// Setup points Logger at a rotating JSON file when file is not empty and at
// the colored console otherwise.
func Setup(level string, file string) {
	lvl := parseLevel(level)
	if file == "" {
		Logger = slog.New(newConsoleHandler(os.Stderr, lvl))
		return
	}

	Logger = slog.New(newFileHandler(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     7, // days
		Compress:   true,
	}, lvl))
}

func newConsoleHandler(w io.Writer, level slog.Level) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// tint renders errors itself, only expand the stack in debug
			if level > slog.LevelDebug {
				return a
			}
			return replaceAttr(groups, a)
		},
	})
}

func newFileHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}

	if err, ok := a.Value.Any().(error); ok {
		a.Value = fmtErr(err)
	}
	return a
}

func fmtErr(err error) slog.Value {
	var groupValues []slog.Attr

	groupValues = append(groupValues, slog.String("msg", err.Error()))

	frames := marshalStack(err)
	if frames != nil {
		groupValues = append(groupValues, slog.Any("trace", frames))
	} else if trace := customTrace(err); trace != "" {
		groupValues = append(groupValues, slog.String("trace", trace))
	}

	return slog.GroupValue(groupValues...)
}

// customTrace returns the stack captured by model.GenError, if any.
func customTrace(err error) string {
	var custom model.CustomError
	if errors.As(err, &custom) {
		return custom.StackTrace
	}
	return ""
}

func marshalStack(err error) []stackFrame {
	trace := xerrors.StackTrace(err)
	if len(trace) == 0 {
		return nil
	}

	frames := trace.Frames()
	s := make([]stackFrame, len(frames))
	for i, v := range frames {
		s[i] = stackFrame{
			Source: filepath.Join(filepath.Base(filepath.Dir(v.File)), filepath.Base(v.File)),
			Func:   filepath.Base(v.Function),
			Line:   v.Line,
		}
	}

	return s
}

package display

import "gocv.io/x/gocv"

// Key codes understood by the mode processors
const (
	KeyQuit   = 'q'
	KeyEscape = 27
)

type IService interface {
	// Show presents frame under name and takes ownership of it: the
	// implementation closes frame once it no longer needs it.
	Show(name string, frame gocv.Mat) error
	// PollKey waits up to timeoutMs for a key press. ok is false when none.
	PollKey(timeoutMs int) (key int, ok bool)
	Close() error
}

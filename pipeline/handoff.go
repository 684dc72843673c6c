package pipeline

import (
	"errors"
	"sync"
	"sync/atomic"
)

var errHandoffClosed = errors.New("handoff closed")

// handoff is a single-slot mailbox between the capture stage and the loop.
// A new frame overwrites an unconsumed one, so the consumer always gets the
// latest frame and sequence numbers only ever increase.
type handoff struct {
	mu     sync.Mutex
	cond   *sync.Cond
	slot   *FrameData
	err    error
	closed bool

	drops atomic.Int64
}

func newHandoff() *handoff {
	h := &handoff{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// publish never blocks. The handoff takes ownership of frame.
func (h *handoff) publish(frame FrameData) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.err != nil {
		frame.Mat.Close()
		return
	}

	if h.slot != nil {
		h.slot.Mat.Close()
		h.drops.Add(1)
	}
	h.slot = &frame
	h.cond.Signal()
}

// fail delivers a terminal error to the consumer after any pending frame.
func (h *handoff) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.err == nil {
		h.err = err
	}
	h.cond.Broadcast()
}

func (h *handoff) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	if h.slot != nil {
		h.slot.Mat.Close()
		h.slot = nil
	}
	h.cond.Broadcast()
}

// take blocks until a frame, a terminal error or close.
func (h *handoff) take() (FrameData, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for h.slot == nil && h.err == nil && !h.closed {
		h.cond.Wait()
	}

	if h.closed {
		return FrameData{}, errHandoffClosed
	}

	if h.slot != nil {
		frame := *h.slot
		h.slot = nil
		return frame, nil
	}

	return FrameData{}, h.err
}

func (h *handoff) dropped() int {
	return int(h.drops.Load())
}
